// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package sarc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MarshalBinary serializes the header and directory block. The result is
// exactly DataStart bytes long; unused directory space is zero filled.
func (h *Header) MarshalBinary() ([]byte, error) {
	out := make([]byte, HeaderSize, h.DataStart())
	binary.LittleEndian.PutUint32(out[0:], magicLenValue)
	copy(out[4:8], Magic)
	binary.LittleEndian.PutUint32(out[8:], h.Version)
	binary.LittleEndian.PutUint32(out[12:], h.DirBlockLen)

	for _, e := range h.Entries {
		nameLen := e.NameLen
		if nameLen == 0 {
			nameLen = uint32(alignUp(int64(len(e.Path)), 4))
		}
		if int(nameLen) < len(e.Path) {
			return nil, fmt.Errorf("%w: name field of %d bytes cannot hold %q", ErrParse, nameLen, e.Path)
		}

		out = binary.LittleEndian.AppendUint32(out, nameLen)
		out = append(out, e.Path...)
		out = append(out, make([]byte, int(nameLen)-len(e.Path))...)
		out = binary.LittleEndian.AppendUint32(out, e.Offset)
		out = binary.LittleEndian.AppendUint32(out, e.Length)
	}

	if int64(len(out)) > h.DataStart() {
		return nil, fmt.Errorf("%w: directory needs %d bytes, block holds %d", ErrParse, len(out)-HeaderSize, h.DirBlockLen)
	}

	return append(out, make([]byte, h.DataStart()-int64(len(out)))...), nil
}

// Pack builds a new archive from files in the given order. Payload offsets
// are aligned to opts.Alignment and the directory block is padded so the
// first payload byte is aligned to opts.DataStartAlignment.
func Pack(files []File, opts Options) ([]byte, *Header, error) {
	opts.applyDefaults()

	h := &Header{Version: Version, Entries: make([]Entry, 0, len(files))}
	seen := make(map[string]struct{}, len(files))

	dirLen := int64(0)
	for _, f := range files {
		name, err := normalizeArchiveEntryPath(f.Path)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := seen[name]; dup {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateEntryPath, name)
		}
		seen[name] = struct{}{}

		nameLen := alignUp(int64(len(name)), 4)
		dirLen += 4 + nameLen + 8
		h.Entries = append(h.Entries, Entry{Path: name, NameLen: uint32(nameLen), IsSymlink: f.Symlink})
	}

	dataStart := alignUp(HeaderSize+dirLen, int64(opts.DataStartAlignment))
	h.DirBlockLen = uint32(dataStart - HeaderSize)

	cursor := dataStart
	for i, f := range files {
		e := &h.Entries[i]
		e.OffsetMetaOffset, e.SizeMetaOffset = metaOffsets(h.Entries, i)
		if f.Symlink {
			e.Length = f.Size
			continue
		}

		cursor = alignUp(cursor, int64(opts.Alignment))
		if cursor+int64(len(f.Data)) > maxArchive {
			return nil, nil, fmt.Errorf("%w: %s ends at %d", ErrSizeOverflow, e.Path, cursor+int64(len(f.Data)))
		}

		e.Offset = uint32(cursor)
		e.Length = uint32(len(f.Data))
		cursor += int64(len(f.Data))
	}

	out, err := h.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}

	for i, f := range files {
		e := h.Entries[i]
		if e.IsSymlink {
			continue
		}

		out = append(out, make([]byte, int64(e.Offset)-int64(len(out)))...)
		out = append(out, f.Data...)
	}

	return out, h, nil
}

// metaOffsets returns where entry i's offset and length fields live.
func metaOffsets(entries []Entry, i int) (int64, int64) {
	pos := int64(HeaderSize)
	for j := 0; j < i; j++ {
		pos += 4 + int64(entries[j].NameLen) + 8
	}

	pos += 4 + int64(entries[i].NameLen)
	return pos, pos + 4
}

// WriteHeader serializes h to w.
func WriteHeader(w io.Writer, h *Header) error {
	data, err := h.MarshalBinary()
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write SARC header: %w", err)
	}

	return nil
}
