// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package sarc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// Reader provides read-only access to a parsed SARC archive.
type Reader struct {
	// ra is the underlying random-access reader used for payload reads.
	ra io.ReaderAt
	// file is set when Reader owns an *os.File opened via Open.
	file *os.File
	// header is the parsed directory.
	header Header
	// size is total source size in bytes.
	size int64
	// mu guards closed state and close operation.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// Open opens an archive by path and parses its directory.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open SARC: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	r, err := NewReaderFromReaderAt(f, fi.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	r.file = f
	return r, nil
}

// NewReaderFromReaderAt parses an archive from an existing ReaderAt and known size.
func NewReaderFromReaderAt(ra io.ReaderAt, size int64) (*Reader, error) {
	h, err := ReadHeader(ra, size)
	if err != nil {
		return nil, err
	}

	return &Reader{ra: ra, size: size, header: *h}, nil
}

// Header returns a copy of the parsed directory.
func (r *Reader) Header() Header {
	if r == nil {
		return Header{}
	}

	h := r.header
	h.Entries = r.Entries()
	return h
}

// Entries returns a copy of parsed entries in stored order.
func (r *Reader) Entries() []Entry {
	if r == nil {
		return nil
	}

	entries := make([]Entry, len(r.header.Entries))
	copy(entries, r.header.Entries)
	return entries
}

// Size returns the archive size in bytes.
func (r *Reader) Size() int64 {
	if r == nil {
		return 0
	}

	return r.size
}

// Close closes the underlying file if reader owns one.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	if r.file != nil {
		return r.file.Close()
	}

	return nil
}

// ParseHeader parses the directory of an in-memory archive.
func ParseHeader(data []byte) (*Header, error) {
	return ReadHeader(bytes.NewReader(data), int64(len(data)))
}

// ReadHeader reads and validates the fixed header and the directory block.
// Entry parsing stops at a zero name length or at the end of the block.
func ReadHeader(ra io.ReaderAt, size int64) (*Header, error) {
	var fixed [HeaderSize]byte
	if size < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrOutOfData, size, HeaderSize)
	}
	if _, err := ra.ReadAt(fixed[:], 0); err != nil {
		return nil, fmt.Errorf("read SARC header: %w", err)
	}

	if binary.LittleEndian.Uint32(fixed[0:4]) != magicLenValue || string(fixed[4:8]) != Magic {
		return nil, fmt.Errorf("%w: bad magic % x", ErrParse, fixed[:8])
	}

	h := &Header{
		Version:     binary.LittleEndian.Uint32(fixed[8:12]),
		DirBlockLen: binary.LittleEndian.Uint32(fixed[12:16]),
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrParse, h.Version)
	}

	if h.DataStart() > size {
		return nil, fmt.Errorf("%w: directory block ends at %d, archive is %d bytes", ErrOutOfData, h.DataStart(), size)
	}

	dir := make([]byte, h.DirBlockLen)
	if _, err := ra.ReadAt(dir, HeaderSize); err != nil {
		return nil, fmt.Errorf("read SARC directory: %w", err)
	}

	entries, err := parseDirectory(dir, size)
	if err != nil {
		return nil, err
	}

	h.Entries = entries
	return h, nil
}

// parseDirectory decodes entry records from the directory block.
func parseDirectory(dir []byte, size int64) ([]Entry, error) {
	var entries []Entry

	pos := 0
	for pos+4 <= len(dir) {
		nameLen := binary.LittleEndian.Uint32(dir[pos:])
		if nameLen == 0 {
			break
		}

		recordEnd := int64(pos) + 4 + int64(nameLen) + 8
		if recordEnd > int64(len(dir)) {
			return nil, fmt.Errorf("%w: entry record at %d runs past directory block", ErrOutOfData, HeaderSize+pos)
		}

		nameField := dir[pos+4 : pos+4+int(nameLen)]
		if idx := bytes.IndexByte(nameField, 0); idx >= 0 {
			nameField = nameField[:idx]
		}

		metaPos := pos + 4 + int(nameLen)
		e := Entry{
			Path:             string(nameField),
			NameLen:          nameLen,
			Offset:           binary.LittleEndian.Uint32(dir[metaPos:]),
			Length:           binary.LittleEndian.Uint32(dir[metaPos+4:]),
			OffsetMetaOffset: int64(HeaderSize + metaPos),
			SizeMetaOffset:   int64(HeaderSize + metaPos + 4),
		}
		e.IsSymlink = e.Offset == 0

		if !e.IsSymlink && int64(e.Offset)+int64(e.Length) > size {
			return nil, fmt.Errorf("%w: entry %s [%d,+%d) past archive size %d", ErrOutOfData, e.Path, e.Offset, e.Length, size)
		}

		entries = append(entries, e)
		pos = int(recordEnd)
	}

	return entries, nil
}
