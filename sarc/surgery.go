// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package sarc

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/xuexu/cotw-mod-builder-sub000/buffer"
)

// Merge overwrites the payload of entryPath in place. The payload must have
// exactly the entry's length. The input slice is not modified.
func Merge(archive []byte, entryPath string, payload []byte) ([]byte, error) {
	h, err := ParseHeader(archive)
	if err != nil {
		return nil, err
	}

	e, err := payloadEntry(h, entryPath)
	if err != nil {
		return nil, err
	}

	if int64(len(payload)) != int64(e.Length) {
		return nil, fmt.Errorf("%w: %s has %d bytes, payload has %d", ErrSizeMismatch, e.Path, e.Length, len(payload))
	}

	buf := buffer.New(bytes.Clone(archive))
	if err := buf.WriteBytes(int64(e.Offset), payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutOfData, err)
	}

	return buf.Bytes(), nil
}

// PlanExpand computes the header patches and body splice that replace
// entryPath with newSize bytes. The replaced range runs from the entry's
// offset to the next payload offset, or to the archive end for the last
// payload.
func PlanExpand(h *Header, archiveSize int64, entryPath string, newSize int64) (*ExpandPlan, error) {
	e, err := payloadEntry(h, entryPath)
	if err != nil {
		return nil, err
	}

	order := payloadOrder(h)
	oldEnd := archiveSize
	for _, i := range order {
		if next := h.Entries[i]; next.Offset > e.Offset {
			oldEnd = int64(next.Offset)
			break
		}
	}

	oldSize := oldEnd - int64(e.Offset)
	if oldSize < 0 {
		return nil, fmt.Errorf("%w: %s starts past archive end", ErrOutOfData, e.Path)
	}

	plan := &ExpandPlan{
		Entry:        *e,
		SpliceOffset: int64(e.Offset),
		SpliceRemove: oldSize,
		OldSize:      oldSize,
		NewSize:      newSize,
		Delta:        newSize - oldSize,
	}

	for _, i := range order {
		f := h.Entries[i]
		if f.Offset <= e.Offset {
			continue
		}

		moved := int64(f.Offset) + plan.Delta
		if moved <= 0 || moved > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %s would move to %d", ErrSizeOverflow, f.Path, moved)
		}
		plan.Patches = append(plan.Patches, HeaderPatch{Offset: f.OffsetMetaOffset, Value: uint32(moved)})
	}

	if newSize < 0 || newSize > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %s new size %d", ErrSizeOverflow, e.Path, newSize)
	}
	plan.Patches = append(plan.Patches, HeaderPatch{Offset: e.SizeMetaOffset, Value: uint32(newSize)})

	return plan, nil
}

// Expand replaces the payload of entryPath with a payload of any length and
// moves every later payload by the size difference.
func Expand(archive []byte, entryPath string, payload []byte) ([]byte, *ExpandPlan, error) {
	h, err := ParseHeader(archive)
	if err != nil {
		return nil, nil, err
	}

	plan, err := PlanExpand(h, int64(len(archive)), entryPath, int64(len(payload)))
	if err != nil {
		return nil, nil, err
	}

	if int64(len(archive))+plan.Delta > math.MaxUint32 {
		return nil, nil, fmt.Errorf("%w: archive would be %d bytes", ErrSizeOverflow, int64(len(archive))+plan.Delta)
	}

	buf := buffer.New(bytes.Clone(archive))
	for _, p := range plan.Patches {
		if err := buf.WriteU32(p.Offset, p.Value); err != nil {
			return nil, nil, fmt.Errorf("%w: header patch: %w", ErrOutOfData, err)
		}
	}

	if err := buf.Splice(plan.SpliceOffset, int(plan.SpliceRemove), payload); err != nil {
		return nil, nil, fmt.Errorf("%w: body splice: %w", ErrOutOfData, err)
	}

	return buf.Bytes(), plan, nil
}

// Rebuild writes a new archive in which the entries named in changed carry
// new payloads. Entries keep their stored order and their original slots;
// a payload whose length changes gets a slot padded to opts.Alignment and
// every later payload moves by the accumulated difference. An archive with
// no length changes is rebuilt byte-identical apart from the new payloads.
func Rebuild(archive []byte, changed map[string][]byte, opts Options) ([]byte, error) {
	opts.applyDefaults()

	h, err := ParseHeader(archive)
	if err != nil {
		return nil, err
	}

	updates := make(map[int][]byte, len(changed))
	for name, data := range changed {
		e, err := payloadEntry(h, name)
		if err != nil {
			return nil, err
		}
		updates[entryIndex(h, e)] = data
	}

	order := payloadOrder(h)
	if len(order) == 0 {
		return bytes.Clone(archive), nil
	}

	first := int64(h.Entries[order[0]].Offset)
	if first < h.DataStart() {
		return nil, fmt.Errorf("%w: payload at %d inside directory block", ErrParse, first)
	}

	out := make([]byte, first, len(archive))
	copy(out, archive[:first])

	rebuilt := *h
	rebuilt.Entries = make([]Entry, len(h.Entries))
	copy(rebuilt.Entries, h.Entries)

	for k, idx := range order {
		e := h.Entries[idx]
		slotEnd := int64(len(archive))
		if k+1 < len(order) {
			slotEnd = int64(h.Entries[order[k+1]].Offset)
		}

		start := int64(len(out))
		if start > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %s would start at %d", ErrSizeOverflow, e.Path, start)
		}

		data, ok := updates[idx]
		switch {
		case !ok:
			out = append(out, archive[e.Offset:slotEnd]...)
		case int64(len(data)) == int64(e.Length):
			out = append(out, data...)
			out = append(out, archive[int64(e.Offset)+int64(e.Length):slotEnd]...)
		default:
			out = append(out, data...)
			if k+1 < len(order) {
				out = append(out, make([]byte, alignUp(int64(len(out)), int64(opts.Alignment))-int64(len(out)))...)
			} else {
				out = append(out, archive[int64(e.Offset)+int64(e.Length):slotEnd]...)
			}
		}

		rebuilt.Entries[idx].Offset = uint32(start)
		if ok {
			if int64(len(data)) > math.MaxUint32 {
				return nil, fmt.Errorf("%w: %s payload of %d bytes", ErrSizeOverflow, e.Path, len(data))
			}
			rebuilt.Entries[idx].Length = uint32(len(data))
		}
	}

	if int64(len(out)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: archive would be %d bytes", ErrSizeOverflow, len(out))
	}

	head, err := rebuilt.MarshalBinary()
	if err != nil {
		return nil, err
	}
	copy(out, head)

	return out, nil
}

// payloadEntry finds entryPath and rejects symlinks.
func payloadEntry(h *Header, entryPath string) (*Entry, error) {
	e, ok := h.Find(entryPath)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryPath)
	}
	if e.IsSymlink {
		return nil, fmt.Errorf("%w: %s", ErrSymlink, entryPath)
	}

	return e, nil
}

// payloadOrder returns indexes of non-symlink entries sorted by offset.
func payloadOrder(h *Header) []int {
	order := make([]int, 0, len(h.Entries))
	for i := range h.Entries {
		if !h.Entries[i].IsSymlink {
			order = append(order, i)
		}
	}

	sort.SliceStable(order, func(a, b int) bool {
		return h.Entries[order[a]].Offset < h.Entries[order[b]].Offset
	})

	return order
}

// entryIndex returns the position of e inside h.Entries.
func entryIndex(h *Header, e *Entry) int {
	for i := range h.Entries {
		if &h.Entries[i] == e {
			return i
		}
	}

	return -1
}
