// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package adf

import (
	"bytes"
	"fmt"
	"math"

	"github.com/xuexu/cotw-mod-builder-sub000/buffer"
)

// NoAnchor marks a splice that is not owned by any pointer.
const NoAnchor int64 = -1

// SpliceRequest describes one length-changing edit inside instance data.
type SpliceRequest struct {
	Insert []byte
	// Offset is the absolute position of the first removed byte.
	Offset int64
	// Anchor is the position of the pointer or array descriptor that owns
	// the spliced bytes. Its target is kept even when it equals Offset.
	Anchor int64
	Remove int
}

// Splice removes and inserts bytes inside one instance and rewrites every
// structure that addresses bytes after the splice point: instance-relative
// pointers, the owning instance size, later instance offsets, header section
// offsets and the total size. The result is re-parsed before it is returned.
func Splice(data []byte, req SpliceRequest) ([]byte, error) {
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}

	out, err := f.splice(req)
	if err != nil {
		return nil, err
	}

	if _, err := Parse(out); err != nil {
		return nil, fmt.Errorf("%w: result does not parse: %w", ErrSpliceRange, err)
	}

	return out, nil
}

// InsertArrayData replaces oldLen bytes at dataOffset with newBytes inside
// the array whose descriptor lives at infoOffset, and adjusts the element
// count by the number of elements gained or lost.
func InsertArrayData(data []byte, infoOffset, dataOffset int64, newBytes []byte, oldLen int) ([]byte, error) {
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}

	ref, ok := f.pointerAt(infoOffset)
	if !ok || ref.countPos < 0 {
		return nil, fmt.Errorf("%w: no non-empty array descriptor at %d", ErrSpliceRange, infoOffset)
	}

	count, err := buffer.New(data).ReadU32(ref.countPos)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutOfData, err)
	}

	stride := int64(ref.stride)
	arrayEnd := ref.target + int64(count)*stride
	switch {
	case oldLen < 0:
		return nil, fmt.Errorf("%w: negative old length %d", ErrSpliceRange, oldLen)
	case dataOffset < ref.target || dataOffset+int64(oldLen) > arrayEnd:
		return nil, fmt.Errorf("%w: [%d,%d) outside array [%d,%d)", ErrSpliceRange, dataOffset, dataOffset+int64(oldLen), ref.target, arrayEnd)
	case stride == 0 || (dataOffset-ref.target)%stride != 0:
		return nil, fmt.Errorf("%w: offset %d not on a %d byte element boundary", ErrSpliceRange, dataOffset, stride)
	case int64(oldLen)%stride != 0 || int64(len(newBytes))%stride != 0:
		return nil, fmt.Errorf("%w: lengths %d/%d not multiples of element size %d", ErrSpliceRange, oldLen, len(newBytes), stride)
	}

	req := SpliceRequest{Offset: dataOffset, Remove: oldLen, Insert: newBytes, Anchor: infoOffset}
	out, err := f.splice(req)
	if err != nil {
		return nil, err
	}

	newCount := int64(count) + (int64(len(newBytes))-int64(oldLen))/stride
	if newCount < 0 || newCount > math.MaxUint32 {
		return nil, fmt.Errorf("%w: element count %d", ErrSpliceRange, newCount)
	}

	countPos := movedPosition(ref.countPos, req)
	if err := buffer.New(out).WriteU32(countPos, uint32(newCount)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutOfData, err)
	}

	if _, err := Parse(out); err != nil {
		return nil, fmt.Errorf("%w: result does not parse: %w", ErrSpliceRange, err)
	}

	return out, nil
}

// ReplaceString replaces the NUL-terminated string addressed by the pointer
// at pointerOffset with s, growing or shrinking the file as needed.
func ReplaceString(data []byte, pointerOffset int64, s []byte) ([]byte, error) {
	if bytes.IndexByte(s, 0) >= 0 {
		return nil, fmt.Errorf("%w: replacement contains NUL", ErrSpliceRange)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, err
	}

	ref, ok := f.pointerAt(pointerOffset)
	if !ok || !ref.wide {
		return nil, fmt.Errorf("%w: no string pointer at %d", ErrSpliceRange, pointerOffset)
	}

	buf := buffer.New(data)
	old, err := buf.ReadCString(ref.target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutOfData, err)
	}
	if at, ok := f.sharedWith(buf, ref, int64(len(old))+1); ok {
		return nil, fmt.Errorf("%w: string at %d is also referenced from %d", ErrSharedData, ref.target, at)
	}

	out, err := f.splice(SpliceRequest{Offset: ref.target, Remove: len(old), Insert: s, Anchor: pointerOffset})
	if err != nil {
		return nil, err
	}

	if _, err := Parse(out); err != nil {
		return nil, fmt.Errorf("%w: result does not parse: %w", ErrSpliceRange, err)
	}

	return out, nil
}

// sharedWith returns the position of another pointer whose data overlaps
// the n bytes ref targets.
func (f *File) sharedWith(buf *buffer.Buffer, ref pointerRef, n int64) (int64, bool) {
	end := ref.target + n
	for _, p := range f.pointers {
		if p.pos == ref.pos {
			continue
		}

		pEnd := p.target + 1
		switch {
		case p.wide:
			if s, err := buf.ReadCString(p.target); err == nil {
				pEnd = p.target + int64(len(s)) + 1
			}
		case p.countPos >= 0:
			count, err := buf.ReadU32(p.countPos)
			if err != nil {
				break
			}
			pEnd = p.target + int64(count)*int64(p.stride)
		}

		if p.target < end && pEnd > ref.target {
			return p.pos, true
		}
	}

	return 0, false
}

func (f *File) pointerAt(pos int64) (pointerRef, bool) {
	for _, p := range f.pointers {
		if p.pos == pos {
			return p, true
		}
	}

	return pointerRef{}, false
}

// movedPosition maps a pre-splice position of a stored field to its
// post-splice position. Fields at or after the removed range move by delta.
func movedPosition(pos int64, req SpliceRequest) int64 {
	if pos >= req.Offset+int64(req.Remove) {
		return pos + int64(len(req.Insert)-req.Remove)
	}

	return pos
}

func (f *File) splice(req SpliceRequest) ([]byte, error) {
	if req.Remove < 0 || req.Offset < HeaderCommentOffset {
		return nil, fmt.Errorf("%w: offset %d remove %d", ErrSpliceRange, req.Offset, req.Remove)
	}

	end := req.Offset + int64(req.Remove)
	delta := int64(len(req.Insert) - req.Remove)

	owner := -1
	for i := range f.Instances {
		start := int64(f.Instances[i].Offset)
		stop := start + int64(f.Instances[i].Size)
		if req.Offset >= start && end <= stop {
			owner = i
			break
		}
	}
	if owner < 0 {
		return nil, fmt.Errorf("%w: [%d,%d) is not inside one instance", ErrSpliceRange, req.Offset, end)
	}
	ownerBase := int64(f.Instances[owner].Offset)

	newSize := int64(f.Instances[owner].Size) + delta
	newTotal := int64(f.TotalSize) + delta
	if newSize < 0 || newSize > math.MaxUint32 || newTotal > math.MaxUint32 {
		return nil, fmt.Errorf("%w: size overflow", ErrSpliceRange)
	}

	type fixup struct {
		pos   int64
		value uint64
		wide  bool
	}
	var fixups []fixup

	for _, p := range f.pointers {
		width := int64(4)
		if p.wide {
			width = 8
		}
		if p.pos+width > req.Offset && p.pos < end || (req.Remove == 0 && p.pos < req.Offset && p.pos+width > req.Offset) {
			return nil, fmt.Errorf("%w: pointer at %d overlaps the splice", ErrSpliceRange, p.pos)
		}
		if p.target > req.Offset && p.target < end {
			return nil, fmt.Errorf("%w: pointer at %d targets removed byte %d", ErrSpliceRange, p.pos, p.target)
		}

		targetMoves := p.target > end || (p.target == end && p.pos != req.Anchor)
		baseMoves := p.base >= end && p.base != ownerBase
		if targetMoves == baseMoves {
			continue
		}

		rel := p.target - p.base
		if targetMoves {
			rel += delta
		} else {
			rel -= delta
		}
		if rel < 0 || (!p.wide && rel > math.MaxUint32) {
			return nil, fmt.Errorf("%w: pointer at %d out of range after splice", ErrSpliceRange, p.pos)
		}
		fixups = append(fixups, fixup{pos: movedPosition(p.pos, req), value: uint64(rel), wide: p.wide})
	}

	for i := range f.Instances {
		inst := &f.Instances[i]
		switch {
		case i == owner:
			fixups = append(fixups, fixup{pos: movedPosition(inst.SizeFieldOffset(), req), value: uint64(newSize)})
		case int64(inst.Offset) >= end:
			fixups = append(fixups, fixup{pos: movedPosition(inst.OffsetFieldOffset(), req), value: uint64(int64(inst.Offset) + delta)})
		}
	}

	sections := []struct {
		field int64
		value int64
	}{
		{HeaderInstanceOffset, f.InstanceHeaderStart},
		{HeaderTypedefOffset, f.TypedefStart},
		{HeaderStringHashOffset, f.StringHashStart},
		{HeaderNametableOffset, f.NametableStart},
	}
	for _, s := range sections {
		if s.value > req.Offset && s.value < end {
			return nil, fmt.Errorf("%w: section at %d is inside the splice", ErrSpliceRange, s.value)
		}
		if s.value >= end {
			fixups = append(fixups, fixup{pos: s.field, value: uint64(s.value + delta)})
		}
	}
	fixups = append(fixups, fixup{pos: HeaderTotalSizeOffset, value: uint64(newTotal)})

	buf := buffer.New(bytes.Clone(f.data))
	if err := buf.Splice(req.Offset, req.Remove, req.Insert); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpliceRange, err)
	}

	for _, fx := range fixups {
		var err error
		if fx.wide {
			err = buf.WriteU64(fx.pos, fx.value)
		} else {
			err = buf.WriteU32(fx.pos, uint32(fx.value)) //nolint:gosec // range checked above
		}
		if err != nil {
			return nil, fmt.Errorf("%w: fix-up at %d: %w", ErrSpliceRange, fx.pos, err)
		}
	}

	return buf.Bytes(), nil
}
