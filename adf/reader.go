// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package adf

import (
	"fmt"

	"github.com/xuexu/cotw-mod-builder-sub000/buffer"
)

// File is a parsed ADF image.
//
// The value trees hold offsets into the image returned by Bytes. They are not
// updated by edits; re-parse after any length-changing operation.
type File struct {
	Types        map[uint32]*TypeDef
	StringHashes map[uint64]string
	data         []byte
	Comment      []byte
	Instances    []Instance
	Names        []string
	pointers     []pointerRef

	InstanceHeaderStart int64
	TypedefStart        int64
	StringHashStart     int64
	NametableStart      int64

	Version   uint32
	TotalSize uint32
}

// pointerRef is one instance-relative pointer found while decoding.
type pointerRef struct {
	// pos is where the pointer is stored, base the owning instance start.
	pos    int64
	base   int64
	target int64
	// countPos is the descriptor count field for arrays, or -1.
	countPos int64
	stride   int
	// wide pointers are 64-bit (strings); others are 32-bit.
	wide bool
}

// Parse decodes an ADF image. data is retained and must not be modified
// while the File is in use.
func Parse(data []byte) (*File, error) {
	buf := buffer.New(data)
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: %d byte header", ErrOutOfData, len(data))
	}

	magic, _ := buf.ReadU32(0)
	if magic != Magic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrParse, magic)
	}

	version, _ := buf.ReadU32(4)
	if version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrParse, version)
	}

	if len(data) < int(HeaderCommentOffset) {
		return nil, fmt.Errorf("%w: %d byte header", ErrOutOfData, len(data))
	}

	f := &File{
		data:         data,
		Version:      version,
		Types:        make(map[uint32]*TypeDef),
		StringHashes: make(map[uint64]string),
	}

	var h [10]uint32
	for i := range h {
		h[i], _ = buf.ReadU32(HeaderInstanceCountOffset + int64(i)*4)
	}
	instanceCount, typedefCount, stringHashCount, nameCount := h[0], h[2], h[4], h[6]
	f.InstanceHeaderStart = int64(h[1])
	f.TypedefStart = int64(h[3])
	f.StringHashStart = int64(h[5])
	f.NametableStart = int64(h[7])
	f.TotalSize = h[8]

	if int64(f.TotalSize) > int64(len(data)) {
		return nil, fmt.Errorf("%w: total size %d exceeds %d byte image", ErrOutOfData, f.TotalSize, len(data))
	}

	comment, err := buf.ReadCString(HeaderCommentOffset)
	if err != nil {
		return nil, fmt.Errorf("%w: comment: %w", ErrOutOfData, err)
	}
	f.Comment = comment

	if err := f.readNames(buf, nameCount); err != nil {
		return nil, err
	}

	if err := f.readTypes(buf, typedefCount); err != nil {
		return nil, err
	}

	if err := f.readStringHashes(buf, stringHashCount); err != nil {
		return nil, err
	}

	if err := f.readInstances(buf, instanceCount); err != nil {
		return nil, err
	}

	return f, nil
}

// Bytes returns the image the file was parsed from.
func (f *File) Bytes() []byte {
	return f.data
}

// Root returns the value of the first instance.
func (f *File) Root() (*Value, error) {
	if len(f.Instances) == 0 {
		return nil, fmt.Errorf("%w: file has no instances", ErrParse)
	}

	return &f.Instances[0].Root, nil
}

// Instance returns the instance with the given name.
func (f *File) Instance(name string) (*Instance, bool) {
	for i := range f.Instances {
		if f.Instances[i].Name == name {
			return &f.Instances[i], true
		}
	}

	return nil, false
}

// name resolves a name table index.
func (f *File) name(idx uint64) (string, error) {
	if idx >= uint64(len(f.Names)) {
		return "", fmt.Errorf("%w: name index %d of %d", ErrParse, idx, len(f.Names))
	}

	return f.Names[idx], nil
}

func (f *File) readNames(buf *buffer.Buffer, count uint32) error {
	if count == 0 {
		return nil
	}

	lengths, err := buf.ReadBytes(f.NametableStart, int(count))
	if err != nil {
		return fmt.Errorf("%w: name table: %w", ErrOutOfData, err)
	}

	pos := f.NametableStart + int64(count)
	f.Names = make([]string, 0, count)
	for i, n := range lengths {
		raw, err := buf.ReadBytes(pos, int(n)+1)
		if err != nil {
			return fmt.Errorf("%w: name %d: %w", ErrOutOfData, i, err)
		}
		if raw[n] != 0 {
			return fmt.Errorf("%w: name %d not terminated", ErrParse, i)
		}
		f.Names = append(f.Names, string(raw[:n]))
		pos += int64(n) + 1
	}

	return nil
}

func (f *File) readTypes(buf *buffer.Buffer, count uint32) error {
	pos := f.TypedefStart
	for i := range count {
		var fixed [10]uint32
		for j := range fixed {
			v, err := buf.ReadU32(pos + int64(j)*4)
			if err != nil {
				return fmt.Errorf("%w: typedef %d: %w", ErrOutOfData, i, err)
			}
			fixed[j] = v
		}

		nameIdx := uint64(fixed[4]) | uint64(fixed[5])<<32
		name, err := f.name(nameIdx)
		if err != nil {
			return fmt.Errorf("typedef %d: %w", i, err)
		}

		td := &TypeDef{
			Name:            name,
			MetaType:        MetaType(fixed[0]),
			Size:            fixed[1],
			Alignment:       fixed[2],
			TypeHash:        fixed[3],
			Flags:           fixed[6],
			ElementTypeHash: fixed[7],
			ElementLength:   fixed[8],
			Offset:          pos,
		}
		memberCount := fixed[9]
		pos += typedefFixedSize + 4

		switch td.MetaType {
		case MetaStructure:
			td.Members = make([]MemberDef, 0, memberCount)
			for m := range memberCount {
				md, err := f.readMember(buf, pos)
				if err != nil {
					return fmt.Errorf("typedef %q member %d: %w", name, m, err)
				}
				td.Members = append(td.Members, md)
				pos += MemberDefSize
			}

		case MetaEnumeration:
			td.Enum = make([]EnumMember, 0, memberCount)
			for m := range memberCount {
				idx, err := buf.ReadU64(pos)
				if err != nil {
					return fmt.Errorf("%w: typedef %q enum %d: %w", ErrOutOfData, name, m, err)
				}
				v, err := buf.ReadU32(pos + 8)
				if err != nil {
					return fmt.Errorf("%w: typedef %q enum %d: %w", ErrOutOfData, name, m, err)
				}
				en, err := f.name(idx)
				if err != nil {
					return fmt.Errorf("typedef %q enum %d: %w", name, m, err)
				}
				td.Enum = append(td.Enum, EnumMember{Name: en, Value: v})
				pos += EnumMemberSize
			}

		default:
			if memberCount != 0 {
				return fmt.Errorf("%w: typedef %q metatype %d declares %d members", ErrParse, name, td.MetaType, memberCount)
			}
		}

		if td.MetaType > MetaDeferred {
			return fmt.Errorf("%w: typedef %q unknown metatype %d", ErrParse, name, td.MetaType)
		}
		f.Types[td.TypeHash] = td
	}

	return nil
}

func (f *File) readMember(buf *buffer.Buffer, pos int64) (MemberDef, error) {
	nameIdx, err := buf.ReadU64(pos)
	if err != nil {
		return MemberDef{}, fmt.Errorf("%w: %w", ErrOutOfData, err)
	}

	var w [4]uint32
	for j := range w {
		if w[j], err = buf.ReadU32(pos + 8 + int64(j)*4); err != nil {
			return MemberDef{}, fmt.Errorf("%w: %w", ErrOutOfData, err)
		}
	}

	def, err := buf.ReadU64(pos + 24)
	if err != nil {
		return MemberDef{}, fmt.Errorf("%w: %w", ErrOutOfData, err)
	}

	name, err := f.name(nameIdx)
	if err != nil {
		return MemberDef{}, err
	}

	return MemberDef{
		Name:         name,
		TypeHash:     w[0],
		Size:         w[1],
		Offset:       w[2] & 0x00ffffff,
		BitOffset:    uint8(w[2] >> 24), //nolint:gosec // top byte
		DefaultType:  w[3],
		DefaultValue: def,
	}, nil
}

func (f *File) readStringHashes(buf *buffer.Buffer, count uint32) error {
	pos := f.StringHashStart
	for i := range count {
		s, err := buf.ReadCString(pos)
		if err != nil {
			return fmt.Errorf("%w: string hash %d: %w", ErrOutOfData, i, err)
		}
		pos += int64(len(s)) + 1

		h, err := buf.ReadU64(pos)
		if err != nil {
			return fmt.Errorf("%w: string hash %d: %w", ErrOutOfData, i, err)
		}
		pos += 8
		f.StringHashes[h] = string(s)
	}

	return nil
}

func (f *File) readInstances(buf *buffer.Buffer, count uint32) error {
	d := &decoder{file: f, buf: buf}
	f.Instances = make([]Instance, 0, count)

	for i := range count {
		pos := f.InstanceHeaderStart + int64(i)*InstanceEntrySize
		var w [4]uint32
		for j := range w {
			v, err := buf.ReadU32(pos + int64(j)*4)
			if err != nil {
				return fmt.Errorf("%w: instance %d: %w", ErrOutOfData, i, err)
			}
			w[j] = v
		}

		nameIdx, err := buf.ReadU64(pos + 16)
		if err != nil {
			return fmt.Errorf("%w: instance %d: %w", ErrOutOfData, i, err)
		}
		name, err := f.name(nameIdx)
		if err != nil {
			return fmt.Errorf("instance %d: %w", i, err)
		}

		inst := Instance{
			Name:        name,
			NameHash:    w[0],
			TypeHash:    w[1],
			Offset:      w[2],
			Size:        w[3],
			EntryOffset: pos,
		}
		if int64(inst.Offset)+int64(inst.Size) > int64(len(f.data)) {
			return fmt.Errorf("%w: instance %q spans [%d,%d) of %d bytes", ErrOutOfData, name, inst.Offset, int64(inst.Offset)+int64(inst.Size), len(f.data))
		}

		root, err := d.value(inst.TypeHash, int64(inst.Offset), int64(inst.Offset), 0)
		if err != nil {
			return fmt.Errorf("instance %q: %w", name, err)
		}
		inst.Root = root
		f.Instances = append(f.Instances, inst)
	}

	return nil
}

// decoder walks instance data following the type table.
type decoder struct {
	file *File
	buf  *buffer.Buffer
}

// sizeOf returns the in-place size of one value of the given type.
func (d *decoder) sizeOf(typeHash uint32, pos int64) (int, error) {
	if b, ok := builtins[typeHash]; ok {
		return b.size, nil
	}
	if td, ok := d.file.Types[typeHash]; ok {
		return int(td.Size), nil
	}

	return 0, &UnknownTypeError{TypeHash: typeHash, Offset: pos}
}

func (d *decoder) value(typeHash uint32, base, pos int64, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, fmt.Errorf("%w: nesting deeper than %d at %d", ErrParse, maxDepth, pos)
	}

	if b, ok := builtins[typeHash]; ok {
		switch b.kind {
		case KindString:
			return d.stringValue(typeHash, base, pos)
		case KindDeferred:
			return d.deferredValue(base, pos, depth)
		default:
			return d.scalar(b.kind, typeHash, pos, b.size)
		}
	}

	td, ok := d.file.Types[typeHash]
	if !ok {
		return Value{}, &UnknownTypeError{TypeHash: typeHash, Offset: pos}
	}

	switch td.MetaType {
	case MetaPrimitive:
		if td.Name == "bool" {
			v, err := d.scalar(KindRaw, typeHash, pos, int(td.Size))
			if err != nil {
				return Value{}, err
			}
			v.Kind = KindBool
			v.Bool = v.Uint != 0
			return v, nil
		}
		return d.scalar(KindRaw, typeHash, pos, int(td.Size))

	case MetaStructure:
		return d.structValue(td, base, pos, depth)

	case MetaArray:
		return d.arrayValue(td, base, pos, depth)

	case MetaInlineArray:
		return d.inlineArrayValue(td, base, pos, depth)

	case MetaString:
		return d.stringValue(typeHash, base, pos)

	case MetaDeferred:
		return d.deferredValue(base, pos, depth)

	case MetaStringHash:
		v, err := d.scalar(KindRaw, typeHash, pos, int(td.Size))
		if err != nil {
			return Value{}, err
		}
		if s, ok := d.file.StringHashes[v.Uint]; ok {
			v.Bytes = []byte(s)
		}
		return v, nil

	default:
		return d.scalar(KindRaw, typeHash, pos, int(td.Size))
	}
}

func (d *decoder) scalar(kind Kind, typeHash uint32, pos int64, width int) (Value, error) {
	v := Value{Kind: kind, TypeHash: typeHash, DataOffset: pos, InfoOffset: pos, Width: width}

	var err error
	switch kind {
	case KindU8:
		var x uint8
		x, err = d.buf.ReadU8(pos)
		v.Uint = uint64(x)
	case KindI8:
		var x int8
		x, err = d.buf.ReadI8(pos)
		v.Int = int64(x)
	case KindU16:
		var x uint16
		x, err = d.buf.ReadU16(pos)
		v.Uint = uint64(x)
	case KindI16:
		var x int16
		x, err = d.buf.ReadI16(pos)
		v.Int = int64(x)
	case KindU32:
		var x uint32
		x, err = d.buf.ReadU32(pos)
		v.Uint = uint64(x)
	case KindI32:
		var x int32
		x, err = d.buf.ReadI32(pos)
		v.Int = int64(x)
	case KindU64:
		v.Uint, err = d.buf.ReadU64(pos)
	case KindI64:
		var x uint64
		x, err = d.buf.ReadU64(pos)
		v.Int = int64(x) //nolint:gosec // two's complement reinterpretation
	case KindF32:
		var x float32
		x, err = d.buf.ReadF32(pos)
		v.Float = float64(x)
	case KindF64:
		v.Float, err = d.buf.ReadF64(pos)
	default:
		v.Uint, err = d.readUint(pos, width)
	}
	if err != nil {
		return Value{}, fmt.Errorf("%w: %s at %d: %w", ErrOutOfData, kind, pos, err)
	}

	return v, nil
}

// readUint reads an unsigned integer of 1, 2, 4 or 8 bytes. Other widths
// yield the first up-to-8 bytes little-endian.
func (d *decoder) readUint(pos int64, width int) (uint64, error) {
	switch width {
	case 1:
		x, err := d.buf.ReadU8(pos)
		return uint64(x), err
	case 2:
		x, err := d.buf.ReadU16(pos)
		return uint64(x), err
	case 4:
		x, err := d.buf.ReadU32(pos)
		return uint64(x), err
	case 8:
		return d.buf.ReadU64(pos)
	}

	raw, err := d.buf.ReadBytes(pos, width)
	if err != nil {
		return 0, err
	}
	var x uint64
	for i := len(raw) - 1; i >= 0; i-- {
		if i < 8 {
			x = x<<8 | uint64(raw[i])
		}
	}
	return x, nil
}

func (d *decoder) stringValue(typeHash uint32, base, pos int64) (Value, error) {
	ptr, err := d.buf.ReadU64(pos)
	if err != nil {
		return Value{}, fmt.Errorf("%w: string pointer at %d: %w", ErrOutOfData, pos, err)
	}

	target := base + int64(ptr) //nolint:gosec // bounded by ReadCString
	s, err := d.buf.ReadCString(target)
	if err != nil {
		return Value{}, fmt.Errorf("%w: string at %d: %w", ErrOutOfData, target, err)
	}

	d.file.pointers = append(d.file.pointers, pointerRef{pos: pos, base: base, target: target, countPos: -1, wide: true})
	return Value{
		Kind:       KindString,
		TypeHash:   typeHash,
		DataOffset: target,
		InfoOffset: pos,
		Width:      8,
		Bytes:      s,
	}, nil
}

func (d *decoder) deferredValue(base, pos int64, depth int) (Value, error) {
	ptr, err := d.buf.ReadU32(pos)
	if err != nil {
		return Value{}, fmt.Errorf("%w: deferred at %d: %w", ErrOutOfData, pos, err)
	}
	inner, err := d.buf.ReadU32(pos + 8)
	if err != nil {
		return Value{}, fmt.Errorf("%w: deferred at %d: %w", ErrOutOfData, pos, err)
	}

	v := Value{Kind: KindDeferred, TypeHash: inner, InfoOffset: pos, Width: 16}
	if ptr == 0 || inner == 0 {
		return v, nil
	}

	target := base + int64(ptr)
	d.file.pointers = append(d.file.pointers, pointerRef{pos: pos, base: base, target: target, countPos: -1})
	child, err := d.value(inner, base, target, depth+1)
	if err != nil {
		return Value{}, err
	}
	v.DataOffset = target
	v.Elems = []Value{child}
	return v, nil
}

func (d *decoder) structValue(td *TypeDef, base, pos int64, depth int) (Value, error) {
	v := Value{
		Kind:       KindStruct,
		TypeHash:   td.TypeHash,
		DataOffset: pos,
		InfoOffset: pos,
		Width:      int(td.Size),
		Fields:     make([]Field, 0, len(td.Members)),
	}

	for _, m := range td.Members {
		fv, err := d.value(m.TypeHash, base, pos+int64(m.Offset), depth+1)
		if err != nil {
			return Value{}, fmt.Errorf("%s.%s: %w", td.Name, m.Name, err)
		}
		v.Fields = append(v.Fields, Field{Name: m.Name, Value: fv})
	}

	return v, nil
}

func (d *decoder) arrayValue(td *TypeDef, base, pos int64, depth int) (Value, error) {
	ptr, err := d.buf.ReadU32(pos)
	if err != nil {
		return Value{}, fmt.Errorf("%w: array descriptor at %d: %w", ErrOutOfData, pos, err)
	}
	count, err := d.buf.ReadU32(pos + ArrayCountOffset)
	if err != nil {
		return Value{}, fmt.Errorf("%w: array descriptor at %d: %w", ErrOutOfData, pos, err)
	}

	stride, err := d.sizeOf(td.ElementTypeHash, pos)
	if err != nil {
		return Value{}, err
	}

	v := Value{
		Kind:       KindArray,
		TypeHash:   td.TypeHash,
		InfoOffset: pos,
		Count:      count,
		Width:      ArrayDescriptorSize,
	}
	if ptr == 0 {
		if count != 0 {
			return Value{}, fmt.Errorf("%w: null array at %d with %d elements", ErrParse, pos, count)
		}
		return v, nil
	}

	if count > 0 && stride == 0 {
		return Value{}, fmt.Errorf("%w: array at %d has %d elements of zero size", ErrParse, pos, count)
	}

	v.DataOffset = base + int64(ptr)
	if v.DataOffset+int64(count)*int64(stride) > int64(d.buf.Len()) {
		return Value{}, fmt.Errorf("%w: array at %d needs %d x %d bytes", ErrOutOfData, v.DataOffset, count, stride)
	}

	d.file.pointers = append(d.file.pointers, pointerRef{
		pos:      pos,
		base:     base,
		target:   v.DataOffset,
		countPos: pos + ArrayCountOffset,
		stride:   stride,
	})

	v.Elems = make([]Value, 0, count)
	for i := range int64(count) {
		ev, err := d.value(td.ElementTypeHash, base, v.DataOffset+i*int64(stride), depth+1)
		if err != nil {
			return Value{}, fmt.Errorf("%s[%d]: %w", td.Name, i, err)
		}
		v.Elems = append(v.Elems, ev)
	}

	return v, nil
}

func (d *decoder) inlineArrayValue(td *TypeDef, base, pos int64, depth int) (Value, error) {
	stride, err := d.sizeOf(td.ElementTypeHash, pos)
	if err != nil {
		return Value{}, err
	}

	n := int64(td.ElementLength)
	switch {
	case n > 0 && stride == 0:
		return Value{}, fmt.Errorf("%w: inline array %s has %d elements of zero size", ErrParse, td.Name, n)
	case n*int64(stride) > int64(td.Size):
		return Value{}, fmt.Errorf("%w: inline array %s needs %d x %d bytes, type size is %d", ErrParse, td.Name, n, stride, td.Size)
	case pos+n*int64(stride) > int64(d.buf.Len()):
		return Value{}, fmt.Errorf("%w: inline array at %d needs %d x %d bytes", ErrOutOfData, pos, n, stride)
	}

	v := Value{
		Kind:       KindArray,
		TypeHash:   td.TypeHash,
		DataOffset: pos,
		InfoOffset: pos,
		Count:      td.ElementLength,
		Width:      int(td.Size),
		Elems:      make([]Value, 0, n),
	}
	for i := range n {
		ev, err := d.value(td.ElementTypeHash, base, pos+i*int64(stride), depth+1)
		if err != nil {
			return Value{}, fmt.Errorf("%s[%d]: %w", td.Name, i, err)
		}
		v.Elems = append(v.Elems, ev)
	}

	return v, nil
}
