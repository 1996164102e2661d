// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

// Package adftest assembles small ADF images for tests.
package adftest

import (
	"encoding/binary"
	"math"

	"github.com/xuexu/cotw-mod-builder-sub000/adf"
)

// Instance is one top-level value with its pre-laid-out bytes. Pointers
// inside Data are relative to the start of Data.
type Instance struct {
	Name     string
	Data     []byte
	TypeHash uint32
}

// Image describes a whole ADF file.
type Image struct {
	Comment   string
	Types     []adf.TypeDef
	Instances []Instance
}

type names struct {
	index map[string]uint64
	list  []string
}

func (n *names) add(s string) uint64 {
	if n.index == nil {
		n.index = make(map[string]uint64)
	}
	if i, ok := n.index[s]; ok {
		return i
	}

	i := uint64(len(n.list))
	n.index[s] = i
	n.list = append(n.list, s)
	return i
}

func pad(b []byte, a int) []byte {
	for len(b)%a != 0 {
		b = append(b, 0)
	}
	return b
}

// Bytes serializes the image: header, comment, instance table, instance
// data, type table, string hash table and name table.
func (img *Image) Bytes() []byte {
	var nt names
	for _, inst := range img.Instances {
		nt.add(inst.Name)
	}
	for _, td := range img.Types {
		nt.add(td.Name)
		for _, m := range td.Members {
			nt.add(m.Name)
		}
		for _, e := range td.Enum {
			nt.add(e.Name)
		}
	}

	le := binary.LittleEndian
	out := make([]byte, adf.HeaderCommentOffset)
	out = append(out, img.Comment...)
	out = append(out, 0)
	out = pad(out, 16)

	instanceStart := len(out)
	out = append(out, make([]byte, adf.InstanceEntrySize*len(img.Instances))...)
	out = pad(out, 16)

	for i, inst := range img.Instances {
		offset := len(out)
		out = append(out, inst.Data...)
		out = pad(out, 16)

		entry := out[instanceStart+i*adf.InstanceEntrySize:]
		le.PutUint32(entry[0:], 0x1000+uint32(i)) //nolint:gosec // small
		le.PutUint32(entry[4:], inst.TypeHash)
		le.PutUint32(entry[8:], uint32(offset))         //nolint:gosec // small
		le.PutUint32(entry[12:], uint32(len(inst.Data))) //nolint:gosec // small
		le.PutUint64(entry[16:], nt.add(inst.Name))
	}

	typedefStart := len(out)
	for _, td := range img.Types {
		out = le.AppendUint32(out, uint32(td.MetaType))
		out = le.AppendUint32(out, td.Size)
		out = le.AppendUint32(out, td.Alignment)
		out = le.AppendUint32(out, td.TypeHash)
		out = le.AppendUint64(out, nt.add(td.Name))
		out = le.AppendUint32(out, td.Flags)
		out = le.AppendUint32(out, td.ElementTypeHash)
		out = le.AppendUint32(out, td.ElementLength)
		switch td.MetaType {
		case adf.MetaStructure:
			out = le.AppendUint32(out, uint32(len(td.Members))) //nolint:gosec // small
			for _, m := range td.Members {
				out = le.AppendUint64(out, nt.add(m.Name))
				out = le.AppendUint32(out, m.TypeHash)
				out = le.AppendUint32(out, m.Size)
				out = le.AppendUint32(out, m.Offset|uint32(m.BitOffset)<<24)
				out = le.AppendUint32(out, m.DefaultType)
				out = le.AppendUint64(out, m.DefaultValue)
			}
		case adf.MetaEnumeration:
			out = le.AppendUint32(out, uint32(len(td.Enum))) //nolint:gosec // small
			for _, e := range td.Enum {
				out = le.AppendUint64(out, nt.add(e.Name))
				out = le.AppendUint32(out, e.Value)
			}
		default:
			out = le.AppendUint32(out, 0)
		}
	}

	stringHashStart := len(out)

	nametableStart := len(out)
	for _, s := range nt.list {
		out = append(out, byte(len(s)))
	}
	for _, s := range nt.list {
		out = append(out, s...)
		out = append(out, 0)
	}

	le.PutUint32(out[0:], adf.Magic)
	le.PutUint32(out[4:], adf.Version)
	header := []int{
		len(img.Instances), instanceStart,
		len(img.Types), typedefStart,
		0, stringHashStart,
		len(nt.list), nametableStart,
		len(out),
	}
	for i, v := range header {
		le.PutUint32(out[adf.HeaderInstanceCountOffset+int64(i)*4:], uint32(v)) //nolint:gosec // small
	}

	return out
}

// Layout appends little-endian fields into an instance body and hands out
// instance-relative offsets for pointer patching.
type Layout struct {
	buf []byte
}

// Len returns the current body length.
func (l *Layout) Len() int {
	return len(l.buf)
}

// Bytes returns the body.
func (l *Layout) Bytes() []byte {
	return l.buf
}

// Align pads the body to a multiple of a.
func (l *Layout) Align(a int) {
	l.buf = pad(l.buf, a)
}

// Reserve appends n zero bytes and returns their offset.
func (l *Layout) Reserve(n int) int {
	off := len(l.buf)
	l.buf = append(l.buf, make([]byte, n)...)
	return off
}

// U8 appends one byte and returns its offset.
func (l *Layout) U8(v uint8) int {
	off := len(l.buf)
	l.buf = append(l.buf, v)
	return off
}

// U32 appends a uint32 and returns its offset.
func (l *Layout) U32(v uint32) int {
	off := len(l.buf)
	l.buf = binary.LittleEndian.AppendUint32(l.buf, v)
	return off
}

// F32 appends a float32 and returns its offset.
func (l *Layout) F32(v float32) int {
	off := len(l.buf)
	l.buf = binary.LittleEndian.AppendUint32(l.buf, math.Float32bits(v))
	return off
}

// CString appends s with a terminator and returns its offset.
func (l *Layout) CString(s string) int {
	off := len(l.buf)
	l.buf = append(l.buf, s...)
	l.buf = append(l.buf, 0)
	return off
}

// PutU32 overwrites a uint32 at off.
func (l *Layout) PutU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(l.buf[off:], v)
}

// PutU64 overwrites a uint64 at off.
func (l *Layout) PutU64(off int, v uint64) {
	binary.LittleEndian.PutUint64(l.buf[off:], v)
}

// PutU8 overwrites a byte at off.
func (l *Layout) PutU8(off int, v uint8) {
	l.buf[off] = v
}

// Array points the descriptor at desc to data with count elements.
func (l *Layout) Array(desc, data int, count int) {
	l.PutU32(desc, uint32(data))                       //nolint:gosec // small
	l.PutU32(desc+adf.ArrayCountOffset, uint32(count)) //nolint:gosec // small
}
