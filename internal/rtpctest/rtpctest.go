// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

// Package rtpctest assembles RTPC images for tests.
package rtpctest

import (
	"encoding/binary"
	"math"

	"github.com/xuexu/cotw-mod-builder-sub000/rtpc"
)

// Prop is one property to emit. Inline types use Raw; the others point at
// Payload.
type Prop struct {
	Payload []byte
	Name    string
	Raw     uint32
	Type    rtpc.Type
}

// Node is one node to emit.
type Node struct {
	Name     string
	Props    []Prop
	Children []Node
}

// U32 returns an inline u32 property.
func U32(name string, v uint32) Prop {
	return Prop{Name: name, Type: rtpc.TypeU32, Raw: v}
}

// F32 returns an inline f32 property.
func F32(name string, v float32) Prop {
	return Prop{Name: name, Type: rtpc.TypeF32, Raw: math.Float32bits(v)}
}

// Str returns a string property.
func Str(name, s string) Prop {
	return Prop{Name: name, Type: rtpc.TypeString, Payload: append([]byte(s), 0)}
}

// Floats returns a vector, matrix or array_f32 property. Arrays get their
// count prefix here.
func Floats(name string, typ rtpc.Type, vs ...float32) Prop {
	var out []byte
	if typ == rtpc.TypeArrayF32 {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(vs))) //nolint:gosec // small
	}
	for _, v := range vs {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return Prop{Name: name, Type: typ, Payload: out}
}

// Uints returns an array_u32 property.
func Uints(name string, vs ...uint32) Prop {
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(vs))) //nolint:gosec // small
	for _, v := range vs {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	return Prop{Name: name, Type: rtpc.TypeArrayU32, Payload: out}
}

// Bytes returns the RTPC image with n as root.
func Bytes(n Node) []byte {
	out := []byte(rtpc.Magic)
	out = binary.LittleEndian.AppendUint32(out, rtpc.Version)
	out = append(out, make([]byte, rtpc.NodeSize)...)
	return emit(out, rtpc.HeaderSize, n)
}

func pad4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func emit(out []byte, rec int, n Node) []byte {
	le := binary.LittleEndian
	out = pad4(out)
	data := len(out)
	le.PutUint32(out[rec:], rtpc.HashName(n.Name))
	le.PutUint32(out[rec+4:], uint32(data))             //nolint:gosec // small
	le.PutUint16(out[rec+8:], uint16(len(n.Props)))     //nolint:gosec // small
	le.PutUint16(out[rec+10:], uint16(len(n.Children))) //nolint:gosec // small

	out = append(out, make([]byte, rtpc.PropertySize*len(n.Props))...)
	out = pad4(out)
	children := len(out)
	out = append(out, make([]byte, rtpc.NodeSize*len(n.Children))...)

	for i, p := range n.Props {
		at := data + i*rtpc.PropertySize
		raw := p.Raw
		if !p.Type.Inline() {
			out = pad4(out)
			raw = uint32(len(out)) //nolint:gosec // small
			out = append(out, p.Payload...)
		}
		le.PutUint32(out[at:], rtpc.HashName(p.Name))
		le.PutUint32(out[at+4:], raw)
		out[at+8] = byte(p.Type)
	}

	for i, c := range n.Children {
		out = emit(out, children+i*rtpc.NodeSize, c)
	}

	return out
}
