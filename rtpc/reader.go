// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

// Package rtpc parses RTPC property trees. Every property records where its
// payload lives so scalar values can be rewritten in place.
package rtpc

import (
	"fmt"
	"math"

	"github.com/xuexu/cotw-mod-builder-sub000/buffer"
)

// File is a parsed RTPC image.
type File struct {
	data    []byte
	Root    Node
	Version uint32
}

// Parse decodes an RTPC image. data is retained.
func Parse(data []byte) (*File, error) {
	if len(data) < HeaderSize+NodeSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrOutOfData, len(data))
	}
	if string(data[:4]) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrParse, data[:4])
	}

	buf := buffer.New(data)
	version, _ := buf.ReadU32(4)
	if version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrParse, version)
	}

	p := parser{buf: buf}
	root, err := p.node(HeaderSize, 0)
	if err != nil {
		return nil, err
	}

	return &File{data: data, Version: version, Root: root}, nil
}

// Bytes returns the image the file was parsed from.
func (f *File) Bytes() []byte {
	return f.data
}

// Walk visits every node in pre-order. Returning false from fn skips the
// node's children.
func (f *File) Walk(fn func(*Node) bool) {
	walk(&f.Root, fn)
}

func walk(n *Node, fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for i := range n.Children {
		walk(&n.Children[i], fn)
	}
}

// Lookup resolves a node path of names and a final property name.
func (f *File) Lookup(nodes []string, property string) (*Property, error) {
	hashes := make([]uint32, len(nodes))
	for i, n := range nodes {
		hashes[i] = HashName(n)
	}

	node, ok := f.Root.Find(hashes...)
	if !ok {
		return nil, fmt.Errorf("%w: node %v", ErrNotFound, nodes)
	}

	prop, ok := node.Property(HashName(property))
	if !ok {
		return nil, fmt.Errorf("%w: property %q in node %v", ErrNotFound, property, nodes)
	}

	return prop, nil
}

type parser struct {
	buf *buffer.Buffer
}

func (p *parser) node(pos int64, depth int) (Node, error) {
	if depth > maxDepth {
		return Node{}, fmt.Errorf("%w: nesting deeper than %d at %d", ErrParse, maxDepth, pos)
	}

	if _, err := p.buf.ReadBytes(pos, NodeSize); err != nil {
		return Node{}, fmt.Errorf("%w: node at %d: %w", ErrOutOfData, pos, err)
	}
	name, _ := p.buf.ReadU32(pos)
	dataOffset, _ := p.buf.ReadU32(pos + 4)
	propCount, _ := p.buf.ReadU16(pos + 8)
	childCount, _ := p.buf.ReadU16(pos + 10)

	n := Node{
		Pos:        pos,
		NameHash:   name,
		DataOffset: dataOffset,
		Properties: make([]Property, 0, propCount),
		Children:   make([]Node, 0, childCount),
	}

	propBase := int64(dataOffset)
	if (propCount > 0 || childCount > 0) && propBase <= pos {
		return Node{}, fmt.Errorf("%w: node at %d points back to %d", ErrParse, pos, propBase)
	}
	for i := range int64(propCount) {
		prop, err := p.property(propBase + i*PropertySize)
		if err != nil {
			return Node{}, err
		}
		n.Properties = append(n.Properties, prop)
	}

	childBase := align4(propBase + int64(propCount)*PropertySize)
	for i := range int64(childCount) {
		child, err := p.node(childBase+i*NodeSize, depth+1)
		if err != nil {
			return Node{}, err
		}
		n.Children = append(n.Children, child)
	}

	return n, nil
}

func align4(v int64) int64 {
	return (v + 3) &^ 3
}

func (p *parser) property(pos int64) (Property, error) {
	if _, err := p.buf.ReadBytes(pos, PropertySize); err != nil {
		return Property{}, fmt.Errorf("%w: property at %d: %w", ErrOutOfData, pos, err)
	}
	name, _ := p.buf.ReadU32(pos)
	raw, _ := p.buf.ReadU32(pos + 4)
	typ, _ := p.buf.ReadU8(pos + 8)

	prop := Property{
		Pos:      pos,
		NameHash: name,
		Raw:      raw,
		Type:     Type(typ),
		DataPos:  int64(raw),
	}

	if prop.Type.Inline() {
		prop.DataPos = pos + 4
	}

	var err error
	switch prop.Type {
	case TypeNone, TypeDeprecated:
	case TypeU32:
		prop.Uint = uint64(raw)
	case TypeF32:
		prop.Float = math.Float32frombits(raw)
	case TypeString:
		prop.Bytes, err = p.buf.ReadCString(prop.DataPos)
	case TypeVec2, TypeVec3, TypeVec4, TypeMat3x3, TypeMat4x4:
		prop.Floats, err = p.floats(prop.DataPos, prop.Type.floatCount())
	case TypeArrayU32:
		var count uint32
		if count, err = p.buf.ReadU32(prop.DataPos); err == nil {
			prop.Uints, err = p.uints(prop.DataPos+4, int(count))
		}
	case TypeArrayF32:
		var count uint32
		if count, err = p.buf.ReadU32(prop.DataPos); err == nil {
			prop.Floats, err = p.floats(prop.DataPos+4, int(count))
		}
	case TypeArrayU8:
		var count uint32
		if count, err = p.buf.ReadU32(prop.DataPos); err == nil {
			prop.Bytes, err = p.buf.ReadBytes(prop.DataPos+4, int(count))
		}
	case TypeObjectID:
		prop.Uint, err = p.buf.ReadU64(prop.DataPos)
	case TypeEvent:
		var count uint32
		if count, err = p.buf.ReadU32(prop.DataPos); err == nil {
			prop.Events, err = p.events(prop.DataPos+4, int(count))
		}
	default:
		return Property{}, fmt.Errorf("%w: property at %d has type %d", ErrParse, pos, typ)
	}
	if err != nil {
		return Property{}, fmt.Errorf("%w: %s property at %d: %w", ErrOutOfData, prop.Type, pos, err)
	}

	return prop, nil
}

func (p *parser) floats(pos int64, n int) ([]float32, error) {
	if _, err := p.buf.ReadBytes(pos, 4*n); err != nil {
		return nil, err
	}

	out := make([]float32, n)
	for i := range out {
		out[i], _ = p.buf.ReadF32(pos + int64(i)*4)
	}
	return out, nil
}

func (p *parser) uints(pos int64, n int) ([]uint32, error) {
	if _, err := p.buf.ReadBytes(pos, 4*n); err != nil {
		return nil, err
	}

	out := make([]uint32, n)
	for i := range out {
		out[i], _ = p.buf.ReadU32(pos + int64(i)*4)
	}
	return out, nil
}

func (p *parser) events(pos int64, n int) ([]uint64, error) {
	if _, err := p.buf.ReadBytes(pos, 8*n); err != nil {
		return nil, err
	}

	out := make([]uint64, n)
	for i := range out {
		out[i], _ = p.buf.ReadU64(pos + int64(i)*8)
	}
	return out, nil
}
