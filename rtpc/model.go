// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package rtpc

import "strconv"

// Layout constants of RTPC v1.
const (
	Magic   = "RTPC"
	Version = 1

	HeaderSize   = 8
	NodeSize     = 20
	PropertySize = 9

	maxDepth = 256
)

// Type is the property type tag.
type Type uint8

// Property types.
const (
	TypeNone Type = iota
	TypeU32
	TypeF32
	TypeString
	TypeVec2
	TypeVec3
	TypeVec4
	TypeMat3x3
	TypeMat4x4
	TypeArrayU32
	TypeArrayF32
	TypeArrayU8
	TypeDeprecated
	TypeObjectID
	TypeEvent
)

var typeNames = [...]string{
	TypeNone:       "none",
	TypeU32:        "u32",
	TypeF32:        "f32",
	TypeString:     "str",
	TypeVec2:       "vec2",
	TypeVec3:       "vec3",
	TypeVec4:       "vec4",
	TypeMat3x3:     "mat3x3",
	TypeMat4x4:     "mat4x4",
	TypeArrayU32:   "array_u32",
	TypeArrayF32:   "array_f32",
	TypeArrayU8:    "array_u8",
	TypeDeprecated: "deprecated",
	TypeObjectID:   "objid",
	TypeEvent:      "event",
}

// String returns the type name.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}

	return "type(" + strconv.Itoa(int(t)) + ")"
}

// Inline reports whether the payload is stored in the property record.
func (t Type) Inline() bool {
	return t == TypeU32 || t == TypeF32 || t == TypeNone || t == TypeDeprecated
}

// floatCount returns the element count of fixed-size float payloads.
func (t Type) floatCount() int {
	switch t {
	case TypeVec2:
		return 2
	case TypeVec3:
		return 3
	case TypeVec4:
		return 4
	case TypeMat3x3:
		return 9
	case TypeMat4x4:
		return 16
	default:
		return 0
	}
}

// Property is one decoded property.
type Property struct {
	// Bytes holds string and array_u8 payloads. Text is not decoded.
	Bytes  []byte
	Floats []float32
	Uints  []uint32
	Events []uint64

	// Pos is the position of the 9-byte property record.
	Pos int64
	// DataPos is where the payload starts: inside the record for inline
	// types, at the pointed-to location otherwise. Array payloads start
	// with their u32 element count.
	DataPos int64

	// Uint holds u32 and object id values.
	Uint     uint64
	NameHash uint32
	Raw      uint32
	Float    float32
	Type     Type
}

// Node is one decoded node with its properties and children.
type Node struct {
	Properties []Property
	Children   []Node

	// Pos is the position of the 20-byte node record.
	Pos        int64
	NameHash   uint32
	DataOffset uint32
}

// Property returns the property with the given name hash.
func (n *Node) Property(hash uint32) (*Property, bool) {
	for i := range n.Properties {
		if n.Properties[i].NameHash == hash {
			return &n.Properties[i], true
		}
	}

	return nil, false
}

// Child returns the first child with the given name hash.
func (n *Node) Child(hash uint32) (*Node, bool) {
	for i := range n.Children {
		if n.Children[i].NameHash == hash {
			return &n.Children[i], true
		}
	}

	return nil, false
}

// Find descends through children by name hash.
func (n *Node) Find(hashes ...uint32) (*Node, bool) {
	cur := n
	for _, h := range hashes {
		next, ok := cur.Child(h)
		if !ok {
			return nil, false
		}
		cur = next
	}

	return cur, true
}
