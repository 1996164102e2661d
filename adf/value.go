// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package adf

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the variant tag of a Value.
type Kind uint8

// Value kinds.
const (
	KindInvalid Kind = iota
	KindBool
	KindU8
	KindI8
	KindU16
	KindI16
	KindU32
	KindI32
	KindU64
	KindI64
	KindF32
	KindF64
	KindString
	KindArray
	KindStruct
	KindDeferred
	// KindRaw covers bitfields, enumerations, pointers and string hashes.
	KindRaw
)

var kindNames = [...]string{
	KindInvalid:  "invalid",
	KindBool:     "bool",
	KindU8:       "u8",
	KindI8:       "i8",
	KindU16:      "u16",
	KindI16:      "i16",
	KindU32:      "u32",
	KindI32:      "i32",
	KindU64:      "u64",
	KindI64:      "i64",
	KindF32:      "f32",
	KindF64:      "f64",
	KindString:   "string",
	KindArray:    "array",
	KindStruct:   "struct",
	KindDeferred: "deferred",
	KindRaw:      "raw",
}

// String returns the lowercase kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Field is one named member of a struct value.
type Field struct {
	Name  string
	Value Value
}

// Value is a decoded ADF value annotated with its absolute file offsets.
//
// DataOffset is where the payload begins. For strings, arrays and deferred
// values InfoOffset is where the owning pointer or descriptor lives; for
// scalars it equals DataOffset.
type Value struct {
	// Bytes holds string contents, without the terminator.
	Bytes []byte
	// Elems holds array elements and the single deferred payload.
	Elems  []Value
	Fields []Field

	DataOffset int64
	InfoOffset int64
	Uint       uint64
	Int        int64
	Float      float64

	TypeHash uint32
	Count    uint32
	// Width is the in-file byte width of a scalar, or the pointer width of
	// a string.
	Width int
	Kind  Kind
	Bool  bool
}

// IsScalar reports whether v can be rewritten in place by Width bytes.
func (v *Value) IsScalar() bool {
	switch v.Kind {
	case KindBool, KindU8, KindI8, KindU16, KindI16, KindU32, KindI32,
		KindU64, KindI64, KindF32, KindF64, KindRaw:
		return true
	default:
		return false
	}
}

// AsUint returns v as an unsigned integer. Signed kinds must be non-negative.
func (v *Value) AsUint() (uint64, bool) {
	switch v.Kind {
	case KindU8, KindU16, KindU32, KindU64, KindRaw:
		return v.Uint, true
	case KindI8, KindI16, KindI32, KindI64:
		if v.Int < 0 {
			return 0, false
		}
		return uint64(v.Int), true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// AsFloat returns v as a float64 for any numeric kind.
func (v *Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindF32, KindF64:
		return v.Float, true
	case KindI8, KindI16, KindI32, KindI64:
		return float64(v.Int), true
	case KindU8, KindU16, KindU32, KindU64, KindRaw:
		return float64(v.Uint), true
	default:
		return 0, false
	}
}

// Field returns the struct member with the given name.
func (v *Value) Field(name string) (*Value, bool) {
	if v.Kind != KindStruct {
		return nil, false
	}

	for i := range v.Fields {
		if v.Fields[i].Name == name {
			return &v.Fields[i].Value, true
		}
	}

	return nil, false
}

// Index returns array element i, or the payload of a deferred value at 0.
func (v *Value) Index(i int) (*Value, bool) {
	if v.Kind != KindArray && v.Kind != KindDeferred {
		return nil, false
	}
	if i < 0 || i >= len(v.Elems) {
		return nil, false
	}

	return &v.Elems[i], true
}

// Lookup resolves a dotted path such as "Sheet[0].CellIndex[3]".
// Deferred values are looked through transparently when a field is named.
func (v *Value) Lookup(path string) (*Value, error) {
	cur := v
	for _, seg := range strings.Split(path, ".") {
		name, indexes, err := splitSegment(seg)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrPathNotFound, path, err)
		}

		if name != "" {
			for cur.Kind == KindDeferred && len(cur.Elems) == 1 {
				cur = &cur.Elems[0]
			}
			next, ok := cur.Field(name)
			if !ok {
				return nil, fmt.Errorf("%w: %q: no field %q", ErrPathNotFound, path, name)
			}
			cur = next
		}

		for _, idx := range indexes {
			next, ok := cur.Index(idx)
			if !ok {
				return nil, fmt.Errorf("%w: %q: index %d of %s with %d elements", ErrPathNotFound, path, idx, cur.Kind, len(cur.Elems))
			}
			cur = next
		}
	}

	return cur, nil
}

// splitSegment parses "Name[1][2]" into its name and index list.
func splitSegment(seg string) (string, []int, error) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		if seg == "" {
			return "", nil, fmt.Errorf("empty segment")
		}
		return seg, nil, nil
	}

	name := seg[:open]
	rest := seg[open:]
	var indexes []int
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("unexpected %q", rest)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", nil, fmt.Errorf("unterminated index in %q", seg)
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil || n < 0 {
			return "", nil, fmt.Errorf("bad index %q", rest[1:end])
		}
		indexes = append(indexes, n)
		rest = rest[end+1:]
	}

	return name, indexes, nil
}

// Walk calls fn for v and every nested value in pre-order.
func (v *Value) Walk(fn func(*Value)) {
	fn(v)
	for i := range v.Fields {
		v.Fields[i].Value.Walk(fn)
	}
	for i := range v.Elems {
		v.Elems[i].Walk(fn)
	}
}
