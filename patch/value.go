// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package patch

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the on-disk encoding of a Value.
type Kind uint8

// Value kinds.
const (
	KindInvalid Kind = iota
	KindU8
	KindI8
	KindU16
	KindI16
	KindU32
	KindI32
	KindF32
	KindF64
	// KindBytes is a raw byte run written as is.
	KindBytes
	// KindString is a NUL-terminated string overwritten at equal length.
	KindString
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindU8:      "u8",
	KindI8:      "i8",
	KindU16:     "u16",
	KindI16:     "i16",
	KindU32:     "u32",
	KindI32:     "i32",
	KindF32:     "f32",
	KindF64:     "f64",
	KindBytes:   "bytes",
	KindString:  "string",
}

// String returns the short kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind resolves a kind name such as "u32" or "f32".
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name && Kind(k) != KindInvalid {
			return Kind(k), nil
		}
	}

	return KindInvalid, fmt.Errorf("%w: unknown value type %q", ErrIncorrectFileFormat, name)
}

// IsFloat reports a floating point kind.
func (k Kind) IsFloat() bool {
	return k == KindF32 || k == KindF64
}

// IsInt reports an integer kind.
func (k Kind) IsInt() bool {
	return k >= KindU8 && k <= KindI32
}

// Width returns the encoded width of fixed-size kinds and 0 otherwise.
func (k Kind) Width() int {
	switch k {
	case KindU8, KindI8:
		return 1
	case KindU16, KindI16:
		return 2
	case KindU32, KindI32, KindF32:
		return 4
	case KindF64:
		return 8
	default:
		return 0
	}
}

// signed reports a signed integer kind.
func (k Kind) signed() bool {
	return k == KindI8 || k == KindI16 || k == KindI32
}

// Value is a typed scalar or byte run to be written.
type Value struct {
	Bytes []byte
	Int   int64
	Float float64
	Kind  Kind
}

// Typed scalar constructors.
func U8(v uint8) Value    { return Value{Kind: KindU8, Int: int64(v)} }
func I8(v int8) Value     { return Value{Kind: KindI8, Int: int64(v)} }
func U16(v uint16) Value  { return Value{Kind: KindU16, Int: int64(v)} }
func I16(v int16) Value   { return Value{Kind: KindI16, Int: int64(v)} }
func U32(v uint32) Value  { return Value{Kind: KindU32, Int: int64(v)} }
func I32(v int32) Value   { return Value{Kind: KindI32, Int: int64(v)} }
func F32(v float32) Value { return Value{Kind: KindF32, Float: float64(v)} }
func F64(v float64) Value { return Value{Kind: KindF64, Float: v} }

// Bytes returns a raw byte-run value.
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

// String returns an equal-length string overwrite value.
func String(b []byte) Value { return Value{Kind: KindString, Bytes: b} }

// Parse builds a value of kind from its text form.
func Parse(kind Kind, text string) (Value, error) {
	text = strings.TrimSpace(text)
	switch {
	case kind.IsFloat():
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s value %q", ErrIncorrectFileFormat, kind, text)
		}
		if kind == KindF32 {
			return F32(float32(f)), nil
		}
		return F64(f), nil
	case kind.IsInt():
		n, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s value %q", ErrIncorrectFileFormat, kind, text)
		}
		if err := checkRange(kind, n); err != nil {
			return Value{}, err
		}
		return Value{Kind: kind, Int: n}, nil
	case kind == KindBytes || kind == KindString:
		return Value{Kind: kind, Bytes: []byte(text)}, nil
	default:
		return Value{}, fmt.Errorf("%w: %s", ErrIncorrectFileFormat, kind)
	}
}

// String formats the value for logs.
func (v Value) String() string {
	switch {
	case v.Kind.IsFloat():
		return v.Kind.String() + ":" + strconv.FormatFloat(v.Float, 'g', -1, 64)
	case v.Kind.IsInt():
		return v.Kind.String() + ":" + strconv.FormatInt(v.Int, 10)
	default:
		return v.Kind.String() + ":" + strconv.Quote(string(v.Bytes))
	}
}

// withWidth returns the kind used to encode v at width bytes. Zero keeps
// the natural kind.
func (v Value) withWidth(width int) (Kind, error) {
	if width == 0 || width == v.Kind.Width() {
		return v.Kind, nil
	}

	switch {
	case v.Kind.IsFloat():
		switch width {
		case 4:
			return KindF32, nil
		case 8:
			return KindF64, nil
		}
	case v.Kind.IsInt():
		signed := v.Kind.signed()
		switch width {
		case 1:
			return pick(signed, KindI8, KindU8), nil
		case 2:
			return pick(signed, KindI16, KindU16), nil
		case 4:
			return pick(signed, KindI32, KindU32), nil
		}
	}

	return KindInvalid, fmt.Errorf("%w: %d bytes for %s", ErrInvalidWidth, width, v.Kind)
}

func pick(cond bool, a, b Kind) Kind {
	if cond {
		return a
	}

	return b
}

// checkRange validates that n is representable in kind.
func checkRange(kind Kind, n int64) error {
	var lo, hi int64
	switch kind {
	case KindU8:
		lo, hi = 0, 1<<8-1
	case KindI8:
		lo, hi = -1<<7, 1<<7-1
	case KindU16:
		lo, hi = 0, 1<<16-1
	case KindI16:
		lo, hi = -1<<15, 1<<15-1
	case KindU32:
		lo, hi = 0, 1<<32-1
	case KindI32:
		lo, hi = -1<<31, 1<<31-1
	default:
		return nil
	}

	if n < lo || n > hi {
		return fmt.Errorf("%w: %d as %s", ErrValueRange, n, kind)
	}

	return nil
}
