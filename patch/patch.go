// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

// Package patch applies typed fixed-width writes to a file image.
//
// A write never shifts bytes. Strings are overwritten only at their current
// length; length-changing edits go through the adf splice path instead.
package patch

import (
	"bytes"
	"fmt"
	"os"

	"github.com/xuexu/cotw-mod-builder-sub000/buffer"
	"github.com/xuexu/cotw-mod-builder-sub000/internal/fsutil"
)

// Transform selects how a write combines with the current value.
type Transform string

// Supported transforms. The zero value behaves like TransformSet.
const (
	TransformSet      Transform = "set"
	TransformAdd      Transform = "add"
	TransformMultiply Transform = "multiply"
)

// Write is one planned edit at an absolute offset.
type Write struct {
	Value     Value     `json:"value" yaml:"value"`
	Transform Transform `json:"transform,omitempty" yaml:"transform,omitempty"`
	Offset    int64     `json:"offset" yaml:"offset"`
	// Width overrides the encoded width in bytes. Zero uses the value kind.
	Width int `json:"width,omitempty" yaml:"width,omitempty"`
}

// Apply performs writes on buf in order. On error buf may hold a prefix of
// the writes; use ApplyBytes to stage on a copy.
func Apply(buf *buffer.Buffer, writes []Write) error {
	for i, w := range writes {
		if err := apply(buf, w); err != nil {
			return fmt.Errorf("write %d at %d: %w", i, w.Offset, err)
		}
	}

	return nil
}

// ApplyBytes applies writes to a copy of data and returns it.
func ApplyBytes(data []byte, writes []Write) ([]byte, error) {
	buf := buffer.New(bytes.Clone(data))
	if err := Apply(buf, writes); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ApplyFile applies writes to the file at path. The file is replaced by
// rename only when every write succeeds.
func ApplyFile(path string, writes []Write) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	out, err := ApplyBytes(data, writes)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	return fsutil.WriteFileAtomic(path, out, info.Mode().Perm())
}

// apply performs one write.
func apply(buf *buffer.Buffer, w Write) error {
	transform := w.Transform
	if transform == "" {
		transform = TransformSet
	}
	if transform != TransformSet && transform != TransformAdd && transform != TransformMultiply {
		return fmt.Errorf("%w: %q", ErrUnknownTransform, w.Transform)
	}

	switch w.Value.Kind {
	case KindBytes:
		if transform != TransformSet {
			return fmt.Errorf("%w: %s on bytes", ErrUnknownTransform, transform)
		}
		return buf.WriteBytes(w.Offset, w.Value.Bytes)
	case KindString:
		if transform != TransformSet {
			return fmt.Errorf("%w: %s on string", ErrUnknownTransform, transform)
		}
		return writeString(buf, w.Offset, w.Value.Bytes)
	}

	kind, err := w.Value.withWidth(w.Width)
	if err != nil {
		return err
	}

	if kind.IsFloat() {
		v := w.Value.Float
		if transform != TransformSet {
			cur, err := readFloat(buf, w.Offset, kind)
			if err != nil {
				return err
			}
			v = combineFloat(cur, v, transform)
		}
		return writeFloat(buf, w.Offset, kind, v)
	}

	v := w.Value.Int
	if transform != TransformSet {
		cur, err := readInt(buf, w.Offset, kind)
		if err != nil {
			return err
		}
		v, err = combineInt(cur, v, transform)
		if err != nil {
			return err
		}
	}

	if err := checkRange(kind, v); err != nil {
		return err
	}

	return writeInt(buf, w.Offset, kind, v)
}

// writeString overwrites the NUL-terminated string at off with s of equal length.
func writeString(buf *buffer.Buffer, off int64, s []byte) error {
	if bytes.IndexByte(s, 0) >= 0 {
		return fmt.Errorf("%w: string value contains NUL", ErrIncorrectFileFormat)
	}

	old, err := buf.ReadCString(off)
	if err != nil {
		return err
	}
	if len(old) != len(s) {
		return fmt.Errorf("%w: string at %d has %d bytes, new value has %d", ErrIncorrectFileFormat, off, len(old), len(s))
	}

	return buf.WriteBytes(off, s)
}

func combineFloat(cur, v float64, t Transform) float64 {
	if t == TransformMultiply {
		return cur * v
	}

	return cur + v
}

func combineInt(cur, v int64, t Transform) (int64, error) {
	if t == TransformMultiply {
		p := cur * v
		if v != 0 && p/v != cur {
			return 0, fmt.Errorf("%w: %d * %d", ErrValueRange, cur, v)
		}
		return p, nil
	}

	return cur + v, nil
}

func readFloat(buf *buffer.Buffer, off int64, kind Kind) (float64, error) {
	if kind == KindF64 {
		return buf.ReadF64(off)
	}

	v, err := buf.ReadF32(off)
	return float64(v), err
}

func writeFloat(buf *buffer.Buffer, off int64, kind Kind, v float64) error {
	if kind == KindF64 {
		return buf.WriteF64(off, v)
	}

	return buf.WriteF32(off, float32(v))
}

func readInt(buf *buffer.Buffer, off int64, kind Kind) (int64, error) {
	switch kind {
	case KindU8:
		v, err := buf.ReadU8(off)
		return int64(v), err
	case KindI8:
		v, err := buf.ReadI8(off)
		return int64(v), err
	case KindU16:
		v, err := buf.ReadU16(off)
		return int64(v), err
	case KindI16:
		v, err := buf.ReadI16(off)
		return int64(v), err
	case KindU32:
		v, err := buf.ReadU32(off)
		return int64(v), err
	case KindI32:
		v, err := buf.ReadI32(off)
		return int64(v), err
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidWidth, kind)
	}
}

func writeInt(buf *buffer.Buffer, off int64, kind Kind, v int64) error {
	switch kind {
	case KindU8:
		return buf.WriteU8(off, uint8(v))
	case KindI8:
		return buf.WriteI8(off, int8(v))
	case KindU16:
		return buf.WriteU16(off, uint16(v))
	case KindI16:
		return buf.WriteI16(off, int16(v))
	case KindU32:
		return buf.WriteU32(off, uint32(v))
	case KindI32:
		return buf.WriteI32(off, int32(v))
	default:
		return fmt.Errorf("%w: %s", ErrInvalidWidth, kind)
	}
}
