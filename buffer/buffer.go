// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

// Package buffer provides a bounds-checked little-endian byte view used as
// the working image of one file under edit.
//
// Offsets are absolute. Typed reads and writes never grow the buffer; Splice
// is the only operation that shifts bytes, and it does not adjust any offsets
// stored inside the data.
package buffer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrBounds means an access falls outside the buffer.
var ErrBounds = errors.New("offset out of bounds")

// Buffer is a mutable byte image of one file.
type Buffer struct {
	data []byte
}

// New wraps data without copying.
func New(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Clone returns a deep copy of b.
func (b *Buffer) Clone() *Buffer {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return &Buffer{data: out}
}

// Bytes returns the underlying image. The slice is shared with the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the image size in bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// check validates that [off, off+n) lies inside the buffer.
func (b *Buffer) check(off int64, n int) error {
	if off < 0 || n < 0 || off > int64(len(b.data)) || int64(n) > int64(len(b.data))-off {
		return fmt.Errorf("%w: offset %d width %d size %d", ErrBounds, off, n, len(b.data))
	}

	return nil
}

// ReadBytes returns a copy of n bytes at off.
func (b *Buffer) ReadBytes(off int64, n int) ([]byte, error) {
	if err := b.check(off, n); err != nil {
		return nil, err
	}

	out := make([]byte, n)
	copy(out, b.data[off:off+int64(n)])
	return out, nil
}

// WriteBytes overwrites len(p) bytes at off.
func (b *Buffer) WriteBytes(off int64, p []byte) error {
	if err := b.check(off, len(p)); err != nil {
		return err
	}

	copy(b.data[off:], p)
	return nil
}

// ReadCString reads a NUL-terminated byte string at off. The terminator is
// not included in the result.
func (b *Buffer) ReadCString(off int64) ([]byte, error) {
	if err := b.check(off, 0); err != nil {
		return nil, err
	}

	idx := bytes.IndexByte(b.data[off:], 0)
	if idx < 0 {
		return nil, fmt.Errorf("%w: unterminated string at %d", ErrBounds, off)
	}

	out := make([]byte, idx)
	copy(out, b.data[off:off+int64(idx)])
	return out, nil
}

// Splice removes remove bytes at off and inserts p in their place.
func (b *Buffer) Splice(off int64, remove int, p []byte) error {
	if err := b.check(off, remove); err != nil {
		return err
	}

	tail := b.data[off+int64(remove):]
	out := make([]byte, 0, len(b.data)-remove+len(p))
	out = append(out, b.data[:off]...)
	out = append(out, p...)
	out = append(out, tail...)
	b.data = out
	return nil
}

// ReadU8 reads one unsigned byte.
func (b *Buffer) ReadU8(off int64) (uint8, error) {
	if err := b.check(off, 1); err != nil {
		return 0, err
	}

	return b.data[off], nil
}

// ReadI8 reads one signed byte.
func (b *Buffer) ReadI8(off int64) (int8, error) {
	v, err := b.ReadU8(off)
	return int8(v), err //nolint:gosec // two's complement reinterpretation
}

// ReadU16 reads a little-endian uint16.
func (b *Buffer) ReadU16(off int64) (uint16, error) {
	if err := b.check(off, 2); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(b.data[off:]), nil
}

// ReadI16 reads a little-endian int16.
func (b *Buffer) ReadI16(off int64) (int16, error) {
	v, err := b.ReadU16(off)
	return int16(v), err //nolint:gosec // two's complement reinterpretation
}

// ReadU32 reads a little-endian uint32.
func (b *Buffer) ReadU32(off int64) (uint32, error) {
	if err := b.check(off, 4); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b.data[off:]), nil
}

// ReadI32 reads a little-endian int32.
func (b *Buffer) ReadI32(off int64) (int32, error) {
	v, err := b.ReadU32(off)
	return int32(v), err //nolint:gosec // two's complement reinterpretation
}

// ReadU64 reads a little-endian uint64.
func (b *Buffer) ReadU64(off int64) (uint64, error) {
	if err := b.check(off, 8); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b.data[off:]), nil
}

// ReadF32 reads a little-endian IEEE-754 float32.
func (b *Buffer) ReadF32(off int64) (float32, error) {
	v, err := b.ReadU32(off)
	return math.Float32frombits(v), err
}

// ReadF64 reads a little-endian IEEE-754 float64.
func (b *Buffer) ReadF64(off int64) (float64, error) {
	v, err := b.ReadU64(off)
	return math.Float64frombits(v), err
}

// WriteU8 writes one byte.
func (b *Buffer) WriteU8(off int64, v uint8) error {
	if err := b.check(off, 1); err != nil {
		return err
	}

	b.data[off] = v
	return nil
}

// WriteI8 writes one signed byte.
func (b *Buffer) WriteI8(off int64, v int8) error {
	return b.WriteU8(off, uint8(v)) //nolint:gosec // two's complement reinterpretation
}

// WriteU16 writes a little-endian uint16.
func (b *Buffer) WriteU16(off int64, v uint16) error {
	if err := b.check(off, 2); err != nil {
		return err
	}

	binary.LittleEndian.PutUint16(b.data[off:], v)
	return nil
}

// WriteI16 writes a little-endian int16.
func (b *Buffer) WriteI16(off int64, v int16) error {
	return b.WriteU16(off, uint16(v)) //nolint:gosec // two's complement reinterpretation
}

// WriteU32 writes a little-endian uint32.
func (b *Buffer) WriteU32(off int64, v uint32) error {
	if err := b.check(off, 4); err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(b.data[off:], v)
	return nil
}

// WriteI32 writes a little-endian int32.
func (b *Buffer) WriteI32(off int64, v int32) error {
	return b.WriteU32(off, uint32(v)) //nolint:gosec // two's complement reinterpretation
}

// WriteU64 writes a little-endian uint64.
func (b *Buffer) WriteU64(off int64, v uint64) error {
	if err := b.check(off, 8); err != nil {
		return err
	}

	binary.LittleEndian.PutUint64(b.data[off:], v)
	return nil
}

// WriteF32 writes a little-endian float32.
func (b *Buffer) WriteF32(off int64, v float32) error {
	return b.WriteU32(off, math.Float32bits(v))
}

// WriteF64 writes a little-endian float64.
func (b *Buffer) WriteF64(off int64, v float64) error {
	return b.WriteU64(off, math.Float64bits(v))
}
