package buffer

import (
	"bytes"
	"errors"
	"testing"
)

func TestTypedReadWrite(t *testing.T) {
	t.Parallel()

	b := New(make([]byte, 16))
	if err := b.WriteU32(0, 0xdeadbeef); err != nil {
		t.Fatalf("WriteU32: %v", err)
	}
	if err := b.WriteI16(4, -2); err != nil {
		t.Fatalf("WriteI16: %v", err)
	}
	if err := b.WriteF32(8, 1.5); err != nil {
		t.Fatalf("WriteF32: %v", err)
	}
	if err := b.WriteU8(12, 7); err != nil {
		t.Fatalf("WriteU8: %v", err)
	}

	if got := b.Bytes()[:4]; !bytes.Equal(got, []byte{0xef, 0xbe, 0xad, 0xde}) {
		t.Fatalf("u32 bytes=% x, want little-endian", got)
	}

	u32, err := b.ReadU32(0)
	if err != nil || u32 != 0xdeadbeef {
		t.Fatalf("ReadU32=%#x err=%v", u32, err)
	}

	i16, err := b.ReadI16(4)
	if err != nil || i16 != -2 {
		t.Fatalf("ReadI16=%d err=%v", i16, err)
	}

	f32, err := b.ReadF32(8)
	if err != nil || f32 != 1.5 {
		t.Fatalf("ReadF32=%v err=%v", f32, err)
	}

	u8, err := b.ReadU8(12)
	if err != nil || u8 != 7 {
		t.Fatalf("ReadU8=%d err=%v", u8, err)
	}
}

func TestBounds(t *testing.T) {
	t.Parallel()

	b := New(make([]byte, 6))
	testCases := []struct {
		name string
		fn   func() error
	}{
		{name: "u32 straddles end", fn: func() error { _, err := b.ReadU32(4); return err }},
		{name: "negative offset", fn: func() error { _, err := b.ReadU8(-1); return err }},
		{name: "write past end", fn: func() error { return b.WriteU16(5, 1) }},
		{name: "bytes past end", fn: func() error { return b.WriteBytes(3, []byte("abcd")) }},
		{name: "splice past end", fn: func() error { return b.Splice(4, 3, nil) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.fn(); !errors.Is(err, ErrBounds) {
				t.Fatalf("expected ErrBounds, got %v", err)
			}
		})
	}
}

func TestSplice(t *testing.T) {
	t.Parallel()

	b := New([]byte("0123456789"))
	if err := b.Splice(2, 3, []byte("abcdef")); err != nil {
		t.Fatalf("Splice: %v", err)
	}
	if got := string(b.Bytes()); got != "01abcdef56789" {
		t.Fatalf("after grow=%q", got)
	}

	if err := b.Splice(0, 8, nil); err != nil {
		t.Fatalf("Splice remove: %v", err)
	}
	if got := string(b.Bytes()); got != "56789" {
		t.Fatalf("after shrink=%q", got)
	}
}

func TestReadCString(t *testing.T) {
	t.Parallel()

	b := New([]byte("abc\x00def"))
	s, err := b.ReadCString(0)
	if err != nil || string(s) != "abc" {
		t.Fatalf("ReadCString=%q err=%v", s, err)
	}

	if _, err := b.ReadCString(4); !errors.Is(err, ErrBounds) {
		t.Fatalf("expected ErrBounds for unterminated string, got %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	b := New([]byte{1, 2, 3})
	c := b.Clone()
	if err := c.WriteU8(0, 9); err != nil {
		t.Fatal(err)
	}
	if b.Bytes()[0] != 1 {
		t.Fatal("clone shares storage with source")
	}
}
