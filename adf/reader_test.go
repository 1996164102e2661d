package adf_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/xuexu/cotw-mod-builder-sub000/adf"
	"github.com/xuexu/cotw-mod-builder-sub000/buffer"
	"github.com/xuexu/cotw-mod-builder-sub000/internal/adftest"
)

func sampleBook() *adftest.Book {
	return &adftest.Book{
		Sheets: []adftest.Sheet{
			{Name: "S", Cols: 2, Rows: 2, CellIndex: []uint32{0, 1, 2, 0}},
		},
		Cells: []adftest.Cell{
			{Type: 2, DataIndex: 0},
			{Type: 1, DataIndex: 1, AttributeIndex: 3},
			{Type: 0, DataIndex: 1},
		},
		Bools:   []bool{false, true},
		Strings: []string{"ABC", "hello"},
		Values:  []float32{5.0, 2.5},
	}
}

func mustParse(t *testing.T, data []byte) *adf.File {
	t.Helper()

	f, err := adf.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return f
}

func mustLookup(t *testing.T, f *adf.File, path string) *adf.Value {
	t.Helper()

	root, err := f.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	v, err := root.Lookup(path)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", path, err)
	}
	return v
}

func TestParseBook(t *testing.T) {
	t.Parallel()

	data := sampleBook().Bytes()
	f := mustParse(t, data)

	if f.Version != adf.Version || string(f.Comment) != "xlsx" {
		t.Fatalf("version=%d comment=%q", f.Version, f.Comment)
	}
	if int(f.TotalSize) != len(data) {
		t.Fatalf("TotalSize=%d, want %d", f.TotalSize, len(data))
	}
	if len(f.Instances) != 1 || f.Instances[0].Name != "XLSBook" {
		t.Fatalf("instances=%+v", f.Instances)
	}

	if v := mustLookup(t, f, "Sheet[0].Name"); v.Kind != adf.KindString || string(v.Bytes) != "S" {
		t.Fatalf("sheet name=%q kind=%s", v.Bytes, v.Kind)
	}
	if v := mustLookup(t, f, "Sheet[0].CellIndex[2]"); v.Kind != adf.KindU32 || v.Uint != 2 {
		t.Fatalf("CellIndex[2]=%+v", v)
	}
	if v := mustLookup(t, f, "Cell[1].Type"); v.Kind != adf.KindU8 || v.Uint != 1 {
		t.Fatalf("Cell[1].Type=%+v", v)
	}
	if v := mustLookup(t, f, "BoolData[1]"); v.Kind != adf.KindBool || !v.Bool || v.Width != 4 {
		t.Fatalf("BoolData[1]=%+v", v)
	}
	if v := mustLookup(t, f, "StringData[1]"); string(v.Bytes) != "hello" {
		t.Fatalf("StringData[1]=%q", v.Bytes)
	}

	pool := mustLookup(t, f, "ValueData")
	if pool.Kind != adf.KindArray || pool.Count != 2 {
		t.Fatalf("ValueData kind=%s count=%d", pool.Kind, pool.Count)
	}
	second := mustLookup(t, f, "ValueData[1]")
	if second.Float != 2.5 || second.DataOffset != pool.DataOffset+4 {
		t.Fatalf("ValueData[1]=%v at %d, pool data at %d", second.Float, second.DataOffset, pool.DataOffset)
	}

	count := binary.LittleEndian.Uint32(data[pool.InfoOffset+adf.ArrayCountOffset:])
	if count != 2 {
		t.Fatalf("descriptor count=%d", count)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	data := sampleBook().Bytes()
	f := mustParse(t, data)
	if !bytes.Equal(f.Bytes(), data) {
		t.Fatal("Bytes() differs from parsed image")
	}
}

func TestOffsetFidelity(t *testing.T) {
	t.Parallel()

	data := sampleBook().Bytes()
	f := mustParse(t, data)

	paths := []string{"ValueData[0]", "Cell[2].DataIndex", "Sheet[0].Cols", "Cell[0].Type"}
	for _, path := range paths {
		v := mustLookup(t, f, path)
		buf := buffer.New(bytes.Clone(data))

		var err error
		switch v.Kind {
		case adf.KindF32:
			err = buf.WriteF32(v.DataOffset, 42)
		case adf.KindU32:
			err = buf.WriteU32(v.DataOffset, 42)
		case adf.KindU8:
			err = buf.WriteU8(v.DataOffset, 42)
		default:
			t.Fatalf("%s: unexpected kind %s", path, v.Kind)
		}
		if err != nil {
			t.Fatalf("%s: write: %v", path, err)
		}

		changed := mustParse(t, buf.Bytes())
		got := mustLookup(t, changed, path)
		if n, _ := got.AsFloat(); n != 42 {
			t.Fatalf("%s after write=%v", path, n)
		}

		for _, other := range paths {
			if other == path {
				continue
			}
			before, _ := mustLookup(t, f, other).AsFloat()
			after, _ := mustLookup(t, changed, other).AsFloat()
			if before != after {
				t.Fatalf("writing %s changed %s: %v -> %v", path, other, before, after)
			}
		}
	}
}

// hugeInlineArray declares an inline array far longer than its type size.
func hugeInlineArray() []byte {
	const blob uint32 = 0x424c4f42
	img := adftest.Image{
		Types: []adf.TypeDef{{
			Name: "Blob", MetaType: adf.MetaInlineArray, Size: 4, Alignment: 1, TypeHash: blob,
			ElementTypeHash: adf.TypeU8, ElementLength: 0xFFFFFFFF,
		}},
		Instances: []adftest.Instance{{Name: "Blob", TypeHash: blob, Data: make([]byte, 16)}},
	}
	return img.Bytes()
}

// zeroStrideArray declares an array of empty structs with a huge count.
func zeroStrideArray() []byte {
	const (
		empty uint32 = 0x454d5054
		list  uint32 = 0x4c495354
	)

	var l adftest.Layout
	l.Reserve(adf.ArrayDescriptorSize)
	l.PutU32(0, adf.ArrayDescriptorSize)
	l.PutU32(int(adf.ArrayCountOffset), 0xFFFFFFFF)
	l.Reserve(16)

	img := adftest.Image{
		Types: []adf.TypeDef{
			{Name: "Empty", MetaType: adf.MetaStructure, Size: 0, Alignment: 1, TypeHash: empty},
			{Name: "List", MetaType: adf.MetaArray, Size: adf.ArrayDescriptorSize, Alignment: 4, TypeHash: list, ElementTypeHash: empty},
		},
		Instances: []adftest.Instance{{Name: "List", TypeHash: list, Data: l.Bytes()}},
	}
	return img.Bytes()
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	good := sampleBook().Bytes()
	badMagic := bytes.Clone(good)
	badMagic[0] = 'X'
	badVersion := bytes.Clone(good)
	binary.LittleEndian.PutUint32(badVersion[4:], 3)

	testCases := []struct {
		name string
		data []byte
		want error
	}{
		{name: "empty", data: nil, want: adf.ErrOutOfData},
		{name: "bad magic", data: badMagic, want: adf.ErrParse},
		{name: "bad version", data: badVersion, want: adf.ErrParse},
		{name: "header only", data: good[:0x20], want: adf.ErrOutOfData},
		{name: "truncated", data: good[:len(good)-10], want: adf.ErrOutOfData},
		{name: "inline array larger than type", data: hugeInlineArray(), want: adf.ErrParse},
		{name: "zero stride array", data: zeroStrideArray(), want: adf.ErrParse},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := adf.Parse(tc.data); !errors.Is(err, tc.want) {
				t.Fatalf("Parse err=%v, want %v", err, tc.want)
			}
		})
	}
}

func TestParseUnknownType(t *testing.T) {
	t.Parallel()

	data := sampleBook().Bytes()
	f := mustParse(t, data)
	binary.LittleEndian.PutUint32(data[f.Instances[0].EntryOffset+4:], 0xdeadbeef)

	_, err := adf.Parse(data)
	var typeErr *adf.UnknownTypeError
	if !errors.As(err, &typeErr) || typeErr.TypeHash != 0xdeadbeef {
		t.Fatalf("expected UnknownTypeError for 0xdeadbeef, got %v", err)
	}
	if !errors.Is(err, adf.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestLookupErrors(t *testing.T) {
	t.Parallel()

	f := mustParse(t, sampleBook().Bytes())
	root, _ := f.Root()

	for _, path := range []string{"Nope", "Sheet[9]", "Sheet[0", "Sheet[-1]", "Sheet[0].Name.Deeper", ""} {
		if _, err := root.Lookup(path); !errors.Is(err, adf.ErrPathNotFound) {
			t.Fatalf("Lookup(%q) err=%v, want ErrPathNotFound", path, err)
		}
	}
}

func TestDeferredValue(t *testing.T) {
	t.Parallel()

	const holder uint32 = 0x4f4c4448
	var l adftest.Layout
	l.Reserve(16)
	target := l.U32(42)
	l.PutU32(0, uint32(target))
	l.PutU32(8, adf.TypeU32)

	img := adftest.Image{
		Types: []adf.TypeDef{{
			Name: "Holder", MetaType: adf.MetaStructure, Size: 16, Alignment: 4, TypeHash: holder,
			Members: []adf.MemberDef{{Name: "Ref", TypeHash: adf.TypeDeferred, Size: 16}},
		}},
		Instances: []adftest.Instance{{Name: "Holder", TypeHash: holder, Data: l.Bytes()}},
	}

	f := mustParse(t, img.Bytes())
	ref := mustLookup(t, f, "Ref")
	if ref.Kind != adf.KindDeferred || ref.TypeHash != adf.TypeU32 {
		t.Fatalf("Ref=%+v", ref)
	}
	inner, ok := ref.Index(0)
	if !ok || inner.Uint != 42 || inner.DataOffset != ref.DataOffset {
		t.Fatalf("deferred payload=%+v", inner)
	}
}
