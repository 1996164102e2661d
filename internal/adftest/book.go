// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package adftest

import "github.com/xuexu/cotw-mod-builder-sub000/adf"

// Type hashes of the sheet-book schema.
const (
	TypeBook        uint32 = 0xb00c0001
	TypeSheet       uint32 = 0xb00c0002
	TypeCell        uint32 = 0xb00c0003
	TypeBool        uint32 = 0xb00c0004
	TypeSheetArray  uint32 = 0xb00c0005
	TypeCellArray   uint32 = 0xb00c0006
	TypeU32Array    uint32 = 0xb00c0007
	TypeBoolArray   uint32 = 0xb00c0008
	TypeStringArray uint32 = 0xb00c0009
	TypeF32Array    uint32 = 0xb00c000a
)

const (
	bookSize  = 80
	sheetSize = 32
	cellSize  = 12
)

// Sheet is one sheet of a Book.
type Sheet struct {
	Name      string
	CellIndex []uint32
	Cols      uint32
	Rows      uint32
}

// Cell is one cell definition.
type Cell struct {
	DataIndex      uint32
	AttributeIndex uint32
	Type           uint8
}

// Book is a sheet-book in memory.
type Book struct {
	Sheets  []Sheet
	Cells   []Cell
	Bools   []bool
	Strings []string
	Values  []float32
	// StringAlias points StringData[k] at the bytes of StringData[v].
	StringAlias map[int]int
}

// BookTypes returns the type table of the sheet-book schema.
func BookTypes() []adf.TypeDef {
	array := func(name string, hash, elem uint32) adf.TypeDef {
		return adf.TypeDef{Name: name, MetaType: adf.MetaArray, Size: 16, Alignment: 8, TypeHash: hash, ElementTypeHash: elem}
	}

	return []adf.TypeDef{
		{
			Name: "XLSBook", MetaType: adf.MetaStructure, Size: bookSize, Alignment: 8, TypeHash: TypeBook,
			Members: []adf.MemberDef{
				{Name: "Sheet", TypeHash: TypeSheetArray, Size: 16, Offset: 0},
				{Name: "Cell", TypeHash: TypeCellArray, Size: 16, Offset: 16},
				{Name: "BoolData", TypeHash: TypeBoolArray, Size: 16, Offset: 32},
				{Name: "StringData", TypeHash: TypeStringArray, Size: 16, Offset: 48},
				{Name: "ValueData", TypeHash: TypeF32Array, Size: 16, Offset: 64},
			},
		},
		{
			Name: "XLSSheet", MetaType: adf.MetaStructure, Size: sheetSize, Alignment: 8, TypeHash: TypeSheet,
			Members: []adf.MemberDef{
				{Name: "Name", TypeHash: adf.TypeString, Size: 8, Offset: 0},
				{Name: "Cols", TypeHash: adf.TypeU32, Size: 4, Offset: 8},
				{Name: "Rows", TypeHash: adf.TypeU32, Size: 4, Offset: 12},
				{Name: "CellIndex", TypeHash: TypeU32Array, Size: 16, Offset: 16},
			},
		},
		{
			Name: "XLSCell", MetaType: adf.MetaStructure, Size: cellSize, Alignment: 4, TypeHash: TypeCell,
			Members: []adf.MemberDef{
				{Name: "Type", TypeHash: adf.TypeU8, Size: 1, Offset: 0},
				{Name: "DataIndex", TypeHash: adf.TypeU32, Size: 4, Offset: 4},
				{Name: "AttributeIndex", TypeHash: adf.TypeU32, Size: 4, Offset: 8},
			},
		},
		{Name: "bool", MetaType: adf.MetaPrimitive, Size: 4, Alignment: 4, TypeHash: TypeBool},
		array("XLSSheetArray", TypeSheetArray, TypeSheet),
		array("XLSCellArray", TypeCellArray, TypeCell),
		array("uint32Array", TypeU32Array, adf.TypeU32),
		array("boolArray", TypeBoolArray, TypeBool),
		array("StringArray", TypeStringArray, adf.TypeString),
		array("floatArray", TypeF32Array, adf.TypeF32),
	}
}

// Body lays out the root instance. Pool strings precede sheet names so that
// growing a pool string moves data addressed by other pointers.
func (b *Book) Body() []byte {
	var l Layout
	root := l.Reserve(bookSize)

	l.Align(8)
	sheets := l.Reserve(sheetSize * len(b.Sheets))
	l.Array(root, sheets, len(b.Sheets))
	for i, s := range b.Sheets {
		at := sheets + i*sheetSize
		l.PutU32(at+8, s.Cols)
		l.PutU32(at+12, s.Rows)
		l.Align(4)
		data := l.Len()
		for _, d := range s.CellIndex {
			l.U32(d)
		}
		l.Array(at+16, data, len(s.CellIndex))
	}

	l.Align(4)
	cells := l.Len()
	for _, c := range b.Cells {
		at := l.Reserve(cellSize)
		l.PutU8(at, c.Type)
		l.PutU32(at+4, c.DataIndex)
		l.PutU32(at+8, c.AttributeIndex)
	}
	l.Array(root+16, cells, len(b.Cells))

	bools := l.Len()
	for _, v := range b.Bools {
		if v {
			l.U32(1)
		} else {
			l.U32(0)
		}
	}
	l.Array(root+32, bools, len(b.Bools))

	values := l.Len()
	for _, v := range b.Values {
		l.F32(v)
	}
	l.Array(root+64, values, len(b.Values))

	l.Align(8)
	strs := l.Reserve(8 * len(b.Strings))
	l.Array(root+48, strs, len(b.Strings))
	at := make([]int, len(b.Strings))
	for i, s := range b.Strings {
		if _, ok := b.StringAlias[i]; ok {
			continue
		}
		at[i] = l.CString(s)
		l.PutU64(strs+8*i, uint64(at[i])) //nolint:gosec // small
	}
	for k, v := range b.StringAlias {
		l.PutU64(strs+8*k, uint64(at[v])) //nolint:gosec // small
	}

	for i, s := range b.Sheets {
		l.PutU64(sheets+i*sheetSize, uint64(l.CString(s.Name))) //nolint:gosec // small
	}

	return l.Bytes()
}

// Bytes returns the complete ADF image of the book.
func (b *Book) Bytes() []byte {
	img := Image{
		Comment:   "xlsx",
		Types:     BookTypes(),
		Instances: []Instance{{Name: "XLSBook", TypeHash: TypeBook, Data: b.Body()}},
	}

	return img.Bytes()
}
