// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package sheet

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/xuexu/cotw-mod-builder-sub000/adf"
)

// slotRef addresses one cell slot.
type slotRef struct {
	sheet int
	slot  int
}

// poolKey addresses one pool entry.
type poolKey struct {
	idx uint32
	typ CellType
}

type sheetData struct {
	name        string
	slots       []uint32
	slotOffsets []int64
	cols        int
	rows        int
}

type cellDef struct {
	typeOffset      int64
	dataIndexOffset int64
	attrOffset      int64
	dataIndex       uint32
	attr            uint32
	typeWidth       int
	indexWidth      int
	attrWidth       int
	typ             CellType
}

type poolEntry struct {
	value  Value
	offset int64
	width  int
}

// Book is the sheet-book view of one parsed ADF file. It mirrors committed
// plans so that later edits in a batch see earlier ones.
type Book struct {
	valueUsers map[poolKey][]uint32
	sheets     []sheetData
	cells      []cellDef
	defUsers   [][]slotRef
	pools      [3][]poolEntry
	// shared maps a pool entry to the group of entries whose bytes overlap it.
	shared [3][][]uint32
}

// Open builds the sheet-book view of f. The root must hold the Sheet, Cell,
// BoolData, StringData and ValueData arrays.
func Open(f *adf.File) (*Book, error) {
	root, err := f.Root()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncorrectFileFormat, err)
	}

	b := &Book{valueUsers: make(map[poolKey][]uint32)}

	sheets, err := arrayField(root, "Sheet")
	if err != nil {
		return nil, err
	}
	for i := range sheets.Elems {
		s, err := readSheet(&sheets.Elems[i])
		if err != nil {
			return nil, fmt.Errorf("Sheet[%d]: %w", i, err)
		}
		b.sheets = append(b.sheets, s)
	}

	cells, err := arrayField(root, "Cell")
	if err != nil {
		return nil, err
	}
	for i := range cells.Elems {
		c, err := readCell(&cells.Elems[i])
		if err != nil {
			return nil, fmt.Errorf("Cell[%d]: %w", i, err)
		}
		b.cells = append(b.cells, c)
	}

	for _, t := range []CellType{TypeBool, TypeString, TypeFloat} {
		pool, err := arrayField(root, t.String())
		if err != nil {
			return nil, err
		}
		entries, err := readPool(t, pool)
		if err != nil {
			return nil, err
		}
		b.pools[t] = entries
		b.shared[t] = overlapGroups(entries)
	}

	b.buildIndexes()
	return b, nil
}

// buildIndexes fills defUsers and valueUsers from scratch.
func (b *Book) buildIndexes() {
	b.defUsers = make([][]slotRef, len(b.cells))
	for si, s := range b.sheets {
		for slot, d := range s.slots {
			if int(d) < len(b.defUsers) {
				b.defUsers[d] = append(b.defUsers[d], slotRef{sheet: si, slot: slot})
			}
		}
	}

	for d, c := range b.cells {
		k := poolKey{typ: c.typ, idx: c.dataIndex}
		b.valueUsers[k] = append(b.valueUsers[k], uint32(d))
	}
}

// sharing returns every entry of type t whose bytes overlap entry idx,
// idx included.
func (b *Book) sharing(t CellType, idx uint32) []uint32 {
	return b.shared[t][idx]
}

// overlapGroups groups entries whose byte ranges overlap, directly or through
// a chain of other entries. Deduplicated string data makes several pointers
// share bytes.
func overlapGroups(entries []poolEntry) [][]uint32 {
	order := make([]uint32, len(entries))
	for i := range order {
		order[i] = uint32(i)
	}
	slices.SortStableFunc(order, func(x, y uint32) int {
		return cmp.Compare(entries[x].offset, entries[y].offset)
	})

	groups := make([][]uint32, len(entries))
	var (
		group []uint32
		end   int64
	)
	flush := func() {
		slices.Sort(group)
		for _, idx := range group {
			groups[idx] = group
		}
	}
	for _, idx := range order {
		e := entries[idx]
		if len(group) > 0 && e.offset >= end {
			flush()
			group = nil
		}
		group = append(group, idx)
		end = max(end, e.offset+int64(max(e.width, 1)))
	}
	if len(group) > 0 {
		flush()
	}

	return groups
}

// Sheets returns sheet names in stored order.
func (b *Book) Sheets() []string {
	names := make([]string, len(b.sheets))
	for i, s := range b.sheets {
		names[i] = s.name
	}

	return names
}

// Resolve locates a coordinate such as "B12" on the referenced sheet.
func (b *Book) Resolve(ref SheetRef, coord string) (*CellView, error) {
	idx, err := b.sheetIndex(ref)
	if err != nil {
		return nil, err
	}

	row, col, err := ParseCoordinate(coord)
	if err != nil {
		return nil, err
	}

	return b.ResolveAt(idx, row, col)
}

// ResolveAt locates a 1-based row and column on sheet sheetIdx.
func (b *Book) ResolveAt(sheetIdx, row, col int) (*CellView, error) {
	if sheetIdx < 0 || sheetIdx >= len(b.sheets) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrNoSuchSheet, sheetIdx, len(b.sheets))
	}

	s := &b.sheets[sheetIdx]
	if row < 1 || col < 1 || row > s.rows || col > s.cols {
		return nil, fmt.Errorf("%w: row %d col %d on %s (%dx%d)", ErrCoordinateOutOfRange, row, col, s.name, s.rows, s.cols)
	}

	slot := (row-1)*s.cols + (col - 1)
	if slot >= len(s.slots) {
		return nil, fmt.Errorf("%w: slot %d of %d on %s", ErrCoordinateOutOfRange, slot, len(s.slots), s.name)
	}

	view, err := b.viewOf(sheetIdx, slot)
	if err != nil {
		return nil, err
	}

	view.Row, view.Col = row, col
	return view, nil
}

// viewOf hydrates the view of one slot.
func (b *Book) viewOf(sheetIdx, slot int) (*CellView, error) {
	s := &b.sheets[sheetIdx]
	d := s.slots[slot]
	if int(d) >= len(b.cells) {
		return nil, fmt.Errorf("%w: %s slot %d names definition %d of %d", ErrIncorrectFileFormat, s.name, slot, d, len(b.cells))
	}

	c := &b.cells[d]
	entry, err := b.entry(c.typ, c.dataIndex)
	if err != nil {
		return nil, fmt.Errorf("%s slot %d: %w", s.name, slot, err)
	}

	return &CellView{
		SheetName:                 s.name,
		SheetIdx:                  sheetIdx,
		SlotIdx:                   slot,
		SlotOffset:                s.slotOffsets[slot],
		DefinitionIdx:             d,
		DefinitionTypeOffset:      c.typeOffset,
		DefinitionDataIndexOffset: c.dataIndexOffset,
		DefinitionAttributeOffset: c.attrOffset,
		DefinitionAttributeIdx:    c.attr,
		CurrentType:               c.typ,
		CurrentValueIdx:           c.dataIndex,
		CurrentValueOffset:        entry.offset,
		CurrentValue:              entry.value,
	}, nil
}

// entry returns pool entry idx of type t.
func (b *Book) entry(t CellType, idx uint32) (*poolEntry, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCellType, t)
	}

	pool := b.pools[t]
	if int(idx) >= len(pool) {
		return nil, fmt.Errorf("%w: %s index %d of %d", ErrIncorrectFileFormat, t, idx, len(pool))
	}

	return &pool[idx], nil
}

// Snapshot returns the displayed value of every slot of every sheet.
func (b *Book) Snapshot() ([][]Value, error) {
	out := make([][]Value, len(b.sheets))
	for si, s := range b.sheets {
		out[si] = make([]Value, len(s.slots))
		for slot := range s.slots {
			v, err := b.viewOf(si, slot)
			if err != nil {
				return nil, err
			}
			out[si][slot] = v.CurrentValue
		}
	}

	return out, nil
}

func (b *Book) sheetIndex(ref SheetRef) (int, error) {
	if !ref.ByName {
		if ref.Index < 0 || ref.Index >= len(b.sheets) {
			return 0, fmt.Errorf("%w: %s", ErrNoSuchSheet, ref)
		}
		return ref.Index, nil
	}

	for i, s := range b.sheets {
		if s.name == ref.Name {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrNoSuchSheet, ref.Name)
}

// ParseColumn converts spreadsheet column letters to a 1-based index:
// A=1 … Z=26, AA=27.
func ParseColumn(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty column", ErrCoordinateOutOfRange)
	}

	col := 0
	for _, r := range strings.ToUpper(s) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("%w: column %q", ErrCoordinateOutOfRange, s)
		}
		col = col*26 + int(r-'A'+1)
		if col > 1<<24 {
			return 0, fmt.Errorf("%w: column %q", ErrCoordinateOutOfRange, s)
		}
	}

	return col, nil
}

// ParseCoordinate splits "B12" into row 12 and column 2.
func ParseCoordinate(coord string) (row, col int, err error) {
	coord = strings.TrimSpace(coord)
	split := strings.IndexAny(coord, "0123456789")
	if split <= 0 {
		return 0, 0, fmt.Errorf("%w: coordinate %q", ErrCoordinateOutOfRange, coord)
	}

	col, err = ParseColumn(coord[:split])
	if err != nil {
		return 0, 0, err
	}

	row, err = strconv.Atoi(coord[split:])
	if err != nil || row < 1 {
		return 0, 0, fmt.Errorf("%w: row in %q", ErrCoordinateOutOfRange, coord)
	}

	return row, col, nil
}

func arrayField(root *adf.Value, name string) (*adf.Value, error) {
	v, err := root.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncorrectFileFormat, err)
	}
	if v.Kind != adf.KindArray {
		return nil, fmt.Errorf("%w: %s is %s, expected array", ErrIncorrectFileFormat, name, v.Kind)
	}

	return v, nil
}

func uintField(v *adf.Value, name string) (*adf.Value, uint32, error) {
	f, ok := v.Field(name)
	if !ok {
		return nil, 0, fmt.Errorf("%w: missing %s", ErrIncorrectFileFormat, name)
	}

	n, ok := f.AsUint()
	if !ok || !f.IsScalar() || n > 1<<32-1 {
		return nil, 0, fmt.Errorf("%w: %s is %s", ErrIncorrectFileFormat, name, f.Kind)
	}

	return f, uint32(n), nil
}

func readSheet(v *adf.Value) (sheetData, error) {
	var s sheetData

	name, ok := v.Field("Name")
	if !ok || name.Kind != adf.KindString {
		return s, fmt.Errorf("%w: missing Name", ErrIncorrectFileFormat)
	}
	s.name = string(name.Bytes)

	_, cols, err := uintField(v, "Cols")
	if err != nil {
		return s, err
	}
	_, rows, err := uintField(v, "Rows")
	if err != nil {
		return s, err
	}
	s.cols, s.rows = int(cols), int(rows)

	idx, ok := v.Field("CellIndex")
	if !ok || idx.Kind != adf.KindArray {
		return s, fmt.Errorf("%w: missing CellIndex", ErrIncorrectFileFormat)
	}

	s.slots = make([]uint32, len(idx.Elems))
	s.slotOffsets = make([]int64, len(idx.Elems))
	for i := range idx.Elems {
		e := &idx.Elems[i]
		n, ok := e.AsUint()
		if !ok || e.Width != 4 {
			return s, fmt.Errorf("%w: CellIndex[%d] is %s", ErrIncorrectFileFormat, i, e.Kind)
		}
		s.slots[i] = uint32(n)
		s.slotOffsets[i] = e.DataOffset
	}

	return s, nil
}

func readCell(v *adf.Value) (cellDef, error) {
	var c cellDef

	t, typ, err := uintField(v, "Type")
	if err != nil {
		return c, err
	}
	di, dataIndex, err := uintField(v, "DataIndex")
	if err != nil {
		return c, err
	}
	at, attr, err := uintField(v, "AttributeIndex")
	if err != nil {
		return c, err
	}
	if typ > 255 {
		return c, fmt.Errorf("%w: %d", ErrUnknownCellType, typ)
	}

	c.typ = CellType(typ)
	c.dataIndex = dataIndex
	c.attr = attr
	c.typeOffset, c.typeWidth = t.DataOffset, t.Width
	c.dataIndexOffset, c.indexWidth = di.DataOffset, di.Width
	c.attrOffset, c.attrWidth = at.DataOffset, at.Width

	return c, nil
}

func readPool(t CellType, pool *adf.Value) ([]poolEntry, error) {
	entries := make([]poolEntry, len(pool.Elems))
	for i := range pool.Elems {
		e := &pool.Elems[i]
		out := poolEntry{offset: e.DataOffset, width: e.Width}

		switch t {
		case TypeBool:
			n, ok := e.AsUint()
			if !ok || !e.IsScalar() {
				return nil, fmt.Errorf("%w: %s[%d] is %s", ErrIncorrectFileFormat, t, i, e.Kind)
			}
			out.value = Bool(n != 0)
		case TypeString:
			if e.Kind != adf.KindString {
				return nil, fmt.Errorf("%w: %s[%d] is %s", ErrIncorrectFileFormat, t, i, e.Kind)
			}
			out.value = String(e.Bytes)
			out.width = len(e.Bytes)
		case TypeFloat:
			f, ok := e.AsFloat()
			if !ok || e.Width != 4 {
				return nil, fmt.Errorf("%w: %s[%d] is %s", ErrIncorrectFileFormat, t, i, e.Kind)
			}
			out.value = Float(float32(f))
		}

		entries[i] = out
	}

	return entries, nil
}
