// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package sheet

import "slices"

type changeKind uint8

const (
	changeSlot changeKind = iota + 1
	changeDef
	changePool
)

// change is the in-memory effect of one or more plan writes.
type change struct {
	value Value
	sheet int
	slot  int
	def   uint32
	idx   uint32
	attr  uint32
	typ   CellType
	kind  changeKind
}

// Commit applies plan to the in-memory book and its indexes so that later
// plans see its effect. It does not touch file bytes.
func (b *Book) Commit(plan *Plan) {
	if plan == nil {
		return
	}

	for _, c := range plan.changes {
		switch c.kind {
		case changeSlot:
			b.setSlot(c.sheet, c.slot, c.def)
		case changeDef:
			b.setDef(c.def, c.typ, c.idx, c.attr)
		case changePool:
			b.setPool(c.typ, c.idx, c.value)
		}
	}
}

func (b *Book) setSlot(sheet, slot int, d uint32) {
	s := &b.sheets[sheet]
	old := s.slots[slot]
	if old == d {
		return
	}

	ref := slotRef{sheet: sheet, slot: slot}
	if int(old) < len(b.defUsers) {
		b.defUsers[old] = slices.DeleteFunc(b.defUsers[old], func(r slotRef) bool { return r == ref })
	}
	b.defUsers[d] = append(b.defUsers[d], ref)
	s.slots[slot] = d
}

func (b *Book) setDef(d uint32, t CellType, idx uint32, attr uint32) {
	c := &b.cells[d]
	oldKey := poolKey{typ: c.typ, idx: c.dataIndex}
	newKey := poolKey{typ: t, idx: idx}
	if oldKey != newKey {
		b.valueUsers[oldKey] = slices.DeleteFunc(b.valueUsers[oldKey], func(x uint32) bool { return x == d })
		if len(b.valueUsers[oldKey]) == 0 {
			delete(b.valueUsers, oldKey)
		}
		b.valueUsers[newKey] = append(b.valueUsers[newKey], d)
	}

	c.typ, c.dataIndex, c.attr = t, idx, attr
}

// setPool stores v in entry idx and refreshes every entry sharing its bytes.
func (b *Book) setPool(t CellType, idx uint32, v Value) {
	pool := b.pools[t]
	at := pool[idx].offset
	pool[idx].value = v

	for _, other := range b.sharing(t, idx) {
		if other == idx {
			continue
		}

		e := &pool[other]
		if t != TypeString {
			e.value = v
			continue
		}

		str := slices.Clone(e.value.Str)
		for j := range str {
			if k := e.offset + int64(j) - at; k >= 0 && k < int64(len(v.Str)) {
				str[j] = v.Str[k]
			}
		}
		e.value = String(str)
	}
}
