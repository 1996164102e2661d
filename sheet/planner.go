// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package sheet

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/xuexu/cotw-mod-builder-sub000/patch"
)

// planner holds the state of one Plan call.
type planner struct {
	b     *Book
	view  *CellView
	plan  *Plan
	flags Flags
	self  slotRef
}

// Plan computes the writes that make the cell in view display desired
// without changing any other cell. Steps run in a fixed order and the first
// one that applies wins; see the Step constants. The book is not modified
// until Commit.
func (b *Book) Plan(view *CellView, desired Value, flags Flags) (*Plan, error) {
	flags.applyDefaults()

	if view == nil || view.SheetIdx < 0 || view.SheetIdx >= len(b.sheets) ||
		view.SlotIdx < 0 || view.SlotIdx >= len(b.sheets[view.SheetIdx].slots) {
		return nil, fmt.Errorf("%w: stale cell view", ErrCoordinateOutOfRange)
	}
	if !desired.Type.Valid() {
		return nil, fmt.Errorf("%w: desired %d", ErrUnknownCellType, desired.Type)
	}

	fresh, err := b.viewOf(view.SheetIdx, view.SlotIdx)
	if err != nil {
		return nil, err
	}
	fresh.Row, fresh.Col = view.Row, view.Col
	fresh.DesiredValue = desired
	fresh.DesiredType = desired.Type

	p := &planner{
		b:     b,
		view:  fresh,
		flags: flags,
		self:  slotRef{sheet: fresh.SheetIdx, slot: fresh.SlotIdx},
		plan:  &Plan{View: *fresh},
	}

	if p.run() {
		p.plan.View = *p.view
		return p.plan, nil
	}

	p.record(StepFail, false, "no strategy applies")
	return nil, &CannotRealizeError{
		Sheet:   fresh.SheetName,
		Slot:    fresh.SlotIdx,
		Desired: desired,
		Trace:   p.plan.Trace,
	}
}

// run evaluates the steps and reports whether one fired.
func (p *planner) run() bool {
	v := p.view
	if v.CurrentValue.Equal(v.DesiredValue) {
		return p.fire(StepNoop, "current value equals desired")
	}

	if p.reuse() {
		return true
	}

	if p.flags.SkipOverwrite {
		p.record(StepOverwrite, false, "skip_overwrite set")
		p.record(StepFillSolo, false, "skip_overwrite set")
		p.record(StepFillUnused, false, "skip_overwrite set")
	} else if p.introduce() {
		return true
	}

	if p.closest() {
		return true
	}

	return p.force()
}

// reuse implements step 1: point at an existing pool entry equal to desired.
func (p *planner) reuse() bool {
	v := p.view
	b := p.b
	t := v.DesiredType

	matches := b.matching(t, v.DesiredValue)
	if len(matches) == 0 {
		reason := fmt.Sprintf("%s has no entry equal to %s", t, v.DesiredValue)
		p.record(StepReuseDef, false, reason)
		p.record(StepRepointSolo, false, reason)
		p.record(StepReuseUnused, false, reason)
		return false
	}

	var defs []uint32
	for _, i := range matches {
		for _, d := range b.valueUsers[poolKey{typ: t, idx: i}] {
			if d != v.DefinitionIdx {
				defs = append(defs, d)
			}
		}
	}
	if d, ok := b.preferAttr(defs, v.DefinitionAttributeIdx); ok {
		p.repointSlot(d)
		return p.fire(StepReuseDef, fmt.Sprintf("definition %d already shows %s", d, v.DesiredValue))
	}
	p.record(StepReuseDef, false, "no definition points at a matching entry")

	if b.solo(v.DefinitionIdx, p.self) {
		p.setDefIndex(v.DefinitionIdx, matches[0], t)
		return p.fire(StepRepointSolo, fmt.Sprintf("definition %d repointed to %s[%d]", v.DefinitionIdx, t, matches[0]))
	}
	p.record(StepRepointSolo, false, fmt.Sprintf("definition %d is shared", v.DefinitionIdx))

	if u, ok := b.unusedDef(); ok {
		p.claimDef(u, t, matches[0])
		p.repointSlot(u)
		return p.fire(StepReuseUnused, fmt.Sprintf("unused definition %d set to %s[%d]", u, t, matches[0]))
	}
	p.record(StepReuseUnused, false, "no unused definition")

	return false
}

// introduce implements step 2: write desired into a pool entry.
func (p *planner) introduce() bool {
	v := p.view
	b := p.b
	t := v.DesiredType
	cur := poolKey{typ: v.CurrentType, idx: v.CurrentValueIdx}

	switch {
	case v.CurrentType != t:
		p.record(StepOverwrite, false, "type changes")
	case b.entryUsedByOthers(cur, p.self):
		p.record(StepOverwrite, false, fmt.Sprintf("%s[%d] is referenced by other cells", t, cur.idx))
	case !b.fits(t, cur.idx, v.DesiredValue):
		p.record(StepOverwrite, false, fmt.Sprintf("%s[%d] length differs", t, cur.idx))
	default:
		p.setPool(t, cur.idx, v.DesiredValue)
		return p.fire(StepOverwrite, fmt.Sprintf("%s[%d] overwritten in place", t, cur.idx))
	}

	e, haveEntry := b.unusedEntry(t, v.DesiredValue)
	solo := b.solo(v.DefinitionIdx, p.self)
	switch {
	case !haveEntry:
		p.record(StepFillSolo, false, fmt.Sprintf("%s has no unused entry that fits", t))
	case !solo:
		p.record(StepFillSolo, false, fmt.Sprintf("definition %d is shared", v.DefinitionIdx))
	default:
		p.setPool(t, e, v.DesiredValue)
		p.setDefIndex(v.DefinitionIdx, e, t)
		return p.fire(StepFillSolo, fmt.Sprintf("unused %s[%d] filled for definition %d", t, e, v.DefinitionIdx))
	}

	u, haveDef := b.unusedDef()
	switch {
	case !haveEntry:
		p.record(StepFillUnused, false, fmt.Sprintf("%s has no unused entry that fits", t))
	case !haveDef:
		p.record(StepFillUnused, false, "no unused definition")
	default:
		p.setPool(t, e, v.DesiredValue)
		p.claimDef(u, t, e)
		p.repointSlot(u)
		return p.fire(StepFillUnused, fmt.Sprintf("unused %s[%d] and definition %d claimed", t, e, u))
	}

	return false
}

// closest implements step 3 for float cells.
func (p *planner) closest() bool {
	v := p.view
	b := p.b

	if v.DesiredType != TypeFloat {
		p.record(StepClosestSolo, false, "not a float cell")
		return false
	}

	k, ok := b.closestValue(v.DesiredValue.Float)
	if !ok {
		p.record(StepClosestSolo, false, "ValueData is empty")
		return false
	}

	if v.CurrentType == TypeFloat && v.CurrentValueIdx == k {
		return p.fire(StepClosestSolo, fmt.Sprintf("closest value ValueData[%d] is already displayed", k))
	}

	if b.solo(v.DefinitionIdx, p.self) {
		p.setDefIndex(v.DefinitionIdx, k, TypeFloat)
		return p.fire(StepClosestSolo, fmt.Sprintf("definition %d repointed to closest ValueData[%d]", v.DefinitionIdx, k))
	}
	p.record(StepClosestSolo, false, fmt.Sprintf("definition %d is shared", v.DefinitionIdx))

	var defs []uint32
	for _, d := range b.valueUsers[poolKey{typ: TypeFloat, idx: k}] {
		if d != v.DefinitionIdx {
			defs = append(defs, d)
		}
	}
	if d, ok := b.preferAttr(defs, v.DefinitionAttributeIdx); ok {
		p.repointSlot(d)
		return p.fire(StepClosestDef, fmt.Sprintf("definition %d shows closest ValueData[%d]", d, k))
	}
	p.record(StepClosestDef, false, fmt.Sprintf("no definition points at ValueData[%d]", k))

	p.setDefIndex(v.DefinitionIdx, k, TypeFloat)
	p.plan.AffectsOthers = true
	p.flags.Logger.Warn("cell update changes other cells",
		slog.String("sheet", v.SheetName),
		slog.Int("slot", v.SlotIdx),
		slog.Uint64("definition", uint64(v.DefinitionIdx)),
		slog.Int("users", len(b.defUsers[v.DefinitionIdx])),
		slog.Uint64("value_index", uint64(k)),
	)
	return p.fire(StepClosestAll, fmt.Sprintf("shared definition %d repointed to closest ValueData[%d]", v.DefinitionIdx, k))
}

// force implements step 4.
func (p *planner) force() bool {
	v := p.view
	b := p.b

	switch {
	case !p.flags.Force:
		p.record(StepForce, false, "force not set")
	case v.CurrentType != v.DesiredType:
		p.record(StepForce, false, "type changes")
	case !b.fits(v.DesiredType, v.CurrentValueIdx, v.DesiredValue):
		p.record(StepForce, false, fmt.Sprintf("%s[%d] length differs", v.DesiredType, v.CurrentValueIdx))
	default:
		cur := poolKey{typ: v.CurrentType, idx: v.CurrentValueIdx}
		p.plan.AffectsOthers = b.entryUsedByOthers(cur, p.self)
		p.setPool(v.DesiredType, v.CurrentValueIdx, v.DesiredValue)
		return p.fire(StepForce, fmt.Sprintf("shared %s[%d] overwritten", v.DesiredType, v.CurrentValueIdx))
	}

	return false
}

// record appends a trace entry.
func (p *planner) record(step Step, fired bool, reason string) {
	p.plan.Trace = append(p.plan.Trace, StepResult{Step: step, Fired: fired, Reason: reason})
	if p.flags.Verbose {
		p.flags.Logger.Info("planner step",
			slog.String("sheet", p.view.SheetName),
			slog.Int("slot", p.view.SlotIdx),
			slog.String("step", string(step)),
			slog.Bool("fired", fired),
			slog.String("reason", reason),
		)
	}
}

// fire records the winning step.
func (p *planner) fire(step Step, reason string) bool {
	p.plan.Step = step
	p.record(step, true, reason)
	return true
}

func (p *planner) repointSlot(d uint32) {
	p.plan.Writes = append(p.plan.Writes, patch.Write{Offset: p.view.SlotOffset, Value: patch.U32(d), Width: 4})
	p.plan.changes = append(p.plan.changes, change{kind: changeSlot, sheet: p.self.sheet, slot: p.self.slot, def: d})
}

// setDefIndex repoints definition d at pool entry idx of type t, rewriting
// Type as well when it changes.
func (p *planner) setDefIndex(d uint32, idx uint32, t CellType) {
	c := &p.b.cells[d]
	p.plan.Writes = append(p.plan.Writes, patch.Write{Offset: c.dataIndexOffset, Value: patch.U32(idx), Width: c.indexWidth})
	if c.typ != t {
		p.plan.Writes = append(p.plan.Writes, patch.Write{Offset: c.typeOffset, Value: patch.U32(uint32(t)), Width: c.typeWidth})
	}
	p.plan.changes = append(p.plan.changes, change{kind: changeDef, def: d, typ: t, idx: idx, attr: c.attr})
}

// claimDef rewrites an unused definition as (t, idx) carrying the target's attribute.
func (p *planner) claimDef(d uint32, t CellType, idx uint32) {
	c := &p.b.cells[d]
	attr := p.view.DefinitionAttributeIdx
	p.plan.Writes = append(p.plan.Writes,
		patch.Write{Offset: c.dataIndexOffset, Value: patch.U32(idx), Width: c.indexWidth},
		patch.Write{Offset: c.typeOffset, Value: patch.U32(uint32(t)), Width: c.typeWidth},
		patch.Write{Offset: c.attrOffset, Value: patch.U32(attr), Width: c.attrWidth},
	)
	p.plan.changes = append(p.plan.changes, change{kind: changeDef, def: d, typ: t, idx: idx, attr: attr})
}

func (p *planner) setPool(t CellType, idx uint32, v Value) {
	e := &p.b.pools[t][idx]
	w := patch.Write{Offset: e.offset}
	switch t {
	case TypeBool:
		var n uint32
		if v.Bool {
			n = 1
		}
		w.Value, w.Width = patch.U32(n), e.width
	case TypeString:
		w.Value = patch.String(v.Str)
	default:
		w.Value = patch.F32(v.Float)
	}

	p.plan.Writes = append(p.plan.Writes, w)
	p.plan.changes = append(p.plan.changes, change{kind: changePool, typ: t, idx: idx, value: v})
}

// matching returns pool indexes of type t whose value equals v, ascending.
func (b *Book) matching(t CellType, v Value) []uint32 {
	var out []uint32
	for i, e := range b.pools[t] {
		if e.value.Equal(v) {
			out = append(out, uint32(i))
		}
	}

	return out
}

// preferAttr picks the lowest definition, preferring one whose attribute equals attr.
func (b *Book) preferAttr(defs []uint32, attr uint32) (uint32, bool) {
	if len(defs) == 0 {
		return 0, false
	}

	slices.Sort(defs)
	for _, d := range defs {
		if b.cells[d].attr == attr {
			return d, true
		}
	}

	return defs[0], true
}

// solo reports that no slot other than self uses definition d.
func (b *Book) solo(d uint32, self slotRef) bool {
	for _, s := range b.defUsers[d] {
		if s != self {
			return false
		}
	}

	return true
}

// unusedDef returns the lowest definition no slot references.
func (b *Book) unusedDef() (uint32, bool) {
	for d, users := range b.defUsers {
		if len(users) == 0 {
			return uint32(d), true
		}
	}

	return 0, false
}

// entryUsedByOthers reports whether a slot other than self displays entry k
// or any entry sharing its bytes.
func (b *Book) entryUsedByOthers(k poolKey, self slotRef) bool {
	for _, idx := range b.sharing(k.typ, k.idx) {
		for _, d := range b.valueUsers[poolKey{typ: k.typ, idx: idx}] {
			if !b.solo(d, self) {
				return true
			}
		}
	}

	return false
}

// displayed reports whether any slot shows entry idx of type t or an entry
// sharing its bytes.
func (b *Book) displayed(t CellType, idx uint32) bool {
	for _, a := range b.sharing(t, idx) {
		for _, d := range b.valueUsers[poolKey{typ: t, idx: a}] {
			if len(b.defUsers[d]) > 0 {
				return true
			}
		}
	}

	return false
}

// unusedEntry returns the lowest entry of type t that no slot displays and
// that can hold v.
func (b *Book) unusedEntry(t CellType, v Value) (uint32, bool) {
	for i := range b.pools[t] {
		idx := uint32(i)
		if !b.fits(t, idx, v) {
			continue
		}

		if !b.displayed(t, idx) {
			return idx, true
		}
	}

	return 0, false
}

// fits reports whether v can overwrite entry idx of type t in place.
func (b *Book) fits(t CellType, idx uint32, v Value) bool {
	if t != TypeString {
		return true
	}

	return len(b.pools[t][idx].value.Str) == len(v.Str)
}

// closestValue returns argmin |ValueData[i] - f| with ties to the lowest index.
func (b *Book) closestValue(f float32) (uint32, bool) {
	best, bestDelta := -1, math.Inf(1)
	for i, e := range b.pools[TypeFloat] {
		delta := math.Abs(float64(e.value.Float) - float64(f))
		if delta < bestDelta {
			best, bestDelta = i, delta
		}
	}

	if best < 0 {
		return 0, false
	}

	return uint32(best), true
}
