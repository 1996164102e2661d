// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package sheet

import (
	"fmt"

	"github.com/xuexu/cotw-mod-builder-sub000/adf"
	"github.com/xuexu/cotw-mod-builder-sub000/patch"
)

// ApplyCoordinateUpdates parses data once, plans every edit in order against
// the evolving in-memory book and applies the accumulated writes to a copy
// of data. Nothing is written when any edit fails.
func ApplyCoordinateUpdates(data []byte, edits []CellEdit, flags Flags) ([]byte, []*Plan, error) {
	f, err := adf.Parse(data)
	if err != nil {
		return nil, nil, err
	}

	book, err := Open(f)
	if err != nil {
		return nil, nil, err
	}

	plans := make([]*Plan, 0, len(edits))
	var writes []patch.Write
	for i, e := range edits {
		plan, err := book.PlanEdit(e, flags)
		if err != nil {
			return nil, nil, fmt.Errorf("edit %d (%s %s): %w", i, e.Sheet, e.Coord, err)
		}

		book.Commit(plan)
		plans = append(plans, plan)
		writes = append(writes, plan.Writes...)
	}

	out, err := patch.ApplyBytes(data, writes)
	if err != nil {
		return nil, nil, err
	}

	return out, plans, nil
}

// PlanEdit resolves e, applies its transform and plans it. The edit's own
// flags take precedence over flags.
func (b *Book) PlanEdit(e CellEdit, flags Flags) (*Plan, error) {
	if e.Flags != nil {
		logger := flags.Logger
		flags = *e.Flags
		if flags.Logger == nil {
			flags.Logger = logger
		}
	}

	view, err := b.Resolve(e.Sheet, e.Coord)
	if err != nil {
		return nil, err
	}

	desired, err := transformValue(view.CurrentValue, e.Value, e.Transform)
	if err != nil {
		return nil, err
	}

	return b.Plan(view, desired, flags)
}

// transformValue combines a float operand with the current float value.
func transformValue(cur, operand Value, t patch.Transform) (Value, error) {
	switch t {
	case "", patch.TransformSet:
		return operand, nil
	case patch.TransformAdd, patch.TransformMultiply:
		if cur.Type != TypeFloat || operand.Type != TypeFloat {
			return Value{}, fmt.Errorf("%w: %s needs float cell and operand", patch.ErrUnknownTransform, t)
		}
		if t == patch.TransformAdd {
			return Float(cur.Float + operand.Float), nil
		}
		return Float(cur.Float * operand.Float), nil
	default:
		return Value{}, fmt.Errorf("%w: %q", patch.ErrUnknownTransform, t)
	}
}
