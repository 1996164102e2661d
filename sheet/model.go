// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package sheet

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xuexu/cotw-mod-builder-sub000/patch"
)

// CellType is the Type field of a cell definition. It also names the pool
// the definition's DataIndex points into.
type CellType uint8

// Cell types as stored in the book.
const (
	TypeBool   CellType = 0
	TypeString CellType = 1
	TypeFloat  CellType = 2
)

// String returns the pool name of t.
func (t CellType) String() string {
	switch t {
	case TypeBool:
		return "BoolData"
	case TypeString:
		return "StringData"
	case TypeFloat:
		return "ValueData"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

// Valid reports a known cell type.
func (t CellType) Valid() bool {
	return t <= TypeFloat
}

// Value is a displayed cell value.
type Value struct {
	// Str is the encoded string for TypeString.
	Str   []byte
	Float float32
	Type  CellType
	Bool  bool
}

// Bool returns a bool cell value.
func Bool(b bool) Value { return Value{Type: TypeBool, Bool: b} }

// Float returns a float cell value.
func Float(f float32) Value { return Value{Type: TypeFloat, Float: f} }

// String returns a string cell value from already encoded bytes.
func String(b []byte) Value { return Value{Type: TypeString, Str: b} }

// Equal reports the same type and payload.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}

	switch v.Type {
	case TypeBool:
		return v.Bool == o.Bool
	case TypeString:
		return bytes.Equal(v.Str, o.Str)
	default:
		return v.Float == o.Float
	}
}

// String formats v for logs and errors.
func (v Value) String() string {
	switch v.Type {
	case TypeBool:
		return strconv.FormatBool(v.Bool)
	case TypeString:
		return strconv.Quote(string(v.Str))
	case TypeFloat:
		return strconv.FormatFloat(float64(v.Float), 'g', -1, 32)
	default:
		return fmt.Sprintf("<%s>", v.Type)
	}
}

// Flags tune the planner.
type Flags struct {
	// Logger receives the step trace when Verbose is set and step 3c warnings always.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// SkipOverwrite refuses step 2, which writes new values into pools.
	SkipOverwrite bool `json:"skip_overwrite,omitempty" yaml:"skip_overwrite,omitempty"`
	// Force allows overwriting a shared pool entry when types match.
	Force bool `json:"force,omitempty" yaml:"force,omitempty"`
	// Verbose logs every step outcome.
	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// applyDefaults fills a discarding logger.
func (f *Flags) applyDefaults() {
	if f.Logger == nil {
		f.Logger = slog.New(slog.DiscardHandler)
	}
}

// SheetRef selects a sheet by name or index.
type SheetRef struct {
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Index  int    `json:"index,omitempty" yaml:"index,omitempty"`
	ByName bool   `json:"-" yaml:"-"`
}

// SheetName selects a sheet by name.
func SheetName(name string) SheetRef { return SheetRef{Name: name, ByName: true} }

// SheetIndex selects a sheet by zero-based index.
func SheetIndex(i int) SheetRef { return SheetRef{Index: i} }

// String returns the name or the index.
func (r SheetRef) String() string {
	if r.ByName {
		return r.Name
	}

	return "#" + strconv.Itoa(r.Index)
}

// CellView is a resolved cell slot with every offset the planner needs.
type CellView struct {
	SheetName string

	CurrentValue Value
	DesiredValue Value

	SheetIdx int
	Row      int
	Col      int
	SlotIdx  int

	SlotOffset                int64
	DefinitionTypeOffset      int64
	DefinitionDataIndexOffset int64
	DefinitionAttributeOffset int64
	CurrentValueOffset        int64

	DefinitionIdx          uint32
	DefinitionAttributeIdx uint32
	CurrentValueIdx        uint32

	CurrentType CellType
	DesiredType CellType
}

// CurrentPool names the pool holding the current value.
func (v *CellView) CurrentPool() string { return v.CurrentType.String() }

// DesiredPool names the pool the desired value belongs to.
func (v *CellView) DesiredPool() string { return v.DesiredType.String() }

// Step identifies a planner branch.
type Step string

// Planner branches in evaluation order.
const (
	StepNoop        Step = "0"
	StepReuseDef    Step = "1a"
	StepRepointSolo Step = "1b"
	StepReuseUnused Step = "1c"
	StepOverwrite   Step = "2a"
	StepFillSolo    Step = "2b"
	StepFillUnused  Step = "2c"
	StepClosestSolo Step = "3a"
	StepClosestDef  Step = "3b"
	StepClosestAll  Step = "3c"
	StepForce       Step = "4"
	StepFail        Step = "5"
)

// StepResult records why a step did or did not fire.
type StepResult struct {
	Step   Step   `json:"step" yaml:"step"`
	Reason string `json:"reason" yaml:"reason"`
	Fired  bool   `json:"fired,omitempty" yaml:"fired,omitempty"`
}

// Plan is the ordered write list realizing one cell edit.
type Plan struct {
	Writes []patch.Write `json:"writes" yaml:"writes"`
	Trace  []StepResult  `json:"trace" yaml:"trace"`
	View   CellView      `json:"view" yaml:"view"`
	Step   Step          `json:"step" yaml:"step"`
	// AffectsOthers is set by step 3c and by step 4 on a shared entry.
	AffectsOthers bool `json:"affects_others,omitempty" yaml:"affects_others,omitempty"`

	changes []change
}

// CellEdit is one coordinate update in a batch.
type CellEdit struct {
	// Flags overrides the batch flags when set.
	Flags *Flags
	Sheet SheetRef
	Coord string
	Value Value
	// Transform combines Value with the current float value. Empty means set.
	Transform patch.Transform
}
