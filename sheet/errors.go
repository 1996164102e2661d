// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package sheet

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIncorrectFileFormat means the ADF root does not have the sheet-book shape.
	ErrIncorrectFileFormat = errors.New("incorrect file format")
	// ErrNoSuchSheet means no sheet matches the requested name or index.
	ErrNoSuchSheet = errors.New("no such sheet")
	// ErrCoordinateOutOfRange means the coordinate is malformed or outside the sheet.
	ErrCoordinateOutOfRange = errors.New("coordinate out of range")
	// ErrUnknownCellType means a cell definition names a type other than bool, string or float.
	ErrUnknownCellType = errors.New("unknown cell type")
	// ErrCannotRealize means no planner step could realize the edit safely.
	ErrCannotRealize = errors.New("cannot realize cell update")
)

// CannotRealizeError reports every planner step that was tried and why it
// did not fire.
type CannotRealizeError struct {
	Sheet   string
	Desired Value
	Trace   []StepResult
	Slot    int
}

// Error implements error.
func (e *CannotRealizeError) Error() string {
	parts := make([]string, 0, len(e.Trace))
	for _, r := range e.Trace {
		parts = append(parts, string(r.Step)+": "+r.Reason)
	}

	return fmt.Sprintf("%v: %s slot %d to %s (%s)", ErrCannotRealize, e.Sheet, e.Slot, e.Desired, strings.Join(parts, "; "))
}

// Unwrap returns ErrCannotRealize.
func (e *CannotRealizeError) Unwrap() error {
	return ErrCannotRealize
}
