// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package adf

import (
	"errors"
	"fmt"
)

// Sentinel errors for ADF operations. Use errors.Is in callers.
var (
	// ErrParse means the header, a table or a type definition is malformed.
	ErrParse = errors.New("invalid ADF file")
	// ErrOutOfData means the file is truncated.
	ErrOutOfData = errors.New("ADF data truncated")
	// ErrUnknownType means an instance or member references an undeclared type hash.
	ErrUnknownType = errors.New("unknown ADF type")
	// ErrPathNotFound means a value path does not resolve inside the tree.
	ErrPathNotFound = errors.New("value path not found")
	// ErrSpliceRange means a splice would cut through a pointer or descriptor.
	ErrSpliceRange = errors.New("splice range invalid")
	// ErrSharedData means other pointers reference the bytes an edit would move.
	ErrSharedData = errors.New("data referenced by another pointer")
)

// UnknownTypeError reports the unresolved type hash.
type UnknownTypeError struct {
	TypeHash uint32
	Offset   int64
}

// Error implements error.
func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("%v: type hash 0x%08x at offset %d", ErrUnknownType, e.TypeHash, e.Offset)
}

// Unwrap returns ErrUnknownType.
func (e *UnknownTypeError) Unwrap() error {
	return ErrUnknownType
}
