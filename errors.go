// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package modbuilder

import (
	"errors"
	"fmt"
)

// Sentinel errors for build operations. Use errors.Is in callers.
var (
	// ErrMissingFile means a logical file exists neither as a loose original
	// nor inside an indexed host archive.
	ErrMissingFile = errors.New("missing original file")
	// ErrFileExists means a path the build must own is taken by a file.
	ErrFileExists = errors.New("file already exists")
	// ErrBuild wraps every failed request of a build.
	ErrBuild = errors.New("build failed")
	// ErrInvalidRequest means an edit request is missing fields or mixes kinds.
	ErrInvalidRequest = errors.New("invalid edit request")
	// ErrInvalidPath means a logical path is empty or escapes its root.
	ErrInvalidPath = errors.New("invalid logical path")
	// ErrPoisoned means an earlier request found the file unparsable.
	ErrPoisoned = errors.New("file failed to parse earlier in this build")
	// ErrBusy means Build was called while another build is running.
	ErrBusy = errors.New("build already running")
	// ErrClosed means the builder is already closed.
	ErrClosed = errors.New("builder already closed")
	// ErrUnknownCompression means the index cache names an unknown codec.
	ErrUnknownCompression = errors.New("unknown compression")
	// ErrInvalidRules means one or more path rules are invalid.
	ErrInvalidRules = errors.New("invalid path rules")
	// ErrUnknownEncoding means the configured string encoding is not known.
	ErrUnknownEncoding = errors.New("unknown string encoding")
)

// UnknownCompressionError carries the codec id found in a container.
type UnknownCompressionError struct {
	TypeID uint8
}

// Error implements error.
func (e *UnknownCompressionError) Error() string {
	return fmt.Sprintf("%v: type id %d", ErrUnknownCompression, e.TypeID)
}

// Unwrap returns ErrUnknownCompression.
func (e *UnknownCompressionError) Unwrap() error {
	return ErrUnknownCompression
}

// RequestError reports the failure of one queued request.
type RequestError struct {
	Err   error
	File  string
	Kind  RequestKind
	Index int
}

// Error implements error.
func (e *RequestError) Error() string {
	return fmt.Sprintf("request %d (%s %s): %v", e.Index, e.Kind, e.File, e.Err)
}

// Unwrap returns the underlying failure.
func (e *RequestError) Unwrap() error {
	return e.Err
}
