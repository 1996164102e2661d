// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package sarc

import "errors"

// Sentinel errors for SARC operations. Use errors.Is in callers.
var (
	// ErrParse means the archive header is malformed or has an unknown version.
	ErrParse = errors.New("invalid SARC archive")
	// ErrOutOfData means the header or an entry payload runs past the end.
	ErrOutOfData = errors.New("SARC data truncated")
	// ErrEntryNotFound means the entry is not found.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrSymlink means the operation needs a payload but the entry is stored in another archive.
	ErrSymlink = errors.New("entry is a symlink")
	// ErrSizeMismatch means an in-place merge was given a payload of a different length.
	ErrSizeMismatch = errors.New("payload size differs from archive slot")
	// ErrSizeOverflow means an offset or length exceeds uint32.
	ErrSizeOverflow = errors.New("size exceeds uint32 SARC limit")
	// ErrInvalidEntryPath means an entry path is empty after normalization.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrDuplicateEntryPath means two entries resolve to the same path.
	ErrDuplicateEntryPath = errors.New("duplicate entry path")
	// ErrInvalidExtractPath means an entry path cannot be used as an extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrClosed means the reader is already closed.
	ErrClosed = errors.New("reader already closed")
)
