// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package patch

import "errors"

var (
	// ErrIncorrectFileFormat means the bytes at the target do not have the shape the write expects.
	ErrIncorrectFileFormat = errors.New("incorrect file format")
	// ErrUnknownTransform means the transform name is not set, add or multiply.
	ErrUnknownTransform = errors.New("unknown transform")
	// ErrInvalidWidth means the width override does not fit the value kind.
	ErrInvalidWidth = errors.New("invalid write width")
	// ErrValueRange means a value or a transform result does not fit the target width.
	ErrValueRange = errors.New("value out of range for width")
)
