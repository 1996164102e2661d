// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package rtpc

import "errors"

// Sentinel errors for RTPC parsing.
var (
	// ErrParse means the header or a node is malformed.
	ErrParse = errors.New("invalid RTPC file")
	// ErrOutOfData means a node, property or payload runs past the end.
	ErrOutOfData = errors.New("RTPC data truncated")
	// ErrNotFound means a node or property lookup failed.
	ErrNotFound = errors.New("RTPC node or property not found")
)
