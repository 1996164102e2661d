// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package modbuilder

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// lookupEncoding resolves a WHATWG encoding name such as "utf-8" or
// "windows-1252".
func lookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrUnknownEncoding, name, err)
	}

	return enc, nil
}

// encodeText converts request text into the game's byte encoding. The
// result never contains NUL because game strings are NUL-terminated.
func encodeText(enc encoding.Encoding, text string) ([]byte, error) {
	out, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", text, err)
	}

	if bytes.IndexByte(out, 0) >= 0 {
		return nil, fmt.Errorf("%w: %q contains NUL", ErrInvalidRequest, text)
	}

	return out, nil
}
