// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package sarc

import (
	"fmt"
	"io"
)

// nopCloser wraps a reader and provides a no-op close.
type nopCloser struct {
	io.Reader
}

// Close closes nopCloser (no-op).
func (nopCloser) Close() error {
	return nil
}

// openEntryByInfo opens a payload stream for already resolved entry metadata.
func (r *Reader) openEntryByInfo(info *Entry, name string) (io.ReadCloser, error) {
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if info.IsSymlink {
		return nil, fmt.Errorf("%w: %s", ErrSymlink, name)
	}

	return nopCloser{Reader: io.NewSectionReader(r.ra, int64(info.Offset), int64(info.Length))}, nil
}

// OpenEntry opens the named entry for reading.
func (r *Reader) OpenEntry(name string) (io.ReadCloser, error) {
	if r == nil || r.ra == nil {
		return nil, ErrNilReader
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	info, _ := r.header.Find(name)
	return r.openEntryByInfo(info, name)
}

// ReadEntry reads the full content of the named entry.
func (r *Reader) ReadEntry(name string) ([]byte, error) {
	rc, err := r.OpenEntry(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}
