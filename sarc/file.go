// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package sarc

import (
	"context"
	"fmt"
	"os"

	"github.com/xuexu/cotw-mod-builder-sub000/internal/fsutil"
)

// ListEntries parses an archive file and returns its entries.
func ListEntries(path string) ([]Entry, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	return r.Entries(), nil
}

// ReadEntryFile reads one entry payload from an archive file.
func ReadEntryFile(path string, entryPath string) ([]byte, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	return r.ReadEntry(entryPath)
}

// MergeFile overwrites entryPath inside the archive at path in place.
// The archive is replaced through a temporary file only when the merge succeeds.
func MergeFile(ctx context.Context, path string, entryPath string, payload []byte) error {
	return rewriteArchiveFile(ctx, path, func(archive []byte) ([]byte, error) {
		return Merge(archive, entryPath, payload)
	})
}

// ExpandFile replaces entryPath inside the archive at path with a payload of
// any length.
func ExpandFile(ctx context.Context, path string, entryPath string, payload []byte) (*ExpandPlan, error) {
	var plan *ExpandPlan
	err := rewriteArchiveFile(ctx, path, func(archive []byte) ([]byte, error) {
		out, p, err := Expand(archive, entryPath, payload)
		plan = p
		return out, err
	})
	if err != nil {
		return nil, err
	}

	return plan, nil
}

// RebuildFile rebuilds the archive at path with the changed payloads.
func RebuildFile(ctx context.Context, path string, changed map[string][]byte, opts Options) error {
	return rewriteArchiveFile(ctx, path, func(archive []byte) ([]byte, error) {
		return Rebuild(archive, changed, opts)
	})
}

// rewriteArchiveFile loads path, transforms it and commits by rename.
func rewriteArchiveFile(ctx context.Context, path string, transform func([]byte) ([]byte, error)) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	archive, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}

	out, err := transform(archive)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return fsutil.WriteFileAtomic(path, out, info.Mode().Perm())
}
