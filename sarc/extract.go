// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package sarc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// extractCopyBufferSize defines per-worker buffer size for file copy during extraction.
const extractCopyBufferSize = 64 * 1024

// extractWorkItem stores one selected entry with its prepared output path.
type extractWorkItem struct {
	relPath string
	entry   Entry
}

// Extract writes selected entries to dstDir under their archive paths.
// Symlink entries are skipped. Extraction is parallelized by MaxWorkers; on
// failure it returns the first encountered error.
func (r *Reader) Extract(ctx context.Context, dstDir string, opts ExtractOptions) error {
	if r == nil || r.ra == nil {
		return ErrNilReader
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	workItems, err := r.prepareExtractWorkItems(opts.Entries)
	if err != nil {
		return err
	}

	if len(workItems) == 0 {
		return nil
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}

	taskCh := make(chan extractWorkItem, len(workItems))
	errCh := make(chan error, len(workItems))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Go(func() {
			copyBuf := make([]byte, extractCopyBufferSize)
			for task := range taskCh {
				err := r.extractPreparedEntry(ctx, dstRootAbs, task, copyBuf, opts.OnEntryDone)
				errCh <- err
				if err != nil {
					cancel()
				}
			}
		})
	}

	for _, task := range workItems {
		taskCh <- task
	}

	close(taskCh)
	wg.Wait()
	close(errCh)

	return firstFailure(errCh)
}

// firstFailure drains errs and returns the first real failure. Cancellations
// caused by a sibling's failure are reported only when nothing else failed.
func firstFailure(errs <-chan error) error {
	var first, canceled error
	for err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			if canceled == nil {
				canceled = err
			}
		case first == nil:
			first = err
		}
	}

	if first != nil {
		return first
	}

	return canceled
}

// prepareExtractWorkItems resolves selected names and validates output paths.
func (r *Reader) prepareExtractWorkItems(names []string) ([]extractWorkItem, error) {
	entries := r.header.Entries
	if names != nil {
		entries = make([]Entry, 0, len(names))
		for _, name := range names {
			e, ok := r.header.Find(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
			}
			entries = append(entries, *e)
		}
	}

	workItems := make([]extractWorkItem, 0, len(entries))
	for _, entry := range entries {
		if entry.IsSymlink {
			continue
		}

		normalizedPath, err := normalizeExtractEntryPath(entry.Path)
		if err != nil {
			return nil, fmt.Errorf("normalize entry path %s: %w", entry.Path, err)
		}

		workItems = append(workItems, extractWorkItem{entry: entry, relPath: filepath.FromSlash(normalizedPath)})
	}

	return workItems, nil
}

// extractPreparedEntry writes one prepared work item below dstRootAbs.
func (r *Reader) extractPreparedEntry(
	ctx context.Context,
	dstRootAbs string,
	task extractWorkItem,
	copyBuf []byte,
	onEntryDone func(entry Entry, outputPath string),
) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	outPath := filepath.Join(dstRootAbs, task.relPath)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return fmt.Errorf("create output directory for %s: %w", task.entry.Path, err)
	}

	rc, err := r.openEntryByInfo(&task.entry, task.entry.Path)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	file, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", task.entry.Path, err)
	}

	_, copyErr := io.CopyBuffer(file, rc, copyBuf)
	closeErr := file.Close()
	if copyErr != nil {
		return fmt.Errorf("write %s: %w", task.entry.Path, copyErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close %s: %w", task.entry.Path, closeErr)
	}

	if onEntryDone != nil {
		onEntryDone(task.entry, outPath)
	}

	return nil
}
