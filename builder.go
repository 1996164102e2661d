// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package modbuilder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding"

	"github.com/xuexu/cotw-mod-builder-sub000/internal/fsutil"
	"github.com/xuexu/cotw-mod-builder-sub000/sheet"
)

// Builder queues edit requests and applies them to a fresh working tree.
type Builder struct {
	opts  BuildOptions
	enc   encoding.Encoding
	index *HostIndex
	queue []EditRequest

	// per-build state, reset by Build
	books    map[string]*bookState
	poisoned map[string]error
	merged   []string
	report   *BuildReport

	// mu guards queue, state, running and closed.
	mu      sync.Mutex
	state   State
	running bool
	closed  bool
}

// bookState is the parsed sheet-book of one working file and the bytes it
// mirrors.
type bookState struct {
	book *sheet.Book
	data []byte
}

// NewBuilder validates options and returns an idle builder.
func NewBuilder(opts BuildOptions) (*Builder, error) {
	opts.OriginalsDir = strings.TrimSpace(opts.OriginalsDir)
	opts.WorkingDir = strings.TrimSpace(opts.WorkingDir)
	if opts.OriginalsDir == "" || opts.WorkingDir == "" {
		return nil, fmt.Errorf("%w: originals and working directories are required", ErrInvalidPath)
	}

	orig, err := filepath.Abs(opts.OriginalsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	work, err := filepath.Abs(opts.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	if orig == work || isUnder(work, orig) || isUnder(orig, work) {
		return nil, fmt.Errorf("%w: working tree %s overlaps originals %s", ErrInvalidPath, work, orig)
	}
	opts.OriginalsDir, opts.WorkingDir = orig, work

	opts.applyDefaults()

	enc, err := lookupEncoding(opts.StringEncoding)
	if err != nil {
		return nil, err
	}

	if _, err := newRuleMatcher(opts.IndexRules, opts.MatcherOptions); err != nil {
		return nil, err
	}
	if _, err := newRuleMatcher(opts.PruneKeep, opts.MatcherOptions); err != nil {
		return nil, err
	}

	return &Builder{
		opts:  opts,
		enc:   enc,
		index: opts.Index,
		queue: make([]EditRequest, 0, 16),
	}, nil
}

// Enqueue validates and appends requests. Requests run in insertion order
// within their phase.
func (b *Builder) Enqueue(reqs ...EditRequest) error {
	if b == nil {
		return ErrClosed
	}

	for i := range reqs {
		if err := reqs[i].Validate(); err != nil {
			return fmt.Errorf("request %d: %w", i, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	if err := checkArchiveOrder(b.queue, reqs); err != nil {
		return err
	}

	b.queue = append(b.queue, reqs...)
	return nil
}

// checkArchiveOrder rejects a patch request on an archive that an earlier
// archive request already rewrites. Patches run before merges, so such a
// patch would land at offsets from before the archive changed.
func checkArchiveOrder(queued []EditRequest, reqs []EditRequest) error {
	archives := make(map[string]struct{})
	for i := range queued {
		if !queued[i].Kind.patches() {
			archives[queued[i].target()] = struct{}{}
		}
	}

	for i := range reqs {
		target := reqs[i].target()
		if !reqs[i].Kind.patches() {
			archives[target] = struct{}{}
			continue
		}
		if _, ok := archives[target]; ok {
			return fmt.Errorf("request %d: %w: %s %s follows an archive request on it", i, ErrInvalidRequest, reqs[i].Kind, target)
		}
	}

	return nil
}

// Pending returns the number of queued requests.
func (b *Builder) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.queue)
}

// State returns the current build phase.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Close rejects further Enqueue and Build calls.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	b.closed = true
	b.queue = nil
	return nil
}

// Build clears the working tree and runs the queued requests:
// copies of every touched original, then patch requests, then archive
// requests, then pruning. The queue is consumed. When a request fails and
// ContinueOnError is false, the previous working tree is restored if a
// backup was kept and the builder returns to StateIdle.
func (b *Builder) Build(ctx context.Context) (*BuildReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	b.mu.Lock()
	switch {
	case b.closed:
		b.mu.Unlock()
		return nil, ErrClosed
	case b.running:
		b.mu.Unlock()
		return nil, ErrBusy
	}
	b.running = true
	queue := b.queue
	b.queue = make([]EditRequest, 0, 16)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	start := time.Now()
	b.books = make(map[string]*bookState)
	b.poisoned = make(map[string]error)
	b.merged = nil
	b.report = &BuildReport{Results: make([]RequestResult, len(queue))}
	for i := range queue {
		b.report.Results[i] = RequestResult{Index: i, Kind: queue[i].Kind, File: queue[i].File}
	}

	report, err := b.run(ctx, queue)
	report.Duration = time.Since(start)
	if err != nil {
		b.setState(StateIdle)
		b.opts.Logger.Error("build failed", slog.Any("error", err), slog.Int("failed", report.Failed))
		return report, err
	}

	b.setState(StateDone)
	b.opts.Logger.Info("build done",
		slog.Int("requests", len(queue)),
		slog.Int("copied", len(report.Copied)),
		slog.Int("pruned", len(report.Pruned)),
		slog.Duration("duration", report.Duration),
	)

	return report, nil
}

// run executes the phases and collects request failures.
func (b *Builder) run(ctx context.Context, queue []EditRequest) (*BuildReport, error) {
	report := b.report
	var failures []error

	b.setState(StateCopying)
	backedUp, err := b.ClearWorkingTree()
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrBuild, err)
	}

	abort := func(err error) (*BuildReport, error) {
		if backedUp {
			if rbErr := fsutil.Rollback(b.opts.WorkingDir, b.opts.WorkingDir+".bak"); rbErr != nil {
				return report, fmt.Errorf("%w: %w (rollback failed: %v)", ErrBuild, err, rbErr)
			}
		}

		return report, fmt.Errorf("%w: %w", ErrBuild, err)
	}

	fail := func(i int, err error) bool {
		req := &queue[i]
		res := &report.Results[i]
		res.Err = err
		report.Failed++
		reqErr := &RequestError{Index: i, Kind: req.Kind, File: req.File, Err: err}
		failures = append(failures, reqErr)
		b.opts.Logger.Warn("request failed", slog.Int("index", i), slog.String("kind", string(req.Kind)), slog.String("file", req.File), slog.Any("error", err))
		b.notify(*res)

		return !b.opts.ContinueOnError
	}

	if err := b.loadIndex(ctx); err != nil {
		return abort(err)
	}

	failed := make([]bool, len(queue))
	for i := range queue {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}

		for _, p := range queue[i].touched() {
			attempts, err := b.withRetry(ctx, func() error {
				_, err := b.CopyOriginal(p)
				return err
			})
			report.Results[i].Attempts += attempts
			if err != nil {
				failed[i] = true
				if fail(i, err) {
					return abort(errors.Join(failures...))
				}
				break
			}
		}
	}

	for _, phase := range []State{StatePatching, StateMerging} {
		b.setState(phase)
		for i := range queue {
			req := &queue[i]
			if failed[i] || req.Kind.patches() != (phase == StatePatching) {
				continue
			}

			if err := ctx.Err(); err != nil {
				return abort(err)
			}

			if err := b.runRequest(ctx, i, req); err != nil {
				failed[i] = true
				if fail(i, err) {
					return abort(errors.Join(failures...))
				}
				continue
			}

			b.notify(report.Results[i])
		}
	}

	b.setState(StatePruning)
	if err := b.removeMerged(); err != nil {
		return abort(err)
	}
	pruned, err := b.PruneEmptyDirs()
	if err != nil {
		return abort(err)
	}
	report.Pruned = pruned

	if backedUp && b.opts.BackupKeep == 0 {
		if err := fsutil.RemoveAllIfExists(b.opts.WorkingDir + ".bak"); err != nil {
			return report, fmt.Errorf("%w: remove backup: %w", ErrBuild, err)
		}
	}

	if len(failures) > 0 {
		return report, fmt.Errorf("%w: %w", ErrBuild, errors.Join(failures...))
	}

	return report, nil
}

// runRequest checks poisoning, dispatches with retry and poisons the file
// when it does not parse.
func (b *Builder) runRequest(ctx context.Context, i int, req *EditRequest) error {
	target := req.target()
	if err, ok := b.poisoned[target]; ok {
		return fmt.Errorf("%w: %s: %w", ErrPoisoned, target, err)
	}

	res := &b.report.Results[i]
	attempts, err := b.withRetry(ctx, func() error {
		return b.dispatch(ctx, req, res)
	})
	res.Attempts += attempts

	if err != nil && isParseError(err) {
		b.poisoned[target] = err
		delete(b.books, target)
	}

	b.opts.Logger.Debug("request done",
		slog.Int("index", i),
		slog.String("kind", string(req.Kind)),
		slog.String("file", req.File),
		slog.Int("attempts", res.Attempts),
		slog.Bool("ok", err == nil),
	)

	return err
}

// ClearWorkingTree empties the working tree. With BackupKeep > 0 the old
// tree is rotated to `<working>.bak` first, otherwise it moves there until
// the build succeeds. It reports whether a backup exists.
func (b *Builder) ClearWorkingTree() (bool, error) {
	work := b.opts.WorkingDir
	backup := work + ".bak"

	info, err := os.Stat(work)
	exists := err == nil
	switch {
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("stat working tree: %w", err)
	case exists && !info.IsDir():
		return false, fmt.Errorf("%w: working tree %s is not a directory", ErrFileExists, work)
	}

	if exists {
		if err := fsutil.PrepareBackupSlot(backup, max(b.opts.BackupKeep, 1)); err != nil {
			return false, err
		}
		if err := os.Rename(work, backup); err != nil {
			return false, fmt.Errorf("move working tree to backup: %w", err)
		}
	}

	if err := os.MkdirAll(work, 0o750); err != nil {
		return exists, fmt.Errorf("create working tree: %w", err)
	}

	return exists, nil
}

// CopyOriginal copies a logical file into the working tree the first time
// it is touched. A file missing from the originals tree is extracted from
// its indexed host archive. It reports whether a copy was made.
func (b *Builder) CopyOriginal(logical string) (bool, error) {
	dst, clean, err := resolvePath(b.opts.WorkingDir, logical)
	if err != nil {
		return false, err
	}

	if ok, err := fsutil.Exists(dst); err != nil || ok {
		return false, err
	}

	src, _, err := resolvePath(b.opts.OriginalsDir, clean)
	if err != nil {
		return false, err
	}

	ok, err := fsutil.Exists(src)
	if err != nil {
		return false, err
	}

	switch {
	case ok:
		if err := fsutil.CopyFile(src, dst); err != nil {
			return false, err
		}
	case b.index != nil:
		data, err := b.index.Extract(b.opts.OriginalsDir, clean)
		if err != nil {
			return false, err
		}
		if err := fsutil.WriteFileAtomic(dst, data, 0o644); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("%w: %s", ErrMissingFile, clean)
	}

	if b.report != nil {
		b.report.Copied = append(b.report.Copied, clean)
	}
	b.opts.Logger.Debug("copied original", slog.String("file", clean), slog.Bool("from_archive", !ok))

	return true, nil
}

// PruneEmptyDirs removes empty directories below the working root,
// deepest first. Directories matched by PruneKeep stay.
func (b *Builder) PruneEmptyDirs() ([]string, error) {
	keep, err := newRuleMatcher(b.opts.PruneKeep, b.opts.MatcherOptions)
	if err != nil {
		return nil, err
	}

	root := b.opts.WorkingDir
	var dirs []string
	err = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && p != root {
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk working tree: %w", err)
	}

	var pruned []string
	for _, dir := range slices.Backward(dirs) {
		logical, err := relativeLogical(root, dir)
		if err != nil {
			return pruned, err
		}
		if keep.Match(logical, true, false) {
			continue
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return pruned, fmt.Errorf("read %s: %w", dir, err)
		}
		if len(entries) > 0 {
			continue
		}

		if err := os.Remove(dir); err != nil {
			return pruned, fmt.Errorf("remove %s: %w", dir, err)
		}
		pruned = append(pruned, logical)
	}

	return pruned, nil
}

// removeMerged deletes loose working files that now live in their archive.
func (b *Builder) removeMerged() error {
	if !b.opts.RemoveMerged {
		return nil
	}

	for _, logical := range b.merged {
		p, clean, err := resolvePath(b.opts.WorkingDir, logical)
		if err != nil {
			return err
		}
		if err := fsutil.RemoveAllIfExists(p); err != nil {
			return err
		}
		b.report.Removed = append(b.report.Removed, clean)
	}

	return nil
}

// loadIndex resolves the host index once per builder: an explicit index,
// then a cache that covers IndexHosts, then a fresh scan saved to the cache.
func (b *Builder) loadIndex(ctx context.Context) error {
	if b.index != nil || len(b.opts.IndexHosts) == 0 {
		return nil
	}

	if b.opts.IndexCache != "" {
		cached, err := LoadHostIndex(b.opts.IndexCache)
		switch {
		case err == nil && cached.current(b.opts.OriginalsDir, b.opts.IndexHosts):
			b.index = cached
			return nil
		case err == nil:
			b.opts.Logger.Info("host index cache stale, rescanning", slog.String("path", b.opts.IndexCache))
		case err != nil && !errors.Is(err, os.ErrNotExist):
			b.opts.Logger.Warn("host index cache unusable, rescanning", slog.String("path", b.opts.IndexCache), slog.Any("error", err))
		}
	}

	index, err := BuildHostIndex(ctx, b.opts.OriginalsDir, b.opts.IndexHosts, b.opts.IndexRules, b.opts.MatcherOptions)
	if err != nil {
		return err
	}
	b.index = index
	b.opts.Logger.Info("host index built", slog.Int("hosts", len(index.Hosts())), slog.Int("files", index.Len()))

	if b.opts.IndexCache != "" {
		if err := index.Save(b.opts.IndexCache, b.opts.IndexCodec); err != nil {
			return err
		}
	}

	return nil
}

func (b *Builder) setState(s State) {
	b.mu.Lock()
	prev := b.state
	b.state = s
	b.mu.Unlock()

	if prev != s {
		b.opts.Logger.Info("build phase", slog.String("from", prev.String()), slog.String("to", s.String()))
	}
}

func (b *Builder) notify(res RequestResult) {
	if b.opts.OnRequestDone != nil {
		b.opts.OnRequestDone(res)
	}
}

// isUnder reports whether p is strictly inside dir.
func isUnder(p string, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}

	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
