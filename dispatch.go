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

	"github.com/xuexu/cotw-mod-builder-sub000/adf"
	"github.com/xuexu/cotw-mod-builder-sub000/internal/fsutil"
	"github.com/xuexu/cotw-mod-builder-sub000/patch"
	"github.com/xuexu/cotw-mod-builder-sub000/rtpc"
	"github.com/xuexu/cotw-mod-builder-sub000/sarc"
	"github.com/xuexu/cotw-mod-builder-sub000/sheet"
)

// target returns the logical file a request rewrites.
func (r *EditRequest) target() string {
	if r.Kind.patches() {
		return NormalizePath(r.File)
	}

	return NormalizePath(r.Archive)
}

// dispatch runs one request against the working tree. Every handler
// commits through a temporary file, so a failed attempt leaves the tree
// unchanged.
func (b *Builder) dispatch(ctx context.Context, r *EditRequest, res *RequestResult) error {
	switch r.Kind {
	case KindOffsetWrite:
		return b.offsetWrite(r, res)
	case KindCoordinateWrite:
		return b.coordinateWrite(r, res)
	case KindArrayInsert:
		return b.arrayInsert(r, res)
	case KindArchiveMerge:
		return b.archiveMerge(ctx, r)
	case KindArchiveExpand:
		return b.archiveExpand(ctx, r, res)
	case KindArchiveRebuild:
		return b.archiveRebuild(ctx, r)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, r.Kind)
	}
}

// readWorking loads a working file.
func (b *Builder) readWorking(logical string) (string, []byte, error) {
	p, _, err := resolvePath(b.opts.WorkingDir, logical)
	if err != nil {
		return "", nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil, fmt.Errorf("%w: %s", ErrMissingFile, logical)
		}
		return p, nil, fmt.Errorf("read %s: %w", logical, err)
	}

	return p, data, nil
}

// writeWorking commits data over a working file and drops its cached book.
func (b *Builder) writeWorking(logical string, p string, data []byte) error {
	delete(b.books, NormalizePath(logical))
	return fsutil.WriteFileAtomic(p, data, 0o644)
}

func (b *Builder) offsetWrite(r *EditRequest, res *RequestResult) error {
	p, data, err := b.readWorking(r.File)
	if err != nil {
		return err
	}

	kind, err := patch.ParseKind(r.Type)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	var value patch.Value
	switch kind {
	case patch.KindString, patch.KindBytes:
		text, err := encodeText(b.enc, r.Value)
		if err != nil {
			return err
		}
		if kind == patch.KindString {
			value = patch.String(text)
		} else {
			value = patch.Bytes(text)
		}
	default:
		if value, err = patch.Parse(kind, r.Value); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}

	var offset int64
	switch {
	case r.Offset != nil:
		offset = *r.Offset
	case r.ADFPath != "":
		v, err := lookupADF(data, r.ADFPath)
		if err != nil {
			return err
		}

		// Strings of a different length are relocated through the pointer.
		if v.Kind == adf.KindString && kind == patch.KindString && len(value.Bytes) != len(v.Bytes) {
			out, err := adf.ReplaceString(data, v.InfoOffset, value.Bytes)
			if err != nil {
				return err
			}
			res.Writes = 1
			return b.writeWorking(r.File, p, out)
		}
		offset = v.DataOffset
	default:
		f, err := rtpc.Parse(data)
		if err != nil {
			return err
		}
		n := len(r.RTPCPath)
		prop, err := f.Lookup(r.RTPCPath[:n-1], r.RTPCPath[n-1])
		if err != nil {
			return err
		}
		offset = prop.DataPos
	}

	out, err := patch.ApplyBytes(data, []patch.Write{{
		Value:     value,
		Transform: r.Transform,
		Offset:    offset,
		Width:     r.Width,
	}})
	if err != nil {
		return err
	}
	res.Writes = 1

	return b.writeWorking(r.File, p, out)
}

// lookupADF resolves a value path from the root instance.
func lookupADF(data []byte, path string) (*adf.Value, error) {
	f, err := adf.Parse(data)
	if err != nil {
		return nil, err
	}

	root, err := f.Root()
	if err != nil {
		return nil, err
	}

	return root.Lookup(path)
}

// coordinateWrite plans against the cached book of the file so consecutive
// edits see earlier ones. The book commits only after the file does.
func (b *Builder) coordinateWrite(r *EditRequest, res *RequestResult) error {
	p, _, err := resolvePath(b.opts.WorkingDir, r.File)
	if err != nil {
		return err
	}

	key := NormalizePath(r.File)
	st, ok := b.books[key]
	if !ok {
		_, data, err := b.readWorking(r.File)
		if err != nil {
			return err
		}
		f, err := adf.Parse(data)
		if err != nil {
			return err
		}
		book, err := sheet.Open(f)
		if err != nil {
			return err
		}
		st = &bookState{book: book, data: data}
		b.books[key] = st
	}

	value, err := r.cellValue(func(s string) ([]byte, error) { return encodeText(b.enc, s) })
	if err != nil {
		return err
	}

	var before [][]sheet.Value
	verbose := r.Flags != nil && r.Flags.Verbose
	if verbose {
		if before, err = st.book.Snapshot(); err != nil {
			return err
		}
	}

	plan, err := st.book.PlanEdit(sheet.CellEdit{
		Flags:     r.Flags,
		Sheet:     r.sheetRef(),
		Coord:     r.Coord,
		Value:     value,
		Transform: r.Transform,
	}, sheet.Flags{Logger: b.opts.Logger})
	if err != nil {
		return err
	}
	res.Plan = plan

	if len(plan.Writes) > 0 {
		out, err := patch.ApplyBytes(st.data, plan.Writes)
		if err != nil {
			return err
		}
		if err := fsutil.WriteFileAtomic(p, out, 0o644); err != nil {
			return err
		}
		st.data = out
	}

	st.book.Commit(plan)
	res.Writes = len(plan.Writes)

	if verbose {
		b.logCellDiff(r.File, st.book, before)
	}

	return nil
}

// logCellDiff logs every displayed cell that changed since before. The
// sheet layout never changes, so both snapshots have the same shape.
func (b *Builder) logCellDiff(file string, book *sheet.Book, before [][]sheet.Value) {
	after, err := book.Snapshot()
	if err != nil {
		b.opts.Logger.Debug("cell diff unavailable", slog.String("file", file), slog.Any("error", err))
		return
	}

	names := book.Sheets()
	for si := range after {
		for slot, v := range after[si] {
			if before[si][slot].Equal(v) {
				continue
			}

			b.opts.Logger.Info("cell changed",
				slog.String("file", file),
				slog.String("sheet", names[si]),
				slog.Int("slot", slot),
				slog.String("from", before[si][slot].String()),
				slog.String("to", v.String()),
			)
		}
	}
}

func (b *Builder) arrayInsert(r *EditRequest, res *RequestResult) error {
	p, data, err := b.readWorking(r.File)
	if err != nil {
		return err
	}

	out, err := adf.InsertArrayData(data, r.ArrayHeaderOffset, r.DataOffset, r.NewBytes, r.OldLen)
	if err != nil {
		return err
	}
	res.Writes = 1

	return b.writeWorking(r.File, p, out)
}

func (b *Builder) archiveMerge(ctx context.Context, r *EditRequest) error {
	_, payload, err := b.readWorking(r.File)
	if err != nil {
		return err
	}

	archive, _, err := resolvePath(b.opts.WorkingDir, r.Archive)
	if err != nil {
		return err
	}

	if err := sarc.MergeFile(ctx, archive, r.entryPath(), payload); err != nil {
		return err
	}
	b.merged = append(b.merged, r.File)

	return nil
}

func (b *Builder) archiveExpand(ctx context.Context, r *EditRequest, res *RequestResult) error {
	_, payload, err := b.readWorking(r.File)
	if err != nil {
		return err
	}

	archive, _, err := resolvePath(b.opts.WorkingDir, r.Archive)
	if err != nil {
		return err
	}

	plan, err := sarc.ExpandFile(ctx, archive, r.entryPath(), payload)
	if err != nil {
		return err
	}
	res.Expand = plan
	b.merged = append(b.merged, r.File)

	return nil
}

func (b *Builder) archiveRebuild(ctx context.Context, r *EditRequest) error {
	changed := make(map[string][]byte, len(r.ChangedFiles))
	for _, f := range r.ChangedFiles {
		_, data, err := b.readWorking(f)
		if err != nil {
			return err
		}
		changed[NormalizePath(f)] = data
	}

	archive, _, err := resolvePath(b.opts.WorkingDir, r.Archive)
	if err != nil {
		return err
	}

	if err := sarc.RebuildFile(ctx, archive, changed, b.opts.ArchiveOptions); err != nil {
		return err
	}
	b.merged = append(b.merged, r.ChangedFiles...)

	return nil
}

// isParseError reports a file whose bytes do not decode. Later requests
// on that file fail fast.
func isParseError(err error) bool {
	for _, target := range []error{
		adf.ErrParse, adf.ErrOutOfData, adf.ErrUnknownType,
		rtpc.ErrParse, rtpc.ErrOutOfData,
		sarc.ErrParse, sarc.ErrOutOfData,
		sheet.ErrIncorrectFileFormat,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
