// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package modbuilder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/xuexu/cotw-mod-builder-sub000/patch"
	"github.com/xuexu/cotw-mod-builder-sub000/sheet"
)

// LoadRequests decodes a JSON array of edit requests and validates each.
func LoadRequests(r io.Reader) ([]EditRequest, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var reqs []EditRequest
	if err := dec.Decode(&reqs); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalidRequest, err)
	}

	for i := range reqs {
		if err := reqs[i].Validate(); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
	}

	return reqs, nil
}

// LoadRequestsFile reads requests from a JSON file.
func LoadRequestsFile(path string) ([]EditRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open requests: %w", err)
	}
	defer func() { _ = f.Close() }()

	return LoadRequests(f)
}

// Validate checks that the fields required by the request kind are set.
func (r *EditRequest) Validate() error {
	switch r.Kind {
	case KindOffsetWrite:
		return r.validateOffsetWrite()
	case KindCoordinateWrite:
		if err := r.requireFile(); err != nil {
			return err
		}
		if r.Sheet == "" && r.SheetIndex == nil {
			return fmt.Errorf("%w: %s needs sheet or sheet_index", ErrInvalidRequest, r.Kind)
		}
		if _, _, err := sheet.ParseCoordinate(r.Coord); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		if _, err := parseCellType(r.Type); err != nil {
			return err
		}
		return nil
	case KindArrayInsert:
		if err := r.requireFile(); err != nil {
			return err
		}
		if r.OldLen < 0 || r.DataOffset < 0 || r.ArrayHeaderOffset < 0 {
			return fmt.Errorf("%w: negative array_insert field", ErrInvalidRequest)
		}
		return nil
	case KindArchiveMerge, KindArchiveExpand:
		if err := r.requireFile(); err != nil {
			return err
		}
		return r.requireArchive()
	case KindArchiveRebuild:
		if err := r.requireArchive(); err != nil {
			return err
		}
		if len(r.ChangedFiles) == 0 {
			return fmt.Errorf("%w: %s needs changed_files", ErrInvalidRequest, r.Kind)
		}
		for _, f := range r.ChangedFiles {
			if _, err := ValidatePath(f); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, r.Kind)
	}
}

func (r *EditRequest) validateOffsetWrite() error {
	if err := r.requireFile(); err != nil {
		return err
	}

	addressed := 0
	if r.Offset != nil {
		addressed++
	}
	if r.ADFPath != "" {
		addressed++
	}
	if len(r.RTPCPath) > 0 {
		addressed++
	}
	if addressed != 1 {
		return fmt.Errorf("%w: %s needs exactly one of offset, adf_path, rtpc_path", ErrInvalidRequest, r.Kind)
	}

	if r.Offset != nil && *r.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrInvalidRequest, *r.Offset)
	}
	for _, name := range r.RTPCPath {
		if name == "" {
			return fmt.Errorf("%w: empty rtpc_path segment", ErrInvalidRequest)
		}
	}

	if _, err := patch.ParseKind(r.Type); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	switch r.Transform {
	case "", patch.TransformSet, patch.TransformAdd, patch.TransformMultiply:
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidRequest, patch.ErrUnknownTransform, r.Transform)
	}

	return nil
}

func (r *EditRequest) requireFile() error {
	if _, err := ValidatePath(r.File); err != nil {
		return fmt.Errorf("%w: file: %w", ErrInvalidRequest, err)
	}

	return nil
}

func (r *EditRequest) requireArchive() error {
	if _, err := ValidatePath(r.Archive); err != nil {
		return fmt.Errorf("%w: archive: %w", ErrInvalidRequest, err)
	}

	return nil
}

// entryPath returns the path of File inside Archive.
func (r *EditRequest) entryPath() string {
	if r.Entry != "" {
		return NormalizePath(r.Entry)
	}

	return NormalizePath(r.File)
}

// touched returns the logical paths a request reads or writes in the
// working tree.
func (r *EditRequest) touched() []string {
	switch r.Kind {
	case KindArchiveMerge, KindArchiveExpand:
		return []string{r.File, r.Archive}
	case KindArchiveRebuild:
		return append([]string{r.Archive}, r.ChangedFiles...)
	default:
		return []string{r.File}
	}
}

// parseCellType maps a request type name to a cell type. Empty means float.
func parseCellType(name string) (sheet.CellType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "float", "f32", "value":
		return sheet.TypeFloat, nil
	case "bool":
		return sheet.TypeBool, nil
	case "string", "str":
		return sheet.TypeString, nil
	default:
		return 0, fmt.Errorf("%w: cell type %q", ErrInvalidRequest, name)
	}
}

// cellValue converts the request value into a sheet value.
func (r *EditRequest) cellValue(enc func(string) ([]byte, error)) (sheet.Value, error) {
	t, err := parseCellType(r.Type)
	if err != nil {
		return sheet.Value{}, err
	}

	text := strings.TrimSpace(r.Value)
	switch t {
	case sheet.TypeBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return sheet.Value{}, fmt.Errorf("%w: bool value %q", ErrInvalidRequest, r.Value)
		}
		return sheet.Bool(b), nil
	case sheet.TypeString:
		b, err := enc(r.Value)
		if err != nil {
			return sheet.Value{}, err
		}
		return sheet.String(b), nil
	default:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return sheet.Value{}, fmt.Errorf("%w: float value %q", ErrInvalidRequest, r.Value)
		}
		return sheet.Float(float32(f)), nil
	}
}

// sheetRef returns the sheet selector of a CoordinateWrite.
func (r *EditRequest) sheetRef() sheet.SheetRef {
	if r.Sheet == "" && r.SheetIndex != nil {
		return sheet.SheetIndex(*r.SheetIndex)
	}

	return sheet.SheetName(r.Sheet)
}
