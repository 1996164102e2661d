// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package modbuilder

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// NormalizePath converts a logical asset path to slash-separated form.
// It trims spaces, accepts both "/" and "\", removes leading "./" and "/",
// and cleans "." segments. Case is kept.
func NormalizePath(raw string) string {
	raw = normalizePathForMatching(raw)
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.TrimSuffix(raw, "/")
}

// normalizePathForMatching normalizes user and config paths for matcher use.
func normalizePathForMatching(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, `\`, `/`)
	p = strings.TrimPrefix(p, "./")
	return p
}

// resolvePath maps a logical path onto root. The logical path is
// validated first so the result always stays under root.
func resolvePath(root string, logical string) (string, string, error) {
	clean, err := ValidatePath(logical)
	if err != nil {
		return "", "", err
	}

	return filepath.Join(root, filepath.FromSlash(clean)), clean, nil
}

// relativeLogical converts a host path below root back to a logical path.
func relativeLogical(root string, hostPath string) (string, error) {
	rel, err := filepath.Rel(root, hostPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidPath, hostPath, err)
	}

	return NormalizePath(filepath.ToSlash(rel)), nil
}
