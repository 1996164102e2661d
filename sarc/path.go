// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package sarc

import (
	"fmt"
	"path"
	"strings"
)

// NormalizePath converts an archive path to slash-separated form.
// It trims spaces, accepts both "/" and "\", removes leading "./" and "/",
// and cleans "." segments. Case is preserved.
func NormalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, `\`, `/`)
	raw = strings.TrimPrefix(raw, "./")
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.TrimSuffix(raw, "/")
}

// normalizeArchiveEntryPath converts input to the stored archive form.
func normalizeArchiveEntryPath(raw string) (string, error) {
	normalized := NormalizePath(raw)
	if normalized == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryPath, raw)
	}

	return normalized, nil
}

// normalizeExtractEntryPath normalizes an entry path and rejects absolute or
// traversal inputs.
func normalizeExtractEntryPath(entryPath string) (string, error) {
	raw := strings.TrimSpace(entryPath)
	if raw == "" || strings.ContainsRune(raw, 0) {
		return "", ErrInvalidExtractPath
	}
	if strings.HasPrefix(raw, `/`) || strings.HasPrefix(raw, `\`) {
		return "", ErrInvalidExtractPath
	}

	raw = strings.ReplaceAll(raw, `\`, `/`)
	if hasWindowsAbsDrivePrefix(raw) {
		return "", ErrInvalidExtractPath
	}

	parts := strings.Split(raw, `/`)
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidExtractPath
		default:
			cleanParts = append(cleanParts, part)
		}
	}
	if len(cleanParts) == 0 {
		return "", ErrInvalidExtractPath
	}

	return strings.Join(cleanParts, `/`), nil
}

// hasWindowsAbsDrivePrefix reports whether path starts with a drive root like C:/.
func hasWindowsAbsDrivePrefix(p string) bool {
	if len(p) < 3 {
		return false
	}

	c := p[0]
	return ((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) && p[1] == ':' && p[2] == '/'
}
