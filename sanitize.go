// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package modbuilder

import (
	"fmt"
	"strings"
	"unicode"
)

// reservedDeviceNames are device names that cannot be used as file names
// on Windows hosts, where the game and most mod trees live.
var reservedDeviceNames = map[string]struct{}{
	"aux":  {},
	"con":  {},
	"nul":  {},
	"prn":  {},
	"com1": {},
	"com2": {},
	"com3": {},
	"com4": {},
	"com5": {},
	"com6": {},
	"com7": {},
	"com8": {},
	"com9": {},
	"lpt1": {},
	"lpt2": {},
	"lpt3": {},
	"lpt4": {},
	"lpt5": {},
	"lpt6": {},
	"lpt7": {},
	"lpt8": {},
	"lpt9": {},
}

// ValidatePath normalizes a logical path and rejects paths that cannot be
// mapped one-to-one onto a host directory tree: empty paths, parent
// segments, drive prefixes, control characters, characters Windows
// forbids in names and reserved device names. Logical paths must match
// archive entries exactly, so nothing is rewritten.
func ValidatePath(raw string) (string, error) {
	trimmed := normalizePathForMatching(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if strings.HasPrefix(trimmed, "/") || hasWindowsAbsDrivePrefix(trimmed) {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidPath, raw)
	}

	for _, segment := range strings.Split(trimmed, "/") {
		if err := validatePathSegment(segment); err != nil {
			return "", fmt.Errorf("%w: %q: %w", ErrInvalidPath, raw, err)
		}
	}

	clean := NormalizePath(trimmed)
	if clean == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, raw)
	}

	return clean, nil
}

// validatePathSegment checks one slash-separated segment.
func validatePathSegment(segment string) error {
	switch segment {
	case "", ".":
		return nil
	case "..":
		return fmt.Errorf("parent segment")
	}

	for _, r := range segment {
		if isUnsafeControlCharRune(r) {
			return fmt.Errorf("control character %U", r)
		}
		if strings.ContainsRune(`<>:"|?*`, r) {
			return fmt.Errorf("character %q", r)
		}
	}

	if strings.TrimRight(segment, ". ") != segment {
		return fmt.Errorf("segment %q ends with dot or space", segment)
	}

	if isReservedDeviceName(segment) {
		return fmt.Errorf("reserved name %q", segment)
	}

	return nil
}

// isUnsafeControlCharRune reports whether r cannot appear in a host file name.
func isUnsafeControlCharRune(r rune) bool {
	if unicode.IsControl(r) || unicode.In(r, unicode.Cf) {
		return true
	}

	return r == '\uFFFD'
}

// isReservedDeviceName reports whether the base of name is a device name.
func isReservedDeviceName(name string) bool {
	candidate := strings.ToLower(strings.TrimSpace(name))
	if dot := strings.IndexByte(candidate, '.'); dot >= 0 {
		candidate = candidate[:dot]
	}

	_, ok := reservedDeviceNames[candidate]
	return ok
}

// hasWindowsAbsDrivePrefix reports whether p starts with "C:".
func hasWindowsAbsDrivePrefix(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}

	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
