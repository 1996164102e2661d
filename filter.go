// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package modbuilder

import (
	"strings"

	"github.com/xuexu/cotw-mod-builder-sub000/sarc"
)

// filterPayloadEntries removes entries that cannot be served from their
// host: symlinks into other archives and paths that do not map onto a
// directory tree.
func filterPayloadEntries(entries []sarc.Entry) []sarc.Entry {
	if len(entries) == 0 {
		return entries
	}

	filtered := make([]sarc.Entry, 0, len(entries))
	for i := range entries {
		entry := entries[i]
		if entry.IsSymlink {
			continue
		}
		if _, err := ValidatePath(entry.Path); err != nil {
			continue
		}

		filtered = append(filtered, entry)
	}

	return filtered
}

// filterEntriesByRules keeps entries included by matcher. A nil matcher
// keeps everything.
func filterEntriesByRules(entries []sarc.Entry, matcher *ruleMatcher) []sarc.Entry {
	if matcher == nil {
		return entries
	}

	out := make([]sarc.Entry, 0, len(entries))
	for _, entry := range entries {
		if matcher.Match(entry.Path, false, true) {
			out = append(out, entry)
		}
	}

	return out
}

// filterIndexByPrefix keeps index entries under prefix, or the exact entry
// when prefix names a file.
func filterIndexByPrefix(entries []IndexEntry, prefix string) []IndexEntry {
	prefix = NormalizePath(prefix)
	if prefix == "" {
		return entries
	}

	withSlash := prefix + "/"
	out := make([]IndexEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Path == prefix || strings.HasPrefix(entry.Path, withSlash) {
			out = append(out, entry)
		}
	}

	return out
}
