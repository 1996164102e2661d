// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package modbuilder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/woozymasta/pathrules"
	"github.com/xuexu/cotw-mod-builder-sub000/internal/fsutil"
	"github.com/xuexu/cotw-mod-builder-sub000/sarc"
)

// IndexEntry locates one logical file inside a host archive.
type IndexEntry struct {
	// Path is the logical path of the file.
	Path string `json:"path" yaml:"path"`
	// Host is the logical path of the archive holding it.
	Host   string `json:"host" yaml:"host"`
	Offset uint32 `json:"offset" yaml:"offset"`
	Length uint32 `json:"length" yaml:"length"`
}

// HostStamp records the size and modification time of a host archive when
// it was scanned.
type HostStamp struct {
	Host    string `json:"host" yaml:"host"`
	Size    int64  `json:"size" yaml:"size"`
	ModTime int64  `json:"mod_time" yaml:"mod_time"`
}

// HostIndex maps logical paths to the archives that carry them. It is
// built once per originals tree and cached on disk.
type HostIndex struct {
	byPath  map[string]int
	hosts   []string
	stamps  []HostStamp
	entries []IndexEntry
}

// indexFile is the JSON payload of the cache container.
type indexFile struct {
	Hosts   []string     `json:"hosts"`
	Stamps  []HostStamp  `json:"stamps,omitempty"`
	Entries []IndexEntry `json:"entries"`
}

// NewHostIndex indexes entries in order. When a path appears twice the
// first entry wins, matching the scan order of hosts.
func NewHostIndex(hosts []string, entries []IndexEntry) *HostIndex {
	x := &HostIndex{
		byPath:  make(map[string]int, len(entries)),
		hosts:   slices.Clone(hosts),
		entries: make([]IndexEntry, 0, len(entries)),
	}

	for _, e := range entries {
		e.Path = NormalizePath(e.Path)
		e.Host = NormalizePath(e.Host)
		if _, dup := x.byPath[e.Path]; dup || e.Path == "" {
			continue
		}

		x.byPath[e.Path] = len(x.entries)
		x.entries = append(x.entries, e)
	}

	return x
}

// BuildHostIndex scans the host archives under originalsDir. Entries pass
// through rules; no rules indexes every payload entry.
func BuildHostIndex(
	ctx context.Context,
	originalsDir string,
	hosts []string,
	rules []pathrules.Rule,
	opts pathrules.MatcherOptions,
) (*HostIndex, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	matcher, err := newRuleMatcher(rules, opts)
	if err != nil {
		return nil, err
	}

	normalizedHosts := make([]string, 0, len(hosts))
	stamps := make([]HostStamp, 0, len(hosts))
	var entries []IndexEntry
	for _, host := range hosts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hostPath, clean, err := resolvePath(originalsDir, host)
		if err != nil {
			return nil, err
		}

		stamp, err := stampHost(hostPath, clean)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", clean, err)
		}

		listed, err := sarc.ListEntries(hostPath)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", clean, err)
		}

		listed = filterEntriesByRules(filterPayloadEntries(listed), matcher)
		for _, e := range listed {
			entries = append(entries, IndexEntry{
				Path:   NormalizePath(e.Path),
				Host:   clean,
				Offset: e.Offset,
				Length: e.Length,
			})
		}
		normalizedHosts = append(normalizedHosts, clean)
		stamps = append(stamps, stamp)
	}

	x := NewHostIndex(normalizedHosts, entries)
	x.stamps = stamps
	return x, nil
}

// stampHost reads the size and modification time of a host archive.
func stampHost(hostPath string, clean string) (HostStamp, error) {
	info, err := os.Stat(hostPath)
	if err != nil {
		return HostStamp{}, err
	}

	return HostStamp{Host: clean, Size: info.Size(), ModTime: info.ModTime().UnixNano()}, nil
}

// Lookup returns the index entry of a logical path.
func (x *HostIndex) Lookup(logical string) (IndexEntry, bool) {
	if x == nil {
		return IndexEntry{}, false
	}

	i, ok := x.byPath[NormalizePath(logical)]
	if !ok {
		return IndexEntry{}, false
	}

	return x.entries[i], true
}

// Entries returns a copy of all entries in index order.
func (x *HostIndex) Entries() []IndexEntry {
	if x == nil {
		return nil
	}

	return slices.Clone(x.entries)
}

// Under returns the entries below a logical directory.
func (x *HostIndex) Under(prefix string) []IndexEntry {
	return filterIndexByPrefix(x.Entries(), prefix)
}

// Hosts returns the scanned host archives in scan order.
func (x *HostIndex) Hosts() []string {
	if x == nil {
		return nil
	}

	return slices.Clone(x.hosts)
}

// Stamps returns the host archive stamps taken when the index was built.
// An index assembled with NewHostIndex has none.
func (x *HostIndex) Stamps() []HostStamp {
	if x == nil {
		return nil
	}

	return slices.Clone(x.stamps)
}

// Len returns the number of indexed files.
func (x *HostIndex) Len() int {
	if x == nil {
		return 0
	}

	return len(x.entries)
}

// Extract reads the payload of a logical file from its host archive.
func (x *HostIndex) Extract(originalsDir string, logical string) ([]byte, error) {
	e, ok := x.Lookup(logical)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not indexed", ErrMissingFile, logical)
	}

	hostPath, _, err := resolvePath(originalsDir, e.Host)
	if err != nil {
		return nil, err
	}

	data, err := sarc.ReadEntryFile(hostPath, e.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: host %s of %s: %w", ErrMissingFile, e.Host, e.Path, err)
		}
		return nil, fmt.Errorf("extract %s from %s: %w", e.Path, e.Host, err)
	}

	return data, nil
}

// Encode serializes the index into a cache container.
func (x *HostIndex) Encode(codec Codec) ([]byte, error) {
	raw, err := json.Marshal(indexFile{Hosts: x.Hosts(), Stamps: x.Stamps(), Entries: x.Entries()})
	if err != nil {
		return nil, fmt.Errorf("marshal host index: %w", err)
	}

	return EncodeContainer(codec, raw)
}

// DecodeHostIndex parses a cache container written by Encode.
func DecodeHostIndex(data []byte) (*HostIndex, error) {
	raw, _, err := DecodeContainer(data)
	if err != nil {
		return nil, err
	}

	var f indexFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("unmarshal host index: %w", err)
	}

	x := NewHostIndex(f.Hosts, f.Entries)
	x.stamps = f.Stamps
	return x, nil
}

// Save writes the index cache to path through a temporary file.
func (x *HostIndex) Save(path string, codec Codec) error {
	data, err := x.Encode(codec)
	if err != nil {
		return err
	}

	return fsutil.WriteFileAtomic(path, data, 0o644)
}

// LoadHostIndex reads an index cache file.
func LoadHostIndex(path string) (*HostIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read host index %s: %w", path, err)
	}

	x, err := DecodeHostIndex(data)
	if err != nil {
		return nil, fmt.Errorf("host index %s: %w", path, err)
	}

	return x, nil
}

// coversHosts reports whether the index was built from exactly hosts.
func (x *HostIndex) coversHosts(hosts []string) bool {
	if x == nil || len(x.hosts) != len(hosts) {
		return false
	}

	for i, h := range hosts {
		if NormalizePath(h) != x.hosts[i] {
			return false
		}
	}

	return true
}

// current reports whether the index covers hosts and every host archive
// under originalsDir still has the size and modification time it was
// scanned with.
func (x *HostIndex) current(originalsDir string, hosts []string) bool {
	if !x.coversHosts(hosts) || len(x.stamps) != len(x.hosts) {
		return false
	}

	for i, want := range x.stamps {
		if want.Host != x.hosts[i] {
			return false
		}

		hostPath, clean, err := resolvePath(originalsDir, want.Host)
		if err != nil {
			return false
		}
		got, err := stampHost(hostPath, clean)
		if err != nil || got != want {
			return false
		}
	}

	return true
}
