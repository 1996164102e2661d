// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package modbuilder

import (
	"log/slog"
	"time"

	"github.com/woozymasta/pathrules"
	"github.com/xuexu/cotw-mod-builder-sub000/patch"
	"github.com/xuexu/cotw-mod-builder-sub000/sarc"
	"github.com/xuexu/cotw-mod-builder-sub000/sheet"
)

// Default pipeline tuning values.
const (
	DefaultIORetries      = 2
	DefaultRetryDelay     = 50 * time.Millisecond
	DefaultStringEncoding = "utf-8"
	DefaultIndexCodec     = CodecZstd
)

// RequestKind selects the handler of an EditRequest.
type RequestKind string

// Request kinds.
const (
	// KindOffsetWrite writes one value at an absolute offset or at the
	// offset of an ADF value path or RTPC property.
	KindOffsetWrite RequestKind = "offset_write"
	// KindCoordinateWrite sets one spreadsheet cell through the planner.
	KindCoordinateWrite RequestKind = "coordinate_write"
	// KindArrayInsert replaces bytes inside an ADF array and fixes pointers.
	KindArrayInsert RequestKind = "array_insert"
	// KindArchiveMerge overwrites an equal-size entry of a host archive.
	KindArchiveMerge RequestKind = "archive_merge"
	// KindArchiveExpand replaces an entry of any size and shifts later payloads.
	KindArchiveExpand RequestKind = "archive_expand"
	// KindArchiveRebuild rewrites a host archive with several changed entries.
	KindArchiveRebuild RequestKind = "archive_rebuild"
)

// patches reports a request handled in the Patching phase.
func (k RequestKind) patches() bool {
	switch k {
	case KindOffsetWrite, KindCoordinateWrite, KindArrayInsert:
		return true
	default:
		return false
	}
}

// EditRequest is one logical edit. File and Archive are logical paths
// relative to the originals root, with forward slashes.
type EditRequest struct {
	// Flags tune the cell planner for CoordinateWrite.
	Flags *sheet.Flags `json:"flags,omitempty" yaml:"flags,omitempty"`
	// Offset is the absolute offset of an OffsetWrite.
	Offset *int64 `json:"offset,omitempty" yaml:"offset,omitempty"`
	// SheetIndex selects the sheet by position when Sheet is empty.
	SheetIndex *int `json:"sheet_index,omitempty" yaml:"sheet_index,omitempty"`

	Kind RequestKind `json:"kind" yaml:"kind"`
	File string      `json:"file,omitempty" yaml:"file,omitempty"`
	// Archive is the host archive of archive requests.
	Archive string `json:"archive,omitempty" yaml:"archive,omitempty"`
	// Entry is the path inside Archive. Empty uses File.
	Entry string `json:"entry,omitempty" yaml:"entry,omitempty"`

	// ADFPath addresses an OffsetWrite by ADF value path, such as
	// "Cell[7].DataIndex".
	ADFPath string `json:"adf_path,omitempty" yaml:"adf_path,omitempty"`
	// RTPCPath addresses an OffsetWrite by child node names followed by
	// the property name. A single name is a property of the root node.
	RTPCPath []string `json:"rtpc_path,omitempty" yaml:"rtpc_path,omitempty"`

	// Type is the value kind: u8 … f64, bytes or string for OffsetWrite;
	// bool, float or string for CoordinateWrite.
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	Transform patch.Transform `json:"transform,omitempty" yaml:"transform,omitempty"`

	Sheet string `json:"sheet,omitempty" yaml:"sheet,omitempty"`
	Coord string `json:"coord,omitempty" yaml:"coord,omitempty"`

	// NewBytes replaces OldLen bytes at DataOffset in the array whose
	// descriptor is at ArrayHeaderOffset.
	NewBytes []byte `json:"new_bytes,omitempty" yaml:"new_bytes,omitempty"`

	// ChangedFiles are the entries rewritten by ArchiveRebuild.
	ChangedFiles []string `json:"changed_files,omitempty" yaml:"changed_files,omitempty"`

	ArrayHeaderOffset int64 `json:"array_header_offset,omitempty" yaml:"array_header_offset,omitempty"`
	DataOffset        int64 `json:"data_offset,omitempty" yaml:"data_offset,omitempty"`
	OldLen            int   `json:"old_len,omitempty" yaml:"old_len,omitempty"`

	// Width overrides the encoded width of an OffsetWrite.
	Width int `json:"width,omitempty" yaml:"width,omitempty"`
}

// State is the phase of a running build.
type State uint8

// Build phases in order.
const (
	StateIdle State = iota
	StateCopying
	StatePatching
	StateMerging
	StatePruning
	StateDone
)

var stateNames = [...]string{
	StateIdle:     "idle",
	StateCopying:  "copying",
	StatePatching: "patching",
	StateMerging:  "merging",
	StatePruning:  "pruning",
	StateDone:     "done",
}

// String returns the phase name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}

	return "unknown"
}

// RequestResult is the outcome of one request.
type RequestResult struct {
	// Err is nil on success.
	Err error `json:"-" yaml:"-"`
	// Plan is the planner output of a CoordinateWrite.
	Plan *sheet.Plan `json:"plan,omitempty" yaml:"plan,omitempty"`
	// Expand is the surgery plan of an ArchiveExpand.
	Expand *sarc.ExpandPlan `json:"expand,omitempty" yaml:"expand,omitempty"`

	Kind RequestKind `json:"kind" yaml:"kind"`
	File string      `json:"file" yaml:"file"`

	Index int `json:"index" yaml:"index"`
	// Writes is the number of in-place writes applied.
	Writes int `json:"writes,omitempty" yaml:"writes,omitempty"`
	// Attempts counts tries including transient I/O retries.
	Attempts int `json:"attempts" yaml:"attempts"`
}

// BuildReport summarizes one build.
type BuildReport struct {
	Results []RequestResult `json:"results" yaml:"results"`
	// Copied lists logical paths copied into the working tree.
	Copied []string `json:"copied,omitempty" yaml:"copied,omitempty"`
	// Removed lists loose working files removed after merging.
	Removed []string `json:"removed,omitempty" yaml:"removed,omitempty"`
	// Pruned lists empty directories removed from the working tree.
	Pruned []string `json:"pruned,omitempty" yaml:"pruned,omitempty"`

	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Failed   int           `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// BuildOptions configures a Builder.
type BuildOptions struct {
	// Logger receives build progress. Nil discards.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// OnRequestDone is called after each request finishes.
	OnRequestDone func(result RequestResult) `json:"-" yaml:"-"`
	// Index maps logical paths to host archives. Nil loads or builds it
	// from IndexCache and IndexHosts.
	Index *HostIndex `json:"-" yaml:"-"`

	// OriginalsDir is the read-only tree of original assets.
	OriginalsDir string `json:"originals_dir" yaml:"originals_dir"`
	// WorkingDir is the mutable output tree owned by the build.
	WorkingDir string `json:"working_dir" yaml:"working_dir"`
	// IndexCache is the host index cache file. Empty disables caching.
	IndexCache string `json:"index_cache,omitempty" yaml:"index_cache,omitempty"`
	// StringEncoding encodes string values of requests. Names follow the
	// WHATWG encoding list.
	StringEncoding string `json:"string_encoding,omitempty" yaml:"string_encoding,omitempty"`

	// IndexHosts are logical paths of archives scanned for the host index.
	IndexHosts []string `json:"index_hosts,omitempty" yaml:"index_hosts,omitempty"`
	// IndexRules select which archive entries enter the host index.
	IndexRules []pathrules.Rule `json:"index_rules,omitempty" yaml:"index_rules,omitempty"`
	// PruneKeep lists directories that pruning never removes.
	PruneKeep []pathrules.Rule `json:"prune_keep,omitempty" yaml:"prune_keep,omitempty"`
	// MatcherOptions control IndexRules and PruneKeep matching.
	MatcherOptions pathrules.MatcherOptions `json:"matcher_options,omitzero" yaml:"matcher_options,omitzero"`

	// ArchiveOptions control ArchiveRebuild layout.
	ArchiveOptions sarc.Options `json:"archive_options,omitzero" yaml:"archive_options,omitzero"`

	// IORetries is the number of extra attempts after a transient I/O error.
	IORetries int `json:"io_retries,omitempty" yaml:"io_retries,omitempty"`
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	// BackupKeep controls how many previous working trees are kept.
	// 0 removes the old tree, N keeps `<working>.bak` and `.bak.1..N-1`.
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`

	// IndexCodec compresses the host index cache.
	IndexCodec Codec `json:"index_codec,omitempty" yaml:"index_codec,omitempty"`

	// RemoveMerged deletes a loose working file once it is merged into its
	// host archive.
	RemoveMerged bool `json:"remove_merged,omitempty" yaml:"remove_merged,omitempty"`
	// ContinueOnError runs the remaining requests after a failure.
	ContinueOnError bool `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`
}

// applyDefaults fills zero-valued build options with defaults.
func (opts *BuildOptions) applyDefaults() {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	if opts.IORetries < 0 {
		opts.IORetries = 0
	}

	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	if opts.BackupKeep < 0 {
		opts.BackupKeep = 0
	}

	if opts.IndexCodec == "" {
		opts.IndexCodec = DefaultIndexCodec
	}

	if opts.StringEncoding == "" {
		opts.StringEncoding = DefaultStringEncoding
	}

	if opts.MatcherOptions == (pathrules.MatcherOptions{}) {
		opts.MatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		}
	}

	if opts.MatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.MatcherOptions.DefaultAction = pathrules.ActionExclude
	}
}
