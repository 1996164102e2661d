// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package sarc

// Binary layout of SARC v2.
const (
	Magic         = "SARC"
	Version       = 2
	HeaderSize    = 16
	magicLenValue = 4
	maxArchive    = 1<<32 - 1
)

// Default layout values used by Pack and Rebuild.
const (
	DefaultAlignment          = 4
	DefaultDataStartAlignment = 16
)

// Entry describes one file listed in the archive header.
type Entry struct {
	// Path is the virtual path as stored, without name padding.
	Path string `json:"path" yaml:"path"`
	// Offset is the absolute payload offset; zero for symlinks.
	Offset uint32 `json:"offset" yaml:"offset"`
	// Length is the payload size in bytes.
	Length uint32 `json:"length" yaml:"length"`
	// NameLen is the padded on-disk length of the path field.
	NameLen uint32 `json:"name_len" yaml:"name_len"`
	// OffsetMetaOffset is where Offset is stored in the header.
	OffsetMetaOffset int64 `json:"offset_meta_offset" yaml:"offset_meta_offset"`
	// SizeMetaOffset is where Length is stored in the header.
	SizeMetaOffset int64 `json:"size_meta_offset" yaml:"size_meta_offset"`
	// IsSymlink reports an entry whose payload lives in another archive.
	IsSymlink bool `json:"is_symlink,omitempty" yaml:"is_symlink,omitempty"`
}

// Header is the parsed directory of an archive in stored order.
type Header struct {
	Entries     []Entry `json:"entries" yaml:"entries"`
	Version     uint32  `json:"version" yaml:"version"`
	DirBlockLen uint32  `json:"dir_block_len" yaml:"dir_block_len"`
}

// DataStart returns the first byte after the directory block.
func (h *Header) DataStart() int64 {
	return HeaderSize + int64(h.DirBlockLen)
}

// Find returns the entry with the given path.
func (h *Header) Find(name string) (*Entry, bool) {
	key := NormalizePath(name)
	for i := range h.Entries {
		if NormalizePath(h.Entries[i].Path) == key {
			return &h.Entries[i], true
		}
	}

	return nil, false
}

// File is one input to Pack.
type File struct {
	// Path is the virtual path inside the archive.
	Path string `json:"path" yaml:"path"`
	// Data is the payload. Ignored for symlinks.
	Data []byte `json:"-" yaml:"-"`
	// Size is the recorded length of a symlink entry.
	Size uint32 `json:"size,omitempty" yaml:"size,omitempty"`
	// Symlink stores the entry with offset zero and no payload.
	Symlink bool `json:"symlink,omitempty" yaml:"symlink,omitempty"`
}

// Options configures archive layout for Pack and Rebuild.
type Options struct {
	// Alignment is the payload offset alignment.
	Alignment uint32 `json:"alignment,omitempty" yaml:"alignment,omitempty"`
	// DataStartAlignment is the alignment of the first byte after the directory.
	DataStartAlignment uint32 `json:"data_start_alignment,omitempty" yaml:"data_start_alignment,omitempty"`
}

// applyDefaults fills zero-valued layout fields.
func (o *Options) applyDefaults() {
	if o.Alignment == 0 {
		o.Alignment = DefaultAlignment
	}

	if o.DataStartAlignment == 0 {
		o.DataStartAlignment = DefaultDataStartAlignment
	}
}

// HeaderPatch is one u32 rewrite inside the archive header.
type HeaderPatch struct {
	Offset int64  `json:"offset" yaml:"offset"`
	Value  uint32 `json:"value" yaml:"value"`
}

// ExpandPlan lists the edits that replace one entry with a payload of a
// different length.
type ExpandPlan struct {
	Entry Entry `json:"entry" yaml:"entry"`
	// Patches are applied to the header before the body splice.
	Patches []HeaderPatch `json:"patches" yaml:"patches"`
	// SpliceOffset and SpliceRemove select the body range that is replaced.
	SpliceOffset int64 `json:"splice_offset" yaml:"splice_offset"`
	SpliceRemove int64 `json:"splice_remove" yaml:"splice_remove"`
	// OldSize is the slot size up to the next payload, NewSize the payload length.
	OldSize int64 `json:"old_size" yaml:"old_size"`
	NewSize int64 `json:"new_size" yaml:"new_size"`
	Delta   int64 `json:"delta" yaml:"delta"`
}

// ExtractOptions configures Reader.Extract.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is written.
	OnEntryDone func(entry Entry, outputPath string) `json:"-" yaml:"-"`
	// Entries limits extraction to these paths. Nil extracts every non-symlink entry.
	Entries []string `json:"entries,omitempty" yaml:"entries,omitempty"`
	// MaxWorkers bounds parallel writes. Zero uses GOMAXPROCS.
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
}

func alignUp(v int64, a int64) int64 {
	if a <= 1 {
		return v
	}

	return (v + a - 1) / a * a
}
