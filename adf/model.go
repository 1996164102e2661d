// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package adf

// Binary layout of the ADF v4 header.
const (
	Magic   uint32 = 0x41444620 // " FDA" on disk
	Version uint32 = 4

	HeaderInstanceCountOffset   int64 = 0x08
	HeaderInstanceOffset        int64 = 0x0c
	HeaderTypedefCountOffset    int64 = 0x10
	HeaderTypedefOffset         int64 = 0x14
	HeaderStringHashCountOffset int64 = 0x18
	HeaderStringHashOffset      int64 = 0x1c
	HeaderNametableCountOffset  int64 = 0x20
	HeaderNametableOffset       int64 = 0x24
	HeaderTotalSizeOffset       int64 = 0x28
	HeaderCommentOffset         int64 = 0x40

	InstanceEntrySize = 24
	MemberDefSize     = 32
	EnumMemberSize    = 12
	typedefFixedSize  = 36

	// ArrayDescriptorSize is the size of {pointer, flags, count, pad}.
	ArrayDescriptorSize = 16
	// ArrayCountOffset is where the element count lives inside a descriptor.
	ArrayCountOffset = 8

	maxDepth = 64
)

// MetaType classifies a type definition.
type MetaType uint32

// Type definition meta types.
const (
	MetaPrimitive MetaType = iota
	MetaStructure
	MetaPointer
	MetaArray
	MetaInlineArray
	MetaString
	MetaType6
	MetaBitField
	MetaEnumeration
	MetaStringHash
	MetaDeferred
)

// Built-in type hashes that never appear in a file's type table.
const (
	TypeU8       uint32 = 0x0ca2821d
	TypeI8       uint32 = 0x580d0a62
	TypeU16      uint32 = 0x86d152bd
	TypeI16      uint32 = 0xd13fcf93
	TypeU32      uint32 = 0x075e4e4f
	TypeI32      uint32 = 0x192fe633
	TypeU64      uint32 = 0xa139e01f
	TypeI64      uint32 = 0xaf41354f
	TypeF32      uint32 = 0x7515a207
	TypeF64      uint32 = 0xc609f663
	TypeString   uint32 = 0x8955583e
	TypeDeferred uint32 = 0xdefe88ed
)

// builtin describes a built-in scalar or pointer type.
type builtin struct {
	kind Kind
	size int
}

var builtins = map[uint32]builtin{
	TypeU8:       {kind: KindU8, size: 1},
	TypeI8:       {kind: KindI8, size: 1},
	TypeU16:      {kind: KindU16, size: 2},
	TypeI16:      {kind: KindI16, size: 2},
	TypeU32:      {kind: KindU32, size: 4},
	TypeI32:      {kind: KindI32, size: 4},
	TypeU64:      {kind: KindU64, size: 8},
	TypeI64:      {kind: KindI64, size: 8},
	TypeF32:      {kind: KindF32, size: 4},
	TypeF64:      {kind: KindF64, size: 8},
	TypeString:   {kind: KindString, size: 8},
	TypeDeferred: {kind: KindDeferred, size: 16},
}

// MemberDef is one field of a structure type.
type MemberDef struct {
	Name         string
	TypeHash     uint32
	Size         uint32
	Offset       uint32
	BitOffset    uint8
	DefaultType  uint32
	DefaultValue uint64
}

// EnumMember is one named constant of an enumeration type.
type EnumMember struct {
	Name  string
	Value uint32
}

// TypeDef is one entry of the file's type table.
type TypeDef struct {
	Name            string
	Members         []MemberDef
	Enum            []EnumMember
	MetaType        MetaType
	Size            uint32
	Alignment       uint32
	TypeHash        uint32
	Flags           uint32
	ElementTypeHash uint32
	ElementLength   uint32
	// Offset is the absolute position of the definition in the file.
	Offset int64
}

// Instance is one entry of the instance table with its decoded root value.
type Instance struct {
	Name     string
	Root     Value
	NameHash uint32
	TypeHash uint32
	Offset   uint32
	Size     uint32
	// EntryOffset is the absolute position of the 24-byte instance entry.
	EntryOffset int64
}

// OffsetFieldOffset returns where the instance data offset is stored.
func (i *Instance) OffsetFieldOffset() int64 {
	return i.EntryOffset + 8
}

// SizeFieldOffset returns where the instance byte size is stored.
func (i *Instance) SizeFieldOffset() int64 {
	return i.EntryOffset + 12
}
