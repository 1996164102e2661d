// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

/*
Package adf parses ADF v4 files into trees of typed values whose every node
carries its absolute file offset.

Parse reads the header, name table, type table, string hash table and
instance table, then decodes each instance following the type table:

	f, err := adf.Parse(data)
	root, _ := f.Root()
	v, err := root.Lookup("Sheet[0].CellIndex[3]")
	// rewrite v.Width bytes at v.DataOffset to change the cell slot

Arrays expose their descriptor position as InfoOffset (the element count
lives ArrayCountOffset bytes after it). Strings expose the position of their
pointer as InfoOffset and the string bytes at DataOffset.

Length-changing edits go through Splice, InsertArrayData and ReplaceString,
which rewrite pointers, instance sizes, later instance offsets, header
section offsets and the total size.
*/
package adf
