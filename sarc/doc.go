// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

/*
Package sarc reads, writes and edits SARC v2 archives.

The header is a fixed 16-byte block followed by a directory of entries, each
holding a padded path, an absolute payload offset and a payload length.
Entries with offset zero are symlinks whose payload lives in another archive.
Every parsed entry records where its offset and length fields live so that
callers can patch them without reserializing the header.

Three edit paths are provided:

  - Merge overwrites one payload in place and requires an equal length.
  - Expand replaces one payload with any length and moves later payloads.
  - Rebuild rewrites the whole body keeping order and alignment.

Reading:

	r, err := sarc.Open("animal_senses.ee")
	if err != nil {
		return err
	}
	defer r.Close()

	data, err := r.ReadEntry("settings/hp_settings/animal_senses.bin")

Editing a file on disk:

	plan, err := sarc.ExpandFile(ctx, "animal_senses.ee", "settings/hp_settings/animal_senses.bin", payload)
*/
package sarc
