// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

/*
Package modbuilder builds game asset mods from a read-only tree of original
files. Edits are queued as requests and applied to a working tree that the
builder owns: every touched original is copied first, patch requests rewrite
the copies, archive requests fold them back into their host SARC archives,
and empty directories are pruned.

Build phases (summary):
  - copying: the working tree is cleared, then every logical file a request
    touches is copied once, from the originals tree or from its host archive;
  - patching: offset writes, spreadsheet cell writes and ADF array inserts,
    in queue order;
  - merging: archive merge, expand and rebuild, in queue order;
  - pruning: merged loose files (optional) and empty directories go away.

Every request commits through a temporary file and a rename, so a failing
request never leaves a half-written file. A file that fails to parse is
poisoned and later requests on it fail fast with ErrPoisoned.

# Building

	b, err := modbuilder.NewBuilder(modbuilder.BuildOptions{
	    OriginalsDir: "/game/dropzone-original",
	    WorkingDir:   "/mods/build/dropzone",
	    Logger:       slog.Default(),
	})
	if err != nil {
	    return err
	}
	defer b.Close()

	offset := int64(0x1C8)
	if err := b.Enqueue(
	    modbuilder.EditRequest{
	        Kind:   modbuilder.KindOffsetWrite,
	        File:   "settings/hp_settings/animal_senses.bin",
	        Offset: &offset,
	        Type:   "f32",
	        Value:  "0.5",
	    },
	    modbuilder.EditRequest{
	        Kind:  modbuilder.KindCoordinateWrite,
	        File:  "settings/hp_settings/reserve_1.bin",
	        Sheet: "animal_population",
	        Coord: "C4",
	        Value: "270",
	    },
	); err != nil {
	    return err
	}

	report, err := b.Build(ctx)
	if err != nil {
	    return err
	}
	_ = report.Copied

# Configuration

Options can come from an INI file:

	cfg, err := modbuilder.LoadConfig("modbuilder.ini")
	if err != nil {
	    return err
	}
	b, err := modbuilder.NewBuilder(cfg.BuildOptions())

Requests can come from a JSON array:

	reqs, err := modbuilder.LoadRequestsFile("requests.json")

# Host index

Files that exist only inside host archives are found through a HostIndex.
It is scanned from IndexHosts, filtered by IndexRules
(github.com/woozymasta/pathrules), and cached in IndexCache as a small
container compressed with zstd or LZSS. The cache stores each host's size
and modification time and is rescanned when one changes:

	idx, err := modbuilder.BuildHostIndex(ctx, originals, []string{"gdc/global.gdcc"}, nil, pathrules.MatcherOptions{})
	if err != nil {
	    return err
	}
	err = idx.Save("hosts.idx", modbuilder.CodecZstd)
*/
package modbuilder
