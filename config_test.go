package modbuilder

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/woozymasta/pathrules"
)

const sampleConfig = `
[paths]
originals = /game/dropzone-original
working   = /mods/build/dropzone
cache     = /mods/.cache/hosts.idx

[build]
io_retries      = 4
retry_delay     = 10ms
remove_merged   = true
backup_keep     = 2
string_encoding = windows-1252

[index]
codec   = lzss
include = settings/**, editor/entities/**
exclude = *.ddsc
hosts   = gdc/global.gdcc, gdc/other.gdcc

[prune]
keep = dropzone/
`

func TestParseConfig(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.OriginalsDir != "/game/dropzone-original" || cfg.WorkingDir != "/mods/build/dropzone" || cfg.IndexCache != "/mods/.cache/hosts.idx" {
		t.Fatalf("paths=%+v", cfg)
	}
	if cfg.IORetries != 4 || cfg.RetryDelay != 10*time.Millisecond || cfg.BackupKeep != 2 || !cfg.RemoveMerged || cfg.ContinueOnError {
		t.Fatalf("build=%+v", cfg)
	}
	if cfg.IndexCodec != CodecLZSS || cfg.StringEncoding != "windows-1252" {
		t.Fatalf("codec=%s encoding=%s", cfg.IndexCodec, cfg.StringEncoding)
	}
	if !slices.Equal(cfg.IndexHosts, []string{"gdc/global.gdcc", "gdc/other.gdcc"}) {
		t.Fatalf("hosts=%v", cfg.IndexHosts)
	}

	opts := cfg.BuildOptions()
	wantRules := []pathrules.Rule{
		{Action: pathrules.ActionInclude, Pattern: "settings/**"},
		{Action: pathrules.ActionInclude, Pattern: "editor/entities/**"},
		{Action: pathrules.ActionExclude, Pattern: "*.ddsc"},
	}
	if !slices.Equal(opts.IndexRules, wantRules) {
		t.Fatalf("rules=%+v", opts.IndexRules)
	}
	if !slices.Equal(opts.PruneKeep, []pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: "dropzone/"}}) {
		t.Fatalf("keep=%+v", opts.PruneKeep)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte("[paths]\noriginals = a\nworking = b\n\n[index]\nexclude = *.wem\n"))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.IORetries != DefaultIORetries || cfg.RetryDelay != DefaultRetryDelay || cfg.IndexCodec != DefaultIndexCodec || cfg.StringEncoding != DefaultStringEncoding {
		t.Fatalf("defaults=%+v", cfg)
	}

	rules := cfg.BuildOptions().IndexRules
	if len(rules) != 2 || rules[0].Pattern != "**" || rules[1].Action != pathrules.ActionExclude {
		t.Fatalf("exclude-only rules=%+v", rules)
	}
}

func TestParseConfigErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
	}{
		{name: "missing working", in: "[paths]\noriginals = a\n"},
		{name: "bad codec", in: "[paths]\noriginals = a\nworking = b\n[index]\ncodec = brotli\n"},
		{name: "bad encoding", in: "[paths]\noriginals = a\nworking = b\n[build]\nstring_encoding = klingon\n"},
		{name: "negative retries", in: "[paths]\noriginals = a\nworking = b\n[build]\nio_retries = -1\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := ParseConfig([]byte(tc.in)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "modbuilder.ini")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.BackupKeep != 2 {
		t.Fatalf("backup_keep=%d", cfg.BackupKeep)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.ini")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
