// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package modbuilder

import (
	"fmt"
	"strings"
	"time"

	"github.com/woozymasta/pathrules"
	"gopkg.in/ini.v1"
)

// Config is the on-disk build configuration.
//
//	[paths]
//	originals = /game/dropzone-original
//	working   = /mods/build
//	cache     = /mods/.cache/hosts.idx
//
//	[build]
//	io_retries        = 2
//	retry_delay       = 50ms
//	remove_merged     = true
//	backup_keep       = 1
//	string_encoding   = utf-8
//	continue_on_error = false
//
//	[index]
//	codec   = zstd
//	include = settings/**, editor/entities/**
//	exclude = *.ddsc
//	hosts   = gdc/global.gdcc
//
//	[prune]
//	keep = dropzone/
type Config struct {
	OriginalsDir   string
	WorkingDir     string
	IndexCache     string
	StringEncoding string
	IndexCodec     Codec

	IndexHosts   []string
	IndexInclude []string
	IndexExclude []string
	PruneKeep    []string

	RetryDelay time.Duration
	IORetries  int
	BackupKeep int

	RemoveMerged    bool
	ContinueOnError bool
}

// LoadConfig reads an INI configuration file. Missing keys keep their
// defaults.
func LoadConfig(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	return parseConfig(f)
}

// ParseConfig reads an INI configuration from memory.
func ParseConfig(data []byte) (*Config, error) {
	f, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return parseConfig(f)
}

func parseConfig(f *ini.File) (*Config, error) {
	paths := f.Section("paths")
	build := f.Section("build")
	index := f.Section("index")

	cfg := &Config{
		OriginalsDir:    paths.Key("originals").String(),
		WorkingDir:      paths.Key("working").String(),
		IndexCache:      paths.Key("cache").String(),
		StringEncoding:  build.Key("string_encoding").MustString(DefaultStringEncoding),
		IORetries:       build.Key("io_retries").MustInt(DefaultIORetries),
		RetryDelay:      build.Key("retry_delay").MustDuration(DefaultRetryDelay),
		BackupKeep:      build.Key("backup_keep").MustInt(0),
		RemoveMerged:    build.Key("remove_merged").MustBool(false),
		ContinueOnError: build.Key("continue_on_error").MustBool(false),
		IndexHosts:      listKey(index, "hosts"),
		IndexInclude:    listKey(index, "include"),
		IndexExclude:    listKey(index, "exclude"),
		PruneKeep:       listKey(f.Section("prune"), "keep"),
	}

	codec, err := ParseCodec(index.Key("codec").String())
	if err != nil {
		return nil, fmt.Errorf("config [index] codec: %w", err)
	}
	cfg.IndexCodec = codec

	if cfg.OriginalsDir == "" || cfg.WorkingDir == "" {
		return nil, fmt.Errorf("config [paths]: originals and working are required")
	}

	if cfg.IORetries < 0 || cfg.BackupKeep < 0 {
		return nil, fmt.Errorf("config [build]: io_retries and backup_keep must not be negative")
	}

	if _, err := lookupEncoding(cfg.StringEncoding); err != nil {
		return nil, fmt.Errorf("config [build] string_encoding: %w", err)
	}

	return cfg, nil
}

// listKey splits a comma-separated key and drops empty items.
func listKey(s *ini.Section, name string) []string {
	var out []string
	for _, v := range s.Key(name).Strings(",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}

	return out
}

// BuildOptions converts the configuration to builder options. Index
// includes are evaluated before excludes.
func (c *Config) BuildOptions() BuildOptions {
	rules := make([]pathrules.Rule, 0, len(c.IndexInclude)+len(c.IndexExclude))
	for _, p := range c.IndexInclude {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: p})
	}
	if len(c.IndexInclude) == 0 && len(c.IndexExclude) > 0 {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: "**"})
	}
	for _, p := range c.IndexExclude {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: p})
	}

	keep := make([]pathrules.Rule, 0, len(c.PruneKeep))
	for _, p := range c.PruneKeep {
		keep = append(keep, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: p})
	}

	return BuildOptions{
		OriginalsDir:    c.OriginalsDir,
		WorkingDir:      c.WorkingDir,
		IndexCache:      c.IndexCache,
		StringEncoding:  c.StringEncoding,
		IndexCodec:      c.IndexCodec,
		IndexHosts:      c.IndexHosts,
		IndexRules:      rules,
		PruneKeep:       keep,
		IORetries:       c.IORetries,
		RetryDelay:      c.RetryDelay,
		BackupKeep:      c.BackupKeep,
		RemoveMerged:    c.RemoveMerged,
		ContinueOnError: c.ContinueOnError,
	}
}
