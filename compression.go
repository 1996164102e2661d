// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

package modbuilder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/DataDog/zstd"
	"github.com/woozymasta/lzss"
	"github.com/woozymasta/pathrules"
)

// Codec names the compression of a cache container.
type Codec string

// Supported codecs. The container stores them as type ids 0, 1 and 2.
const (
	CodecNone Codec = "none"
	CodecLZSS Codec = "lzss"
	CodecZstd Codec = "zstd"
)

// containerHeaderSize is the codec byte plus the u32 raw length.
const containerHeaderSize = 5

// ParseCodec resolves a codec name.
func ParseCodec(name string) (Codec, error) {
	switch c := Codec(strings.ToLower(strings.TrimSpace(name))); c {
	case CodecNone, CodecLZSS, CodecZstd:
		return c, nil
	case "":
		return DefaultIndexCodec, nil
	default:
		return "", fmt.Errorf("%w: codec %q", ErrUnknownCompression, name)
	}
}

// typeID returns the on-disk id of c.
func (c Codec) typeID() (uint8, error) {
	switch c {
	case CodecNone:
		return 0, nil
	case CodecLZSS:
		return 1, nil
	case CodecZstd:
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: codec %q", ErrUnknownCompression, string(c))
	}
}

// codecByID maps an on-disk id back to its codec.
func codecByID(id uint8) (Codec, error) {
	switch id {
	case 0:
		return CodecNone, nil
	case 1:
		return CodecLZSS, nil
	case 2:
		return CodecZstd, nil
	default:
		return "", &UnknownCompressionError{TypeID: id}
	}
}

// EncodeContainer compresses raw with codec and prepends the container
// header: codec id byte and little-endian u32 raw length.
func EncodeContainer(codec Codec, raw []byte) ([]byte, error) {
	id, err := codec.typeID()
	if err != nil {
		return nil, err
	}

	if uint64(len(raw)) > math.MaxUint32 {
		return nil, fmt.Errorf("container payload of %d bytes exceeds uint32", len(raw))
	}

	var payload []byte
	switch codec {
	case CodecNone:
		payload = raw
	case CodecLZSS:
		payload, err = compressLZSS(raw)
	case CodecZstd:
		payload, err = zstd.Compress(nil, raw)
	}
	if err != nil {
		return nil, fmt.Errorf("compress %s: %w", codec, err)
	}

	out := make([]byte, containerHeaderSize, containerHeaderSize+len(payload))
	out[0] = id
	binary.LittleEndian.PutUint32(out[1:], uint32(len(raw)))
	return append(out, payload...), nil
}

// DecodeContainer reverses EncodeContainer. An unknown codec id returns
// an *UnknownCompressionError.
func DecodeContainer(data []byte) ([]byte, Codec, error) {
	if len(data) < containerHeaderSize {
		return nil, "", fmt.Errorf("container of %d bytes is shorter than its header", len(data))
	}

	codec, err := codecByID(data[0])
	if err != nil {
		return nil, "", err
	}

	rawLen := binary.LittleEndian.Uint32(data[1:])
	if uint64(rawLen) > uint64(math.MaxInt) {
		return nil, "", fmt.Errorf("container raw length %d overflows int", rawLen)
	}
	payload := data[containerHeaderSize:]

	var raw []byte
	switch codec {
	case CodecNone:
		raw = payload
	case CodecLZSS:
		var buf bytes.Buffer
		buf.Grow(int(rawLen))
		_, err = lzss.DecompressToWriter(&buf, bytes.NewReader(payload), int(rawLen), nil)
		raw = buf.Bytes()
	case CodecZstd:
		raw, err = zstd.Decompress(nil, payload)
	}
	if err != nil {
		return nil, "", fmt.Errorf("decompress %s: %w", codec, err)
	}

	if len(raw) != int(rawLen) {
		return nil, "", fmt.Errorf("decompress %s: got %d bytes, header says %d", codec, len(raw), rawLen)
	}

	return bytes.Clone(raw), codec, nil
}

// compressLZSS compresses the data using LZSS.
func compressLZSS(data []byte) ([]byte, error) {
	return lzss.Compress(data, lzss.DefaultCompressOptions())
}

// ruleMatcher holds compiled ordered include/exclude rules.
type ruleMatcher struct {
	matcher *pathrules.Matcher
}

// newRuleMatcher compiles path rules. No rules yields a nil matcher.
func newRuleMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*ruleMatcher, error) {
	rules = normalizeRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidRules, err)
	}

	return &ruleMatcher{matcher: matcher}, nil
}

// normalizeRules normalizes rule patterns and drops empty patterns.
func normalizeRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := normalizePathForMatching(rule.Pattern)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// Match reports whether path is included. A nil matcher reports fallback.
func (m *ruleMatcher) Match(path string, isDir bool, fallback bool) bool {
	if m == nil || m.matcher == nil {
		return fallback
	}

	candidate := NormalizePath(path)
	if candidate == "" {
		return false
	}

	return m.matcher.Included(candidate, isDir)
}
