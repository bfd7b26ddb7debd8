// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package hashutil computes the stable 64-bit hashes and URL
// normalization the dedup index is built on. Hashes must be identical
// across processes and platforms, so everything here is defined in terms
// of bytes, not runtime hash seeds.
package hashutil

import (
	"crypto/sha256"
	"encoding/binary"
	"net/url"
	"strings"
	"unicode"
)

// trackingParams are stripped from URLs before hashing. They carry
// campaign state, not identity.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"ref":          true,
	"source":       true,
	"fbclid":       true,
	"gclid":        true,
}

// StableHash hashes s to a signed 64-bit integer: SHA-256 of the UTF-8
// bytes, first 8 bytes interpreted as a big-endian signed value.
// StableHash("") == 0.
func StableHash(s string) int64 {
	if s == "" {
		return 0
	}
	sum := sha256.Sum256([]byte(s))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// NormalizeURL canonicalizes u for comparison and hashing: scheme forced
// to https, host lower-cased, trailing slash stripped, tracking
// parameters removed, fragment dropped, and the remaining query keys
// re-encoded in sorted order. Unparseable input is returned unchanged.
func NormalizeURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if trackingParams[k] {
				q.Del(k)
			}
		}
		// url.Values.Encode sorts keys, which gives the stable order.
		u.RawQuery = q.Encode()
	}

	return u.String()
}

// NormalizeText lower-cases s and removes every non-alphanumeric rune.
// It is the title form behind TitleHash.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// URLHash is the primary dedup key: StableHash of the normalized URL.
// An empty URL hashes to 0.
func URLHash(raw string) int64 {
	if raw == "" {
		return 0
	}
	return StableHash(NormalizeURL(raw))
}

// TitleHash is the secondary dedup key: StableHash of the normalized
// title.
func TitleHash(title string) int64 {
	return StableHash(NormalizeText(title))
}
