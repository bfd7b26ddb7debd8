// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package hashutil

import "testing"

func TestStableHashEmpty(t *testing.T) {
	if got := StableHash(""); got != 0 {
		t.Errorf("StableHash(\"\") = %d, want 0", got)
	}
}

func TestStableHashDeterministic(t *testing.T) {
	a := StableHash("https://example.com/x")
	b := StableHash("https://example.com/x")
	if a != b {
		t.Errorf("hash not deterministic: %d != %d", a, b)
	}
	if a == 0 {
		t.Error("non-empty input hashed to 0")
	}
	if a == StableHash("https://example.com/y") {
		t.Error("distinct inputs collided")
	}
}

// The fixed value pins the cross-platform contract: SHA-256, first 8
// bytes, big-endian signed. sha256("abc") begins ba7816bf8f01cfea.
func TestStableHashKnownValue(t *testing.T) {
	const want = int64(-0x4587e94070fe3016) // 0xba7816bf8f01cfea as signed
	if got := StableHash("abc"); got != want {
		t.Errorf("StableHash(\"abc\") = %#x, want %#x", got, want)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"forces https", "http://example.com/x", "https://example.com/x"},
		{"lowercases host", "https://Example.COM/Path", "https://example.com/Path"},
		{"strips trailing slash", "https://example.com/x/", "https://example.com/x"},
		{"drops fragment", "https://example.com/x#sec-2", "https://example.com/x"},
		{"strips utm", "https://example.com/x?utm_source=foo&utm_medium=bar", "https://example.com/x"},
		{"strips ref and source", "https://example.com/x?ref=hn&source=tw&id=3", "https://example.com/x?id=3"},
		{"sorts query keys", "https://example.com/x?b=2&a=1", "https://example.com/x?a=1&b=2"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeURL(tt.in); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeURLIdempotent(t *testing.T) {
	urls := []string{
		"http://Example.com/a/b/?utm_source=x&q=1#frag",
		"https://arxiv.org/abs/2301.07041",
		"https://example.com/x?b=2&a=1&ref=rss",
	}
	for _, u := range urls {
		once := NormalizeURL(u)
		twice := NormalizeURL(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q != %q", u, once, twice)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Machine Learning: Safety!", "machinelearningsafety"},
		{"  AI 2027  ", "ai2027"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestURLHashEquivalentForms(t *testing.T) {
	a := URLHash("http://example.com/x?utm_source=foo")
	b := URLHash("https://example.com/x")
	if a != b {
		t.Errorf("equivalent URLs hashed differently: %d vs %d", a, b)
	}
	if URLHash("") != 0 {
		t.Error("empty URL must hash to 0")
	}
}
