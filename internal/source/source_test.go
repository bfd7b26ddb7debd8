// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-ingest/internal/classify"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		StagingRoot: t.TempDir(),
		Client:      &http.Client{Timeout: 5 * time.Second},
		Retry:       types.RetryConfig{APIMaxRetries: 1, APIBaseDelay: time.Millisecond},
		Classifier:  classify.New(nil),
	}
}

func TestSimpleKeywords(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "operators and quotes stripped",
			query: `("AI safety" OR "alignment") AND ("risk")`,
			want:  []string{"ai", "safety", "alignment", "risk"},
		},
		{
			name:  "stop words and short tokens dropped",
			query: `"the state of things" ANDNOT "a jobs post"`,
			want:  []string{"state", "things", "jobs", "post"},
		},
		{
			name:  "empty query",
			query: "",
			want:  nil,
		},
		{
			name:  "duplicates collapse",
			query: `"safety" AND "safety"`,
			want:  []string{"safety"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, simpleKeywords(tt.query))
		})
	}
}

func TestMatchesAny(t *testing.T) {
	kw := []string{"safety", "alignment"}
	assert.True(t, matchesAny(kw, "AI Safety Methods", ""))
	assert.True(t, matchesAny(kw, "Unrelated", "a study of ALIGNMENT failures"))
	assert.False(t, matchesAny(kw, "Cooking Recipes", "flour and water"))
	assert.True(t, matchesAny(nil, "anything", "at all"))
}

func TestStripTags(t *testing.T) {
	got := stripTags("<p>Hello <b>world</b></p>\n<div>again</div>")
	assert.Equal(t, "Hello world again", got)
}

func TestAbstractFromHTML(t *testing.T) {
	assert.Equal(t, "Content unavailable", abstractFromHTML("<p></p>"))

	long := "<p>" + strings.Repeat("word ", 300) + "</p>"
	got := abstractFromHTML(long)
	assert.LessOrEqual(t, len(got), 1003)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestIdentifySetsCredentialHeaders(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://example.org", nil)
	require.NoError(t, err)

	Options{}.identify(req)
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Empty(t, req.Header.Get("From"))

	Options{AuthToken: "or_abc", ContactEmail: "ops@example.com"}.identify(req)
	assert.Equal(t, "Bearer or_abc", req.Header.Get("Authorization"))
	assert.Equal(t, "ops@example.com", req.Header.Get("From"))
}

func TestStagePathCreatesCategoryDir(t *testing.T) {
	opts := testOptions(t)
	c := &types.Candidate{
		Title:    "Red Teaming Language Models",
		Abstract: "We study adversarial attacks and jailbreak methods.",
	}

	path, err := opts.stagePath(c)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "Red Teaming Language Models.pdf", filepath.Base(path))
}

func TestCleanLabTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Jan 9, 2026Constitutional Classifiers", "Constitutional Classifiers"},
		{"AlignmentAlignment Faking in LLMs", "Faking in LLMs"},
		{"ResearchScaling Monosemanticity", "Scaling Monosemanticity"},
		{"Plain Title", "Plain Title"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanLabTitle(tt.in), "input %q", tt.in)
	}
}

// stubRenderer writes the HTML bytes to dest so tests can assert on
// synthesized output without a real PDF engine.
type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, html string, dest string) error {
	return os.WriteFile(dest, []byte(html), 0o644)
}

type stubFetcher struct {
	pages map[string]string
}

func (f stubFetcher) Fetch(_ context.Context, url string) (string, error) {
	return f.pages[url], nil
}
