// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-ingest/pkg/types"
)

const lessWrongSampleResponse = `{
  "data": {
    "posts": {
      "results": [
        {
          "_id": "abc123",
          "title": "Deceptive Alignment in Practice",
          "pageUrl": "/posts/abc123/deceptive-alignment",
          "postedAt": "2026-02-01T12:30:00.000Z",
          "htmlBody": "<p>We examine concrete cases of deceptive alignment.</p>",
          "user": {"displayName": "researcher42"}
        },
        {
          "_id": "nobody",
          "title": "Empty Post",
          "pageUrl": "https://www.lesswrong.com/posts/nobody",
          "postedAt": "2026-02-02T00:00:00.000Z",
          "htmlBody": "",
          "user": null
        }
      ]
    }
  }
}`

func TestLessWrongSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body["query"], "posts(input:")
		w.Write([]byte(lessWrongSampleResponse))
	}))
	defer ts.Close()

	orig := lessWrongAPIBase
	lessWrongAPIBase = ts.URL
	defer func() { lessWrongAPIBase = orig }()

	l := NewLessWrong(testOptions(t), stubRenderer{})
	results, err := l.Search(context.Background(), `("alignment")`, time.Time{}, 10)
	require.NoError(t, err)

	// The post without a body is dropped.
	require.Len(t, results, 1)
	c := results[0]
	assert.Equal(t, "abc123", c.SourceID)
	assert.Equal(t, "Deceptive Alignment in Practice", c.Title)
	assert.Equal(t, "researcher42", c.Authors)
	assert.Equal(t, "2026-02-01", c.PublishedDate)
	assert.Equal(t, "https://www.lesswrong.com/posts/abc123/deceptive-alignment", c.SourceURL)
	assert.Equal(t, "lesswrong", c.Source)
	assert.NotEmpty(t, c.RawHTML)
	assert.Contains(t, c.Abstract, "deceptive alignment")
}

func TestLessWrongSearchDateFilter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(lessWrongSampleResponse))
	}))
	defer ts.Close()

	orig := lessWrongAPIBase
	lessWrongAPIBase = ts.URL
	defer func() { lessWrongAPIBase = orig }()

	l := NewLessWrong(testOptions(t), stubRenderer{})
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	results, err := l.Search(context.Background(), "", start, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLessWrongSearchGraphQLError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"rate limited"}]}`))
	}))
	defer ts.Close()

	orig := lessWrongAPIBase
	lessWrongAPIBase = ts.URL
	defer func() { lessWrongAPIBase = orig }()

	l := NewLessWrong(testOptions(t), stubRenderer{})
	_, err := l.Search(context.Background(), "", time.Time{}, 10)
	assert.ErrorIs(t, err, ErrAdapter)
}

func TestLessWrongDownloadSynthesizesPDF(t *testing.T) {
	l := NewLessWrong(testOptions(t), stubRenderer{})
	c := &types.Candidate{
		SourceID:      "abc123",
		Title:         "Deceptive Alignment in Practice",
		Authors:       "researcher42",
		PublishedDate: "2026-02-01",
		Abstract:      "inner alignment and mesa-optimization",
		SourceURL:     "https://www.lesswrong.com/posts/abc123",
		Source:        "lesswrong",
		RawHTML:       "<p>Body text here.</p>",
	}

	path, err := l.Download(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".pdf"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "Body text here.")
	assert.Contains(t, out, "Retrieved from lesswrong")
	assert.Contains(t, out, c.SourceURL)
}

func TestLessWrongDownloadWithoutBody(t *testing.T) {
	l := NewLessWrong(testOptions(t), stubRenderer{})
	_, err := l.Download(context.Background(), &types.Candidate{SourceID: "x", Title: "T"})
	assert.ErrorIs(t, err, ErrAdapter)
}
