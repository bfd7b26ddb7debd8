// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/paper-ingest/internal/httputil"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

// lessWrongAPIBase is the LessWrong GraphQL endpoint, a var for tests.
var lessWrongAPIBase = "https://www.lesswrong.com/graphql"

// lessWrongQuery fetches the newest posts. The API offers no keyword
// search without an external index, so filtering happens client-side.
const lessWrongQuery = `query($limit: Int) {
  posts(input: { terms: { view: "new", limit: $limit } }) {
    results {
      _id
      title
      pageUrl
      postedAt
      htmlBody
      user { displayName }
    }
  }
}`

// LessWrong pulls recent community-blog posts over GraphQL and
// synthesizes PDFs from their HTML bodies.
type LessWrong struct {
	Options

	// Renderer converts post HTML to PDF.
	Renderer PDFRenderer
}

// NewLessWrong returns the LessWrong adapter.
func NewLessWrong(opts Options, renderer PDFRenderer) *LessWrong {
	return &LessWrong{Options: opts, Renderer: renderer}
}

// Name returns the adapter identifier.
func (l *LessWrong) Name() string { return "lesswrong" }

type lwResponse struct {
	Data struct {
		Posts struct {
			Results []lwPost `json:"results"`
		} `json:"posts"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type lwPost struct {
	ID       string `json:"_id"`
	Title    string `json:"title"`
	PageURL  string `json:"pageUrl"`
	PostedAt string `json:"postedAt"`
	HTMLBody string `json:"htmlBody"`
	User     *struct {
		DisplayName string `json:"displayName"`
	} `json:"user"`
}

// Search fetches the newest posts and converts them to candidates. The
// query keywords are not sent to the API; the relevance filter applies
// them downstream.
func (l *LessWrong) Search(ctx context.Context, query string, startDate time.Time, maxResults int) ([]types.Candidate, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	fetchLimit := maxResults * overfetchFactor

	payload, err := json.Marshal(map[string]any{
		"query":     lessWrongQuery,
		"variables": map[string]any{"limit": fetchLimit},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding GraphQL request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lessWrongAPIBase, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := httputil.DoWithRetry(ctx, l.client(), req, l.Retry.APIMaxRetries, l.Retry.APIBaseDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: LessWrong API request: %v", ErrAdapter, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: LessWrong API returned HTTP %d", ErrAdapter, resp.StatusCode)
	}

	var parsed lwResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: parsing LessWrong response: %v", ErrAdapter, err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("%w: LessWrong GraphQL error: %s", ErrAdapter, parsed.Errors[0].Message)
	}

	var results []types.Candidate
	for _, post := range parsed.Data.Posts.Results {
		if ctx.Err() != nil {
			break
		}
		if post.HTMLBody == "" {
			continue
		}

		pubDateStr := "Unknown"
		var pubDate time.Time
		if post.PostedAt != "" {
			datePart, _, _ := strings.Cut(post.PostedAt, "T")
			if t, parseErr := time.Parse("2006-01-02", datePart); parseErr == nil {
				pubDate = t
				pubDateStr = datePart
			}
		}
		if !startDate.IsZero() && !pubDate.IsZero() && pubDate.Before(startDate) {
			continue
		}

		author := "Unknown"
		if post.User != nil && post.User.DisplayName != "" {
			author = post.User.DisplayName
		}

		pageURL := post.PageURL
		if pageURL != "" && !strings.HasPrefix(pageURL, "http") {
			pageURL = "https://www.lesswrong.com" + pageURL
		}

		title := post.Title
		if title == "" {
			title = "Untitled"
		}

		results = append(results, types.Candidate{
			SourceID:      post.ID,
			Title:         title,
			Authors:       author,
			PublishedDate: pubDateStr,
			Abstract:      abstractFromHTML(post.HTMLBody),
			SourceURL:     pageURL,
			Source:        l.Name(),
			RawHTML:       post.HTMLBody,
		})
	}
	return results, nil
}

// Download synthesizes a PDF from the post's HTML body.
func (l *LessWrong) Download(ctx context.Context, c *types.Candidate) (string, error) {
	if c.RawHTML == "" {
		return "", fmt.Errorf("%w: post %s has no HTML body", ErrAdapter, c.SourceID)
	}
	dest, err := l.stagePath(c)
	if err != nil {
		return "", err
	}
	if fileExists(dest) {
		return dest, nil
	}
	if err := l.Renderer.Render(ctx, renderDocument(c, c.RawHTML), dest); err != nil {
		return "", fmt.Errorf("rendering PDF for %s: %w", c.SourceID, err)
	}
	return dest, nil
}
