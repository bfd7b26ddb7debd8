// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pdiddy/paper-ingest/internal/httputil"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

// openReviewAPIBase is the OpenReview v2 API root, a var for tests.
var openReviewAPIBase = "https://api2.openreview.net"

// OpenReview searches the reviewing platform's v2 keyword index.
type OpenReview struct {
	Options
}

// NewOpenReview returns the OpenReview adapter.
func NewOpenReview(opts Options) *OpenReview { return &OpenReview{Options: opts} }

// Name returns the adapter identifier.
func (o *OpenReview) Name() string { return "openreview" }

type orSearchResponse struct {
	Notes []orNote `json:"notes"`
}

type orNote struct {
	ID      string `json:"id"`
	CDate   int64  `json:"cdate"`
	Content map[string]struct {
		Value json.RawMessage `json:"value"`
	} `json:"content"`
}

func (n orNote) stringField(key string) string {
	f, ok := n.Content[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.Value, &s); err != nil {
		return ""
	}
	return s
}

func (n orNote) listField(key string) []string {
	f, ok := n.Content[key]
	if !ok {
		return nil
	}
	var list []string
	if err := json.Unmarshal(f.Value, &list); err != nil {
		return nil
	}
	return list
}

// Search queries the notes search endpoint, restricted to notes that
// carry a title so reviews and comments are excluded.
func (o *OpenReview) Search(ctx context.Context, query string, startDate time.Time, maxResults int) ([]types.Candidate, error) {
	if maxResults <= 0 {
		maxResults = 100
	}

	apiURL := fmt.Sprintf("%s/notes/search?term=%s&content=title&limit=%d",
		openReviewAPIBase, url.QueryEscape(query), maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	o.identify(req)

	resp, err := httputil.DoWithRetry(ctx, o.client(), req, o.Retry.APIMaxRetries, o.Retry.APIBaseDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: OpenReview API request: %v", ErrAdapter, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: OpenReview API returned HTTP %d", ErrAdapter, resp.StatusCode)
	}

	var parsed orSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: parsing OpenReview response: %v", ErrAdapter, err)
	}

	var results []types.Candidate
	for _, note := range parsed.Notes {
		if ctx.Err() != nil {
			break
		}
		if len(results) >= maxResults {
			break
		}

		title := note.stringField("title")
		if title == "" {
			continue
		}

		pubDate := time.UnixMilli(note.CDate).UTC()
		if !startDate.IsZero() && pubDate.Before(startDate) {
			continue
		}

		authors := strings.Join(note.listField("authors"), ", ")

		pdfURL := fmt.Sprintf("%s/pdf?id=%s", openReviewAPIBase, note.ID)
		if pdf := note.stringField("pdf"); pdf != "" {
			if pdf[0] == '/' {
				pdfURL = openReviewAPIBase + pdf
			} else {
				pdfURL = pdf
			}
		}

		results = append(results, types.Candidate{
			SourceID:      note.ID,
			Title:         title,
			Authors:       authors,
			PublishedDate: pubDate.Format("2006-01-02"),
			Abstract:      note.stringField("abstract"),
			SourceURL:     "https://openreview.net/forum?id=" + note.ID,
			PDFURL:        pdfURL,
			Language:      "en",
			Source:        o.Name(),
		})
	}
	return results, nil
}

// Download fetches the note's PDF into staging.
func (o *OpenReview) Download(ctx context.Context, c *types.Candidate) (string, error) {
	if c.PDFURL == "" {
		return "", fmt.Errorf("%w: note %s has no PDF URL", ErrAdapter, c.SourceID)
	}
	dest, err := o.stagePath(c)
	if err != nil {
		return "", err
	}
	if err := o.fetchPDF(ctx, c.PDFURL, dest); err != nil {
		return "", fmt.Errorf("downloading %s: %w", c.SourceID, err)
	}
	return dest, nil
}
