// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/paper-ingest/internal/httputil"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// overfetchFactor widens source queries so the local relevance filter
// has enough material to choose from.
const overfetchFactor = 5

// Arxiv searches the arXiv preprint server through its Atom API.
type Arxiv struct {
	Options
}

// NewArxiv returns the arXiv adapter.
func NewArxiv(opts Options) *Arxiv { return &Arxiv{Options: opts} }

// Name returns the adapter identifier.
func (a *Arxiv) Name() string { return "arxiv" }

// Search queries the arXiv API. The API is picky with complex boolean
// expressions, so the query is reduced to bare keywords and the strict
// boolean logic is applied downstream by the relevance filter.
func (a *Arxiv) Search(ctx context.Context, query string, startDate time.Time, maxResults int) ([]types.Candidate, error) {
	keywords := simpleKeywords(query)
	if len(keywords) == 0 {
		return nil, fmt.Errorf("%w: empty arXiv query", ErrAdapter)
	}

	var parts []string
	for _, kw := range keywords {
		parts = append(parts, "all:"+url.QueryEscape(kw))
	}

	if maxResults <= 0 {
		maxResults = 10
	}
	fetchLimit := maxResults * overfetchFactor

	apiURL := fmt.Sprintf("%s?search_query=%s&start=0&max_results=%d&sortBy=submittedDate&sortOrder=descending",
		arxivAPIBase, strings.Join(parts, "+AND+"), fetchLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httputil.DoWithRetry(ctx, a.client(), req, a.Retry.APIMaxRetries, a.Retry.APIBaseDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: arXiv API request: %v", ErrAdapter, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: arXiv API returned HTTP %d", ErrAdapter, resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("%w: parsing arXiv response: %v", ErrAdapter, err)
	}

	var results []types.Candidate
	for _, entry := range feed.Entries {
		if ctx.Err() != nil {
			break
		}

		arxivID := extractArxivID(entry.ID)
		if arxivID == "" {
			continue
		}

		published, parseErr := time.Parse(time.RFC3339, entry.Published)
		if parseErr == nil && !startDate.IsZero() && published.Before(startDate) {
			continue
		}

		var authors []string
		for _, au := range entry.Authors {
			authors = append(authors, strings.TrimSpace(au.Name))
		}

		pdfURL := entry.pdfLink()
		if pdfURL == "" {
			pdfURL = "https://arxiv.org/pdf/" + arxivID
		}

		c := types.Candidate{
			SourceID:  arxivID,
			Title:     strings.TrimSpace(entry.Title),
			Abstract:  strings.Join(strings.Fields(entry.Summary), " "),
			Authors:   strings.Join(authors, ", "),
			SourceURL: strings.TrimSpace(entry.ID),
			PDFURL:    pdfURL,
			Source:    a.Name(),
		}
		if parseErr == nil {
			c.PublishedDate = published.Format("2006-01-02")
		}
		results = append(results, c)

		if len(results) >= fetchLimit {
			break
		}
	}
	return results, nil
}

// Download fetches the candidate's PDF into staging.
func (a *Arxiv) Download(ctx context.Context, c *types.Candidate) (string, error) {
	if c.PDFURL == "" {
		return "", fmt.Errorf("%w: candidate %s has no PDF URL", ErrAdapter, c.SourceID)
	}
	dest, err := a.stagePath(c)
	if err != nil {
		return "", err
	}
	if err := a.fetchPDF(ctx, c.PDFURL, dest); err != nil {
		return "", fmt.Errorf("downloading %s: %w", c.SourceID, err)
	}
	return dest, nil
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Authors   []arxivAuthor `xml:"author"`
	Links     []arxivLink   `xml:"link"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
}

func (e arxivEntry) pdfLink() string {
	for _, l := range e.Links {
		if l.Title == "pdf" {
			return l.Href
		}
	}
	return ""
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" → "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]

	// Strip version suffix (e.g. "v1", "v2").
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}
