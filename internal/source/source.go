// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source defines the adapter contract and the six concrete
// source adapters. Every adapter exposes a search operation yielding
// candidates and an idempotent download operation placing the PDF under
// the staging tree by category.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/paper-ingest/internal/classify"
	"github.com/pdiddy/paper-ingest/internal/httputil"
	"github.com/pdiddy/paper-ingest/internal/naming"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

// ErrAdapter reports a fatal adapter failure. The worker's top level
// converts it into an ERROR event for the supervisor.
var ErrAdapter = errors.New("adapter failure")

// userAgent is sent on every outbound request. Several publisher sites
// reject the default Go client string.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Adapter is the uniform two-operation source contract.
type Adapter interface {
	// Name returns the adapter identifier recorded in Paper.Source.
	Name() string

	// Search queries the source and returns candidates published on or
	// after startDate (zero time means no date restriction). Partial
	// results already collected are returned on cancellation.
	Search(ctx context.Context, query string, startDate time.Time, maxResults int) ([]types.Candidate, error)

	// Download fetches or synthesizes the candidate's PDF and returns
	// its absolute path in staging. If the file already exists it is
	// returned without re-downloading.
	Download(ctx context.Context, c *types.Candidate) (string, error)
}

// PageFetcher retrieves a rendered page's HTML. The headless-browser
// implementation lives outside the core; tests supply a stub.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// PDFRenderer converts an HTML document into a PDF at dest. The real
// renderer is an external collaborator.
type PDFRenderer interface {
	Render(ctx context.Context, html string, dest string) error
}

// Options carries the shared adapter wiring.
type Options struct {
	// StagingRoot is where downloads land, under a category subdirectory.
	StagingRoot string

	// Client is the HTTP client used for all network calls.
	Client *http.Client

	// Retry holds the API retry knobs.
	Retry types.RetryConfig

	// Classifier assigns the category subdirectory.
	Classifier *classify.Classifier

	// AuthToken, when set, is sent as a bearer token on every request
	// this adapter makes.
	AuthToken string

	// ContactEmail, when set, is sent in a From header as harvesting
	// etiquette.
	ContactEmail string
}

func (o Options) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// identify applies the adapter's credential headers to an outbound
// request.
func (o Options) identify(req *http.Request) {
	if o.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+o.AuthToken)
	}
	if o.ContactEmail != "" {
		req.Header.Set("From", o.ContactEmail)
	}
}

// stagePath computes the staging destination for a candidate: the
// classifier picks the category directory, the title picks the
// filename. The directory is created.
func (o Options) stagePath(c *types.Candidate) (string, error) {
	category := o.Classifier.Classify(c.Title, c.Abstract, c.Authors)
	dir := filepath.Join(o.StagingRoot, naming.SanitizeFilename(category, ""))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating staging directory %s: %w", dir, err)
	}
	return filepath.Join(dir, naming.SanitizeFilename(c.Title, ".pdf")), nil
}

// fetchPDF downloads url to destPath through the retry helper, writing
// to a temp file and renaming on success. An existing destination is
// returned untouched.
func (o Options) fetchPDF(ctx context.Context, url, destPath string) error {
	if _, err := os.Stat(destPath); err == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/pdf")
	o.identify(req)

	resp, err := httputil.DoWithRetry(ctx, o.client(), req, o.Retry.APIMaxRetries, o.Retry.APIBaseDelay)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".download-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// simpleKeywords reduces a boolean query to its bare terms for sources
// whose APIs cannot evaluate the full expression. Operators, quotes,
// parentheses, and stop words are dropped; terms are lower-cased and
// deduplicated, preserving first-seen order.
func simpleKeywords(query string) []string {
	if query == "" {
		return nil
	}
	replacer := strings.NewReplacer("(", " ", ")", " ", `"`, " ", "'", " ")
	cleaned := replacer.Replace(query)

	stop := map[string]bool{
		"and": true, "or": true, "not": true, "andnot": true,
		"to": true, "in": true, "of": true, "the": true, "a": true, "an": true,
	}

	seen := map[string]bool{}
	var keywords []string
	for _, token := range strings.Fields(cleaned) {
		t := strings.ToLower(strings.TrimSpace(token))
		if t == "" || len(t) < 2 || stop[t] || seen[t] {
			continue
		}
		seen[t] = true
		keywords = append(keywords, t)
	}
	return keywords
}

// matchesAny reports whether any keyword occurs in title or abstract
// (case-insensitive). An empty keyword list matches everything.
func matchesAny(keywords []string, title, abstract string) bool {
	if len(keywords) == 0 {
		return true
	}
	title = strings.ToLower(title)
	abstract = strings.ToLower(abstract)
	for _, k := range keywords {
		if strings.Contains(title, k) || strings.Contains(abstract, k) {
			return true
		}
	}
	return false
}

// stripTags reduces an HTML fragment to its visible text. Good enough
// for abstract extraction; not a general HTML parser.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// abstractFromHTML derives a short abstract from page HTML: visible
// text, truncated to 1000 chars with an ellipsis.
func abstractFromHTML(html string) string {
	text := stripTags(html)
	if text == "" {
		return "Content unavailable"
	}
	if len(text) > 1000 {
		text = text[:1000]
	}
	return text + "..."
}

// renderDocument wraps article HTML with a retrieval header and basic
// print styling for PDF synthesis.
func renderDocument(c *types.Candidate, body string) string {
	header := fmt.Sprintf("Retrieved from %s on %s from URL %s",
		c.Source, time.Now().Format("2006-01-02"), c.SourceURL)
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>%s</title>
<style>
body { font-family: Helvetica, sans-serif; line-height: 1.5; font-size: 11pt; }
h1 { font-size: 18pt; margin-bottom: 0.5em; }
.meta { color: #666; font-size: 10pt; margin-bottom: 20px; border-bottom: 1px solid #ccc; padding-bottom: 10px; }
img { max-width: 100%%; height: auto; }
pre { background-color: #f5f5f5; padding: 10px; font-family: monospace; font-size: 10pt; white-space: pre-wrap; }
</style>
</head>
<body>
<div style="font-size: 9pt; color: #555; font-style: italic; margin-bottom: 20px; text-align: center;">%s</div>
<h1>%s</h1>
<div class="meta"><strong>Author:</strong> %s <br><strong>Date:</strong> %s <br><strong>Source:</strong> <a href="%s">%s</a></div>
<div class="content">%s</div>
</body>
</html>`, c.Title, header, c.Title, c.Authors, c.PublishedDate, c.SourceURL, c.SourceURL, body)
}
