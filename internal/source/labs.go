// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/paper-ingest/internal/httputil"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

// LabSource describes one lab blog to monitor.
type LabSource struct {
	// Name is the lab's display name; it doubles as the author field.
	Name string

	// URL is the feed URL (rss) or the page to scrape (scrape).
	URL string

	// Scrape selects browser-based scraping instead of an RSS feed.
	Scrape bool

	// FilterKeywords keeps only entries mentioning one of these. Empty
	// keeps everything.
	FilterKeywords []string
}

// DefaultLabSources returns the monitored lab blogs.
func DefaultLabSources() []LabSource {
	return []LabSource{
		{Name: "Anthropic", URL: "https://raw.githubusercontent.com/Olshansk/rss-feeds/main/feeds/feed_anthropic_research.xml"},
		{Name: "OpenAI", URL: "https://openai.com/news/rss.xml", FilterKeywords: []string{"research", "model", "gpt", "o1", "sora"}},
		{Name: "DeepMind", URL: "https://deepmind.google/blog/rss.xml", FilterKeywords: []string{"research", "science", "alpha"}},
		{Name: "Meta AI", URL: "https://ai.meta.com/blog/rss/", FilterKeywords: []string{"research", "llama", "fair"}},
		{Name: "Google Research", URL: "https://blog.google/technology/ai/rss/"},
		{Name: "Microsoft Research", URL: "https://www.microsoft.com/en-us/research/feed/", FilterKeywords: []string{"AI", "Machine Learning", "LLM"}},
		{Name: "Mistral", URL: "https://mistral.ai/news/", Scrape: true, FilterKeywords: []string{"research", "model", "mistral"}},
		{Name: "NVIDIA", URL: "https://blogs.nvidia.com/blog/category/deep-learning/feed/"},
	}
}

// Labs monitors a set of AI lab blogs. RSS sources are fetched over
// plain HTTP; scrape sources and article bodies go through the
// headless-browser PageFetcher. PDFs are synthesized from page HTML.
type Labs struct {
	Options

	Sources  []LabSource
	Fetcher  PageFetcher
	Renderer PDFRenderer
}

// NewLabs returns the lab-blog adapter over the default source list.
func NewLabs(opts Options, fetcher PageFetcher, renderer PDFRenderer) *Labs {
	return &Labs{
		Options:  opts,
		Sources:  DefaultLabSources(),
		Fetcher:  fetcher,
		Renderer: renderer,
	}
}

// Name returns the adapter identifier.
func (l *Labs) Name() string { return "labs" }

// Search walks every configured lab source and collects entries
// published on or after startDate. A failing source is skipped so one
// broken feed does not starve the rest.
func (l *Labs) Search(ctx context.Context, query string, startDate time.Time, maxResults int) ([]types.Candidate, error) {
	if maxResults <= 0 {
		maxResults = 50
	}

	var all []types.Candidate
	for _, lab := range l.Sources {
		if ctx.Err() != nil {
			break
		}
		var entries []types.Candidate
		var err error
		if lab.Scrape {
			entries, err = l.scrapeSource(ctx, lab)
		} else {
			entries, err = l.fetchFeed(ctx, lab, startDate)
		}
		if err != nil {
			continue
		}
		all = append(all, entries...)
	}

	if len(all) > maxResults {
		all = all[:maxResults]
	}
	return all, nil
}

// rssDocument covers RSS 2.0 and Atom feeds in one shape.
type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomEntry struct {
	Title   string `xml:"title"`
	ID      string `xml:"id"`
	Summary string `xml:"summary"`
	Updated string `xml:"updated"`
	Links   []struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
}

func (l *Labs) fetchFeed(ctx context.Context, lab LabSource, startDate time.Time) ([]types.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lab.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httputil.DoWithRetry(ctx, l.client(), req, l.Retry.APIMaxRetries, l.Retry.APIBaseDelay)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	var doc rssDocument
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	var results []types.Candidate
	for _, item := range doc.Channel.Items {
		c, ok := l.feedCandidate(lab, item.Title, item.Description, item.Link, item.GUID, item.PubDate, startDate)
		if ok {
			results = append(results, c)
		}
	}
	for _, entry := range doc.Entries {
		link := ""
		if len(entry.Links) > 0 {
			link = entry.Links[0].Href
		}
		c, ok := l.feedCandidate(lab, entry.Title, entry.Summary, link, entry.ID, entry.Updated, startDate)
		if ok {
			results = append(results, c)
		}
	}
	return results, nil
}

func (l *Labs) feedCandidate(lab LabSource, title, summary, link, guid, pubDate string, startDate time.Time) (types.Candidate, bool) {
	title = cleanLabTitle(title)
	if title == "" || link == "" {
		return types.Candidate{}, false
	}
	if !matchesLabKeywords(lab, title+" "+summary) {
		return types.Candidate{}, false
	}

	published, dateStr := parseFeedDate(pubDate)
	if !startDate.IsZero() && !published.IsZero() && published.Before(startDate) {
		return types.Candidate{}, false
	}

	id := guid
	if id == "" {
		id = link
	}

	return types.Candidate{
		SourceID:      id,
		Title:         title,
		Authors:       lab.Name,
		PublishedDate: dateStr,
		Abstract:      abstractFromHTML(summary),
		SourceURL:     link,
		Source:        "labs_" + strings.ToLower(lab.Name),
	}, true
}

// scrapeLink finds article anchors on a scraped page.
var scrapeLink = regexp.MustCompile(`(?is)<a[^>]+href="([^"]*(?:/news/|/blog/)[^"]*)"[^>]*>(.*?)</a>`)

func (l *Labs) scrapeSource(ctx context.Context, lab LabSource) ([]types.Candidate, error) {
	if l.Fetcher == nil {
		return nil, fmt.Errorf("no page fetcher configured")
	}
	html, err := l.Fetcher.Fetch(ctx, lab.URL)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(lab.URL)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var results []types.Candidate
	for _, m := range scrapeLink.FindAllStringSubmatch(html, -1) {
		title := strings.TrimSpace(stripTags(m[2]))
		if len(title) < 5 {
			continue
		}
		if !matchesLabKeywords(lab, title) {
			continue
		}

		link := m[1]
		if ref, parseErr := url.Parse(link); parseErr == nil {
			link = base.ResolveReference(ref).String()
		}
		if seen[link] {
			continue
		}
		seen[link] = true

		results = append(results, types.Candidate{
			SourceID:      link,
			Title:         cleanLabTitle(title),
			Authors:       lab.Name,
			PublishedDate: time.Now().Format("2006-01-02"),
			SourceURL:     link,
			Source:        "labs_" + strings.ToLower(lab.Name),
		})
	}
	return results, nil
}

func matchesLabKeywords(lab LabSource, text string) bool {
	if len(lab.FilterKeywords) == 0 {
		return true
	}
	text = strings.ToLower(text)
	for _, k := range lab.FilterKeywords {
		if strings.Contains(text, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

var feedDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"2006-01-02",
}

func parseFeedDate(s string) (time.Time, string) {
	s = strings.TrimSpace(s)
	for _, layout := range feedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), t.UTC().Format("2006-01-02")
		}
	}
	return time.Time{}, "Unknown"
}

var (
	labDatePrefix = regexp.MustCompile(`^[A-Z][a-z]{2}\s\d{1,2},\s\d{4}`)

	// Category labels some feeds glue onto the front of titles.
	labCategoryPrefixes = []string{
		"Alignment", "Interpretability", "Societal Impacts", "Economic Research", "Research",
	}
)

// cleanLabTitle strips the date stamps and category labels that lab
// feeds concatenate onto entry titles.
func cleanLabTitle(title string) string {
	if title == "" {
		return ""
	}
	title = labDatePrefix.ReplaceAllString(title, "")
	for _, cat := range labCategoryPrefixes {
		for strings.HasPrefix(title, cat) {
			title = title[len(cat):]
		}
	}
	return strings.TrimSpace(title)
}

// articleBody extracts the <article> element when present, otherwise
// returns the whole page.
var articleBody = regexp.MustCompile(`(?is)<article[^>]*>(.*?)</article>`)

// Download synthesizes a PDF from the post page. The page is fetched
// through the headless browser when the candidate carries no HTML.
func (l *Labs) Download(ctx context.Context, c *types.Candidate) (string, error) {
	dest, err := l.stagePath(c)
	if err != nil {
		return "", err
	}
	if fileExists(dest) {
		return dest, nil
	}

	html := c.RawHTML
	if html == "" {
		if l.Fetcher == nil {
			return "", fmt.Errorf("%w: no page fetcher configured", ErrAdapter)
		}
		html, err = l.Fetcher.Fetch(ctx, c.SourceURL)
		if err != nil {
			return "", fmt.Errorf("fetching %s: %w", c.SourceURL, err)
		}
	}

	body := html
	if m := articleBody.FindStringSubmatch(html); m != nil {
		body = m[1]
	}

	if err := l.Renderer.Render(ctx, renderDocument(c, body), dest); err != nil {
		return "", fmt.Errorf("rendering PDF for %s: %w", c.SourceID, err)
	}
	return dest, nil
}
