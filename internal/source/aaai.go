// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/paper-ingest/internal/httputil"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

// aaaiOAIBase is the conference's OAI-PMH endpoint, a var for tests.
var aaaiOAIBase = "https://ojs.aaai.org/index.php/AAAI/oai"

// aaaiMaxScan caps how many OAI records a single search will harvest.
const aaaiMaxScan = 2000

// aaaiDownloadLink finds PDF links on a landing page when the guessed
// download URL fails.
var aaaiDownloadLink = regexp.MustCompile(`href="([^"]+article/download/[^"]+)"`)

// AAAI harvests the conference's OAI-PMH feed and filters records by
// query keywords locally.
type AAAI struct {
	Options
}

// NewAAAI returns the AAAI adapter.
func NewAAAI(opts Options) *AAAI { return &AAAI{Options: opts} }

// Name returns the adapter identifier.
func (a *AAAI) Name() string { return "aaai" }

// OAI-PMH response structures (oai_dc metadata).
type oaiResponse struct {
	ListRecords struct {
		Records         []oaiRecord `xml:"record"`
		ResumptionToken string      `xml:"resumptionToken"`
	} `xml:"ListRecords"`
	Error struct {
		Code string `xml:"code,attr"`
		Text string `xml:",chardata"`
	} `xml:"error"`
}

type oaiRecord struct {
	Header struct {
		Status string `xml:"status,attr"`
	} `xml:"header"`
	Metadata struct {
		DC oaiDC `xml:"dc"`
	} `xml:"metadata"`
}

type oaiDC struct {
	Titles       []string `xml:"title"`
	Descriptions []string `xml:"description"`
	Creators     []string `xml:"creator"`
	Dates        []string `xml:"date"`
	Identifiers  []string `xml:"identifier"`
	Languages    []string `xml:"language"`
}

func first(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

// Search harvests records published since startDate. Without a start
// date the harvest defaults to the last two years so the feed is not
// walked to its beginning.
func (a *AAAI) Search(ctx context.Context, query string, startDate time.Time, maxResults int) ([]types.Candidate, error) {
	if maxResults <= 0 {
		maxResults = 100
	}
	if startDate.IsZero() {
		startDate = time.Now().AddDate(-2, 0, 0)
	}

	keywords := simpleKeywords(query)

	var results []types.Candidate
	scanned := 0
	token := ""
	for {
		if ctx.Err() != nil || len(results) >= maxResults || scanned > aaaiMaxScan {
			break
		}

		page, err := a.harvestPage(ctx, startDate, token)
		if err != nil {
			return results, err
		}
		if page.Error.Code != "" {
			if page.Error.Code == "noRecordsMatch" {
				break
			}
			return results, fmt.Errorf("%w: OAI-PMH error %s: %s", ErrAdapter, page.Error.Code, page.Error.Text)
		}

		for _, rec := range page.ListRecords.Records {
			scanned++
			if ctx.Err() != nil || len(results) >= maxResults || scanned > aaaiMaxScan {
				break
			}
			if rec.Header.Status == "deleted" {
				continue
			}

			dc := rec.Metadata.DC
			title := first(dc.Titles)
			if title == "" {
				continue
			}
			abstract := first(dc.Descriptions)
			if abstract == "" {
				abstract = "No Abstract"
			}
			if !matchesAny(keywords, title, abstract) {
				continue
			}

			var landingURL string
			for _, id := range dc.Identifiers {
				if strings.Contains(id, "article/view/") {
					landingURL = id
					break
				}
			}
			if landingURL == "" {
				continue
			}

			// Landing pages follow /article/view/<id>; the PDF usually
			// lives at /article/download/<id>/<id>.
			articleID := landingURL[strings.LastIndex(landingURL, "/")+1:]
			pdfURL := strings.Replace(landingURL, "/view/", "/download/", 1) + "/" + articleID

			pubDate := first(dc.Dates)
			if len(pubDate) == 4 {
				pubDate += "-01-01"
			}

			lang := strings.ToLower(first(dc.Languages))
			if lang == "" || strings.HasPrefix(lang, "en") || strings.HasPrefix(lang, "eng") {
				lang = "en"
			} else if len(lang) > 2 {
				lang = lang[:2]
			}

			results = append(results, types.Candidate{
				SourceID:      "aaai_" + articleID,
				Title:         title,
				Authors:       strings.Join(dc.Creators, ", "),
				PublishedDate: pubDate,
				Abstract:      abstract,
				SourceURL:     landingURL,
				PDFURL:        pdfURL,
				Language:      lang,
				Source:        a.Name(),
			})
		}

		token = strings.TrimSpace(page.ListRecords.ResumptionToken)
		if token == "" {
			break
		}
	}
	return results, nil
}

func (a *AAAI) harvestPage(ctx context.Context, startDate time.Time, token string) (*oaiResponse, error) {
	params := url.Values{}
	if token != "" {
		params.Set("verb", "ListRecords")
		params.Set("resumptionToken", token)
	} else {
		params.Set("verb", "ListRecords")
		params.Set("metadataPrefix", "oai_dc")
		params.Set("from", startDate.Format("2006-01-02"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, aaaiOAIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	a.identify(req)

	resp, err := httputil.DoWithRetry(ctx, a.client(), req, a.Retry.APIMaxRetries, a.Retry.APIBaseDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: OAI-PMH request: %v", ErrAdapter, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: OAI-PMH endpoint returned HTTP %d", ErrAdapter, resp.StatusCode)
	}

	var parsed oaiResponse
	if err := xml.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: parsing OAI-PMH response: %v", ErrAdapter, err)
	}
	return &parsed, nil
}

// Download fetches the paper's PDF. If the guessed download URL fails
// it scrapes the landing page for the real link.
func (a *AAAI) Download(ctx context.Context, c *types.Candidate) (string, error) {
	if c.PDFURL == "" {
		return "", fmt.Errorf("%w: paper %s has no PDF URL", ErrAdapter, c.SourceID)
	}
	dest, err := a.stagePath(c)
	if err != nil {
		return "", err
	}
	if fileExists(dest) {
		return dest, nil
	}

	if err := a.fetchPDF(ctx, c.PDFURL, dest); err == nil {
		return dest, nil
	}

	pdfURL, scrapeErr := a.scrapePDFURL(ctx, c.SourceURL)
	if scrapeErr != nil {
		return "", fmt.Errorf("downloading %s: %w", c.SourceID, scrapeErr)
	}
	if err := a.fetchPDF(ctx, pdfURL, dest); err != nil {
		return "", fmt.Errorf("downloading %s: %w", c.SourceID, err)
	}
	return dest, nil
}

func (a *AAAI) scrapePDFURL(ctx context.Context, landingURL string) (string, error) {
	if landingURL == "" {
		return "", fmt.Errorf("%w: no landing page to scrape", ErrAdapter)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, landingURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httputil.DoWithRetry(ctx, a.client(), req, a.Retry.APIMaxRetries, a.Retry.APIBaseDelay)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: landing page returned HTTP %d", ErrAdapter, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading landing page: %w", err)
	}

	m := aaaiDownloadLink.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("%w: no download link on landing page", ErrAdapter)
	}
	return strings.ReplaceAll(string(m[1]), "&amp;", "&"), nil
}
