// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/paper-ingest/pkg/types"
)

// aclSiteBase is the anthology web root used for landing and PDF URLs.
var aclSiteBase = "https://aclanthology.org"

// ACL searches a locally synced copy of the anthology's XML metadata.
// The metadata repository is kept up to date out of band; search is a
// keyword scan over its volumes, newest year first.
type ACL struct {
	Options

	// MetadataDir holds the anthology collection XML files.
	MetadataDir string
}

// NewACL returns the ACL Anthology adapter.
func NewACL(opts Options, metadataDir string) *ACL {
	return &ACL{Options: opts, MetadataDir: metadataDir}
}

// Name returns the adapter identifier.
func (a *ACL) Name() string { return "acl_anthology" }

// Anthology collection XML structures (one file per collection).
type aclCollection struct {
	ID      string      `xml:"id,attr"`
	Volumes []aclVolume `xml:"volume"`
}

type aclVolume struct {
	ID     string     `xml:"id,attr"`
	Meta   aclMeta    `xml:"meta"`
	Papers []aclPaper `xml:"paper"`
}

type aclMeta struct {
	Year string `xml:"year"`
}

type aclPaper struct {
	ID       string      `xml:"id,attr"`
	Title    string      `xml:"title"`
	Abstract string      `xml:"abstract"`
	Authors  []aclAuthor `xml:"author"`
	Language string      `xml:"language"`
}

type aclAuthor struct {
	First string `xml:"first"`
	Last  string `xml:"last"`
}

type aclIndexedVolume struct {
	collectionID string
	volume       aclVolume
	year         int
}

// Search scans the metadata tree for papers matching any query keyword
// in title or abstract. Strict boolean logic is applied downstream.
func (a *ACL) Search(ctx context.Context, query string, startDate time.Time, maxResults int) ([]types.Candidate, error) {
	volumes, err := a.loadVolumes()
	if err != nil {
		return nil, fmt.Errorf("%w: loading anthology metadata: %v", ErrAdapter, err)
	}

	// Newest volumes first so the limit favors recent work.
	sort.Slice(volumes, func(i, j int) bool { return volumes[i].year > volumes[j].year })

	if maxResults <= 0 {
		maxResults = 100
	}
	keywords := simpleKeywords(query)

	var results []types.Candidate
	for _, iv := range volumes {
		if ctx.Err() != nil || len(results) >= maxResults {
			break
		}
		if !startDate.IsZero() && iv.year > 0 && iv.year < startDate.Year() {
			continue
		}

		for _, paper := range iv.volume.Papers {
			if ctx.Err() != nil || len(results) >= maxResults {
				break
			}
			if paper.Title == "" || !matchesAny(keywords, paper.Title, paper.Abstract) {
				continue
			}

			var authors []string
			for _, au := range paper.Authors {
				authors = append(authors, strings.TrimSpace(au.First+" "+au.Last))
			}

			lang := strings.ToLower(paper.Language)
			if lang == "" || strings.HasPrefix(lang, "eng") {
				lang = "en"
			}

			fullID := fmt.Sprintf("%s-%s.%s", iv.collectionID, iv.volume.ID, paper.ID)
			results = append(results, types.Candidate{
				SourceID:      fullID,
				Title:         paper.Title,
				Authors:       strings.Join(authors, ", "),
				PublishedDate: fmt.Sprintf("%d-01-01", iv.year),
				Abstract:      paper.Abstract,
				SourceURL:     fmt.Sprintf("%s/%s", aclSiteBase, fullID),
				PDFURL:        fmt.Sprintf("%s/%s.pdf", aclSiteBase, fullID),
				Language:      lang,
				Source:        a.Name(),
			})
		}
	}
	return results, nil
}

func (a *ACL) loadVolumes() ([]aclIndexedVolume, error) {
	entries, err := os.ReadDir(a.MetadataDir)
	if err != nil {
		return nil, err
	}

	var volumes []aclIndexedVolume
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".xml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.MetadataDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		var coll aclCollection
		if err := xml.Unmarshal(data, &coll); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", entry.Name(), err)
		}
		for _, vol := range coll.Volumes {
			year, _ := strconv.Atoi(vol.Meta.Year)
			volumes = append(volumes, aclIndexedVolume{
				collectionID: coll.ID,
				volume:       vol,
				year:         year,
			})
		}
	}
	return volumes, nil
}

// Download fetches the paper's PDF into staging.
func (a *ACL) Download(ctx context.Context, c *types.Candidate) (string, error) {
	if c.PDFURL == "" {
		return "", fmt.Errorf("%w: paper %s has no PDF URL", ErrAdapter, c.SourceID)
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
