// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-ingest/internal/hashutil"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func paper(title, url, source string) *types.Paper {
	return &types.Paper{
		Title:          title,
		Abstract:       "We study " + title + " with a method, experiments, and results.",
		Authors:        "A. Author",
		PublishedDate:  "2025-06-01",
		SourceURL:      url,
		Source:         source,
		DownloadedDate: "2025-06-02 10:00:00",
		RunID:          "2025-06-02 10:00:00",
	}
}

func TestFreshDatabaseAtCurrentVersion(t *testing.T) {
	s := openTestStore(t)
	v, err := s.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, v)
	assert.False(t, s.ReadOnly())
}

func TestAddPaperInsert(t *testing.T) {
	s := openTestStore(t)

	res, err := s.AddPaper(paper("Paper One", "https://example.com/one", "arxiv"))
	require.NoError(t, err)
	assert.False(t, res.Merged)
	assert.Positive(t, res.ID)

	exists, err := s.ExistsByURL("https://example.com/one")
	require.NoError(t, err)
	assert.True(t, exists)
}

// Equivalent URLs (tracking params, scheme) merge into one row with both
// sources and both original URLs.
func TestAddPaperMergeByURL(t *testing.T) {
	s := openTestStore(t)

	first, err := s.AddPaper(paper("T", "http://example.com/x?utm_source=foo", "arxiv"))
	require.NoError(t, err)
	second, err := s.AddPaper(paper("T", "https://example.com/x", "lesswrong"))
	require.NoError(t, err)

	assert.True(t, second.Merged)
	assert.Equal(t, first.ID, second.ID)

	row, err := s.GetByHash(hashutil.URLHash("https://example.com/x"))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "arxiv, lesswrong", row.Source)

	urls := strings.Split(row.SourceURL, ";")
	require.Len(t, urls, 2)
	assert.Equal(t, "http://example.com/x?utm_source=foo", strings.TrimSpace(urls[0]))
	assert.Equal(t, "https://example.com/x", strings.TrimSpace(urls[1]))
}

// Merging is commutative in the resulting source and URL sets.
func TestMergeCommutative(t *testing.T) {
	a := paper("Same Work", "http://example.com/x?utm_source=rss", "arxiv")
	b := paper("Same Work", "https://example.com/x", "openreview")

	s1 := openTestStore(t)
	_, err := s1.AddPaper(a)
	require.NoError(t, err)
	_, err = s1.AddPaper(b)
	require.NoError(t, err)

	s2 := openTestStore(t)
	_, err = s2.AddPaper(b)
	require.NoError(t, err)
	_, err = s2.AddPaper(a)
	require.NoError(t, err)

	rows1, err := s1.AllPapers()
	require.NoError(t, err)
	rows2, err := s2.AllPapers()
	require.NoError(t, err)
	require.Len(t, rows1, 1)
	require.Len(t, rows2, 1)

	sourceSet := func(s string) map[string]bool {
		set := map[string]bool{}
		for _, v := range strings.Split(s, ",") {
			set[strings.TrimSpace(v)] = true
		}
		return set
	}
	assert.Equal(t, sourceSet(rows1[0].Source), sourceSet(rows2[0].Source))
	assert.Equal(t, len(strings.Split(rows1[0].SourceURL, ";")), len(strings.Split(rows2[0].SourceURL, ";")))
}

// No two rows ever share a non-zero paper_hash, regardless of insertion
// order or repetition.
func TestNoDuplicateHashes(t *testing.T) {
	s := openTestStore(t)

	urls := []string{
		"https://example.com/a",
		"http://example.com/a",
		"https://example.com/a?utm_medium=x",
		"https://example.com/b",
		"https://example.com/b/",
	}
	for i, u := range urls {
		_, err := s.AddPaper(paper("Paper "+u, u, "arxiv"))
		require.NoError(t, err, "url %d", i)
	}

	rows, err := s.AllPapers()
	require.NoError(t, err)
	seen := map[int64]bool{}
	for _, r := range rows {
		if r.PaperHash == 0 {
			continue
		}
		assert.False(t, seen[r.PaperHash], "duplicate hash %d", r.PaperHash)
		seen[r.PaperHash] = true
	}
	assert.Len(t, rows, 2)
}

func TestTitleHashDedup(t *testing.T) {
	s := openTestStore(t)

	a := paper("Shared Title", "https://example.com/a", "arxiv")
	b := paper("shared title", "https://other.org/b", "acl")
	b.Abstract = a.Abstract // same prefix

	_, err := s.AddPaper(a)
	require.NoError(t, err)
	res, err := s.AddPaper(b)
	require.NoError(t, err)
	assert.True(t, res.Merged)

	// Different abstract prefix: not a duplicate.
	c := paper("Shared Title", "https://third.net/c", "aaai")
	c.Abstract = "A completely different body of work on unrelated questions entirely."
	res, err = s.AddPaper(c)
	require.NoError(t, err)
	assert.False(t, res.Merged)
}

func TestPapersWithoutURLsNeverCollide(t *testing.T) {
	s := openTestStore(t)

	a := paper("First No URL", "", "labs")
	b := paper("Second No URL", "", "labs")
	_, err := s.AddPaper(a)
	require.NoError(t, err)
	res, err := s.AddPaper(b)
	require.NoError(t, err)
	assert.False(t, res.Merged)
}

func TestRollbackSource(t *testing.T) {
	s := openTestStore(t)

	solo1 := paper("Solo One", "https://example.com/s1", "lesswrong")
	solo1.PDFPath = "/staging/Solo One.pdf"
	solo2 := paper("Solo Two", "https://example.com/s2", "lesswrong")
	solo2.PDFPath = "/staging/Solo Two.pdf"
	shared := paper("Shared", "https://example.com/shared", "arxiv")

	_, err := s.AddPaper(solo1)
	require.NoError(t, err)
	_, err = s.AddPaper(solo2)
	require.NoError(t, err)
	_, err = s.AddPaper(shared)
	require.NoError(t, err)
	// lesswrong also finds the shared paper.
	sharedLW := paper("Shared", "https://example.com/shared?ref=feed", "lesswrong")
	res, err := s.AddPaper(sharedLW)
	require.NoError(t, err)
	require.True(t, res.Merged)

	rb, err := s.RollbackSource("lesswrong", "2025-06-02 00:00:00")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/staging/Solo One.pdf", "/staging/Solo Two.pdf"}, rb.Paths)
	assert.Len(t, rb.IDs, 2)

	rows, err := s.AllPapers()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "arxiv", rows[0].Source)
	assert.NotContains(t, rows[0].Source, "lesswrong")
	assert.Len(t, strings.Split(rows[0].SourceURL, ";"), 1)
}

func TestRollbackRespectsStartTime(t *testing.T) {
	s := openTestStore(t)

	old := paper("Old Paper", "https://example.com/old", "lesswrong")
	old.DownloadedDate = "2024-01-01 00:00:00"
	_, err := s.AddPaper(old)
	require.NoError(t, err)

	rb, err := s.RollbackSource("lesswrong", "2025-01-01 00:00:00")
	require.NoError(t, err)
	assert.Empty(t, rb.IDs)

	rows, err := s.AllPapers()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMarkSyncedAndUnsynced(t *testing.T) {
	s := openTestStore(t)

	res, err := s.AddPaper(paper("P", "https://example.com/p", "arxiv"))
	require.NoError(t, err)

	unsynced, err := s.GetUnsynced()
	require.NoError(t, err)
	require.Len(t, unsynced, 1)

	require.NoError(t, s.MarkSynced([]int64{res.ID}))

	unsynced, err = s.GetUnsynced()
	require.NoError(t, err)
	assert.Empty(t, unsynced)
}

func TestUpdatePDFPath(t *testing.T) {
	s := openTestStore(t)

	p := paper("P", "https://example.com/p", "arxiv")
	_, err := s.AddPaper(p)
	require.NoError(t, err)

	h := hashutil.URLHash("https://example.com/p")
	require.NoError(t, s.UpdatePDFPath(h, "/library/Alignment Research/P.pdf"))

	row, err := s.GetByHash(h)
	require.NoError(t, err)
	assert.Equal(t, "/library/Alignment Research/P.pdf", row.PDFPath)
}

func TestGetLatestDate(t *testing.T) {
	s := openTestStore(t)

	d, err := s.GetLatestDate()
	require.NoError(t, err)
	assert.Empty(t, d)

	a := paper("A", "https://example.com/a", "arxiv")
	a.PublishedDate = "2025-01-15"
	b := paper("B", "https://example.com/b", "arxiv")
	b.PublishedDate = "2025-03-02"
	_, err = s.AddPaper(a)
	require.NoError(t, err)
	_, err = s.AddPaper(b)
	require.NoError(t, err)

	d, err = s.GetLatestDate()
	require.NoError(t, err)
	assert.Equal(t, "2025-03-02", d)
}

func TestGetPapersByRunID(t *testing.T) {
	s := openTestStore(t)

	a := paper("A", "https://example.com/a", "arxiv")
	a.RunID = "run-1"
	b := paper("B", "https://example.com/b", "arxiv")
	b.RunID = "run-2"
	_, err := s.AddPaper(a)
	require.NoError(t, err)
	_, err = s.AddPaper(b)
	require.NoError(t, err)

	rows, err := s.GetPapersByRunID("run-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0].Title)
}

// A database stamped beyond CurrentVersion opens read-only and refuses
// writes.
func TestNewerSchemaOpensReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (99, datetime('now'))`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	assert.True(t, s2.ReadOnly())

	_, err = s2.AddPaper(paper("X", "https://example.com/x", "arxiv"))
	assert.ErrorIs(t, err, ErrReadOnly)
}

// A legacy database (string ids, no hashes, no version log) migrates
// through v1..v5 to the current shape.
func TestMigrateLegacyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE papers (
		id TEXT PRIMARY KEY,
		title TEXT,
		abstract TEXT,
		authors TEXT,
		published_date TEXT,
		pdf_path TEXT,
		source_url TEXT,
		downloaded_date TEXT,
		synced_to_cloud BOOLEAN DEFAULT 0
	)`)
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO papers (id, title, abstract, published_date, source_url)
		VALUES ('2301.07041', 'Legacy Paper', 'An old abstract.', '2023-01-17', 'https://arxiv.org/abs/2301.07041')`)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (0, datetime('now'))`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, v)

	rows, err := s.AllPapers()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Legacy Paper", rows[0].Title)
	assert.NotZero(t, rows[0].TitleHash)

	// Re-opening runs no further migrations and keeps the data.
	require.NoError(t, s.Close())
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	rows, err = s2.AllPapers()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
