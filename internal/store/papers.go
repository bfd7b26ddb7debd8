// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paper-ingest/internal/hashutil"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

// abstractPrefixLen is how much of the normalized abstract must match
// for a title-hash collision to be confirmed as a duplicate.
const abstractPrefixLen = 500

// AddResult reports what AddPaper did.
type AddResult struct {
	// ID is the row the paper landed in, new or existing.
	ID int64
	// Merged is true when the paper matched an existing row and its
	// source was merged instead of inserting.
	Merged bool
}

// AddPaper inserts a paper or merges it into an existing row. Dedup
// order: exact paper_hash match on the normalized primary URL, then
// title_hash candidates confirmed by case-insensitive title equality and
// abstract prefix similarity. The insert relies on the UNIQUE(paper_hash)
// constraint: a concurrent identical insert falls back to lookup+merge,
// so check and insert are atomic from the caller's point of view.
func (s *Store) AddPaper(p *types.Paper) (AddResult, error) {
	if s.readOnly {
		return AddResult{}, ErrReadOnly
	}

	primary := primaryURL(p.SourceURL)
	pHash := hashutil.URLHash(primary)
	tHash := hashutil.TitleHash(p.Title)

	if pHash != 0 {
		existing, err := s.getByHash(pHash)
		if err != nil {
			return AddResult{}, err
		}
		if existing != nil {
			s.log.Debug("duplicate by URL hash", "title", p.Title, "id", existing.ID)
			return s.mergeSources(existing, p)
		}
	}

	// Content duplicate: same title hash, equal title, similar abstract.
	candidates, err := s.queryPapers(`SELECT `+paperColumns+` FROM papers WHERE title_hash = ?`, tHash)
	if err != nil {
		return AddResult{}, err
	}
	for i := range candidates {
		c := &candidates[i]
		if strings.EqualFold(p.Title, c.Title) && contentSimilar(p.Abstract, c.Abstract) {
			s.log.Debug("duplicate by title hash", "title", p.Title, "id", c.ID)
			return s.mergeSources(c, p)
		}
	}

	res, err := s.db.Exec(`INSERT INTO papers (
		paper_hash, title_hash, title, abstract, authors, published_date,
		pdf_path, source_url, downloaded_date, source, synced_to_cloud,
		language, category, run_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		nullableHash(pHash), tHash, p.Title, p.Abstract, p.Authors, p.PublishedDate,
		p.PDFPath, p.SourceURL, p.DownloadedDate, p.Source,
		p.Language, p.Category, p.RunID)
	if err != nil {
		// Lost a race on UNIQUE(paper_hash): another writer inserted the
		// same URL between our check and this insert. Merge into theirs.
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint && pHash != 0 {
			existing, lookupErr := s.getByHash(pHash)
			if lookupErr != nil {
				return AddResult{}, lookupErr
			}
			if existing != nil {
				return s.mergeSources(existing, p)
			}
		}
		return AddResult{}, fmt.Errorf("%w: inserting paper: %v", ErrStorage, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return AddResult{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s.log.Info("added paper", "id", id, "title", p.Title, "source", p.Source)
	return AddResult{ID: id}, nil
}

// mergeSources extends the existing row's source list with the new
// adapter name and its URL list with the new raw URL. The two lists
// stay index-parallel so RollbackSource can strip a source and its URL
// together; normalization is for hashing only and never suppresses an
// entry. Title, abstract, and pdf_path are never overwritten.
func (s *Store) mergeSources(existing *types.Paper, p *types.Paper) (AddResult, error) {
	sources := splitList(existing.Source, ",")
	newSource := strings.TrimSpace(p.Source)

	if newSource == "" || containsFold(sources, newSource) {
		return AddResult{ID: existing.ID, Merged: true}, nil
	}

	sources = append(sources, newSource)

	urls := splitList(existing.SourceURL, ";")
	if newURL := strings.TrimSpace(primaryURL(p.SourceURL)); newURL != "" {
		urls = append(urls, newURL)
	}

	_, err := s.db.Exec(`UPDATE papers SET source = ?, source_url = ? WHERE id = ?`,
		strings.Join(sources, ", "), strings.Join(urls, " ; "), existing.ID)
	if err != nil {
		return AddResult{}, fmt.Errorf("%w: merging sources: %v", ErrStorage, err)
	}
	s.log.Info("merged source into existing paper", "id", existing.ID, "source", newSource)
	return AddResult{ID: existing.ID, Merged: true}, nil
}

// ExistsByHash reports whether a row with the given paper_hash exists.
// A zero hash never matches.
func (s *Store) ExistsByHash(h int64) (bool, error) {
	if h == 0 {
		return false, nil
	}
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM papers WHERE paper_hash = ?`, h).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking paper hash: %w", err)
	}
	return true, nil
}

// ExistsByURL reports whether the normalized URL is already stored.
func (s *Store) ExistsByURL(url string) (bool, error) {
	return s.ExistsByHash(hashutil.URLHash(url))
}

// GetByHash returns the row with the given paper_hash, or nil.
func (s *Store) GetByHash(h int64) (*types.Paper, error) {
	return s.getByHash(h)
}

func (s *Store) getByHash(h int64) (*types.Paper, error) {
	if h == 0 {
		return nil, nil
	}
	papers, err := s.queryPapers(`SELECT `+paperColumns+` FROM papers WHERE paper_hash = ?`, h)
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, nil
	}
	return &papers[0], nil
}

// GetLatestDate returns the most recent published_date in the store, or
// "" when empty.
func (s *Store) GetLatestDate() (string, error) {
	var d sql.NullString
	if err := s.db.QueryRow(`SELECT MAX(published_date) FROM papers`).Scan(&d); err != nil {
		return "", fmt.Errorf("reading latest date: %w", err)
	}
	return d.String, nil
}

// GetPapersByRunID returns all rows produced by a run, ordered by source
// then newest first.
func (s *Store) GetPapersByRunID(runID string) ([]types.Paper, error) {
	return s.queryPapers(
		`SELECT `+paperColumns+` FROM papers WHERE run_id = ? ORDER BY source, published_date DESC`,
		runID)
}

// GetUnsynced returns rows not yet promoted to the library.
func (s *Store) GetUnsynced() ([]types.Paper, error) {
	return s.queryPapers(`SELECT ` + paperColumns + ` FROM papers WHERE synced_to_cloud = 0`)
}

// AllPapers returns every row, ordered by id.
func (s *Store) AllPapers() ([]types.Paper, error) {
	return s.queryPapers(`SELECT ` + paperColumns + ` FROM papers ORDER BY id`)
}

// MarkSynced sets synced_to_cloud on the given rows.
func (s *Store) MarkSynced(ids []int64) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.Exec(
		`UPDATE papers SET synced_to_cloud = 1 WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("%w: marking synced: %v", ErrStorage, err)
	}
	return nil
}

// UpdatePDFPath rewrites the stored file path for the row with the given
// paper_hash, used at commit when a PDF moves from staging to the
// library.
func (s *Store) UpdatePDFPath(paperHash int64, path string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	_, err := s.db.Exec(`UPDATE papers SET pdf_path = ? WHERE paper_hash = ?`, path, paperHash)
	if err != nil {
		return fmt.Errorf("%w: updating pdf path: %v", ErrStorage, err)
	}
	return nil
}

// RollbackResult lists what a rollback removed. Paths are returned to
// the caller for deletion; the store never touches the filesystem.
type RollbackResult struct {
	// Paths are pdf_path values of rows that were deleted outright.
	Paths []string
	// IDs are the deleted row ids.
	IDs []int64
	// Source is the adapter name that was rolled back.
	Source string
}

// RollbackSource undoes a source's work from startTime onward. Rows
// solely owned by the source are deleted and their file paths returned;
// multi-source rows keep the row but lose the source and its parallel
// URL entry.
func (s *Store) RollbackSource(source, startTime string) (RollbackResult, error) {
	result := RollbackResult{Source: source}
	if s.readOnly {
		return result, ErrReadOnly
	}

	rows, err := s.queryPapers(`SELECT `+paperColumns+` FROM papers
		WHERE (source = ? OR source LIKE ? OR source LIKE ? OR source LIKE ?)
		AND downloaded_date >= ?`,
		source, source+", %", "%, "+source, "%, "+source+", %", startTime)
	if err != nil {
		return result, err
	}

	for i := range rows {
		row := &rows[i]
		sources := splitList(row.Source, ",")
		idx := indexFold(sources, source)
		if idx < 0 {
			continue
		}

		if len(sources) == 1 {
			if _, err := s.db.Exec(`DELETE FROM papers WHERE id = ?`, row.ID); err != nil {
				return result, fmt.Errorf("%w: rollback delete: %v", ErrStorage, err)
			}
			if row.PDFPath != "" && row.PDFPath != types.RejectedPDFPath {
				result.Paths = append(result.Paths, row.PDFPath)
			}
			result.IDs = append(result.IDs, row.ID)
			continue
		}

		// Shared row: strip this source and its URL, keep the rest.
		urls := splitList(row.SourceURL, ";")
		sources = append(sources[:idx], sources[idx+1:]...)
		if idx < len(urls) {
			urls = append(urls[:idx], urls[idx+1:]...)
		}
		_, err := s.db.Exec(`UPDATE papers SET source = ?, source_url = ? WHERE id = ?`,
			strings.Join(sources, ", "), strings.Join(urls, " ; "), row.ID)
		if err != nil {
			return result, fmt.Errorf("%w: rollback update: %v", ErrStorage, err)
		}
	}

	s.log.Info("rolled back source", "source", source, "deleted", len(result.IDs))
	return result, nil
}

const paperColumns = `id, COALESCE(paper_hash, 0), title_hash, title, abstract, authors,
	published_date, pdf_path, source_url, downloaded_date, source,
	synced_to_cloud, COALESCE(language, ''), COALESCE(category, ''), COALESCE(run_id, '')`

func (s *Store) queryPapers(query string, args ...any) ([]types.Paper, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying papers: %w", err)
	}
	defer rows.Close()

	var papers []types.Paper
	for rows.Next() {
		var p types.Paper
		if err := rows.Scan(&p.ID, &p.PaperHash, &p.TitleHash, &p.Title, &p.Abstract,
			&p.Authors, &p.PublishedDate, &p.PDFPath, &p.SourceURL, &p.DownloadedDate,
			&p.Source, &p.SyncedToCloud, &p.Language, &p.Category, &p.RunID); err != nil {
			return nil, fmt.Errorf("scanning paper row: %w", err)
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

// primaryURL returns the first entry of a semicolon-separated URL list.
func primaryURL(sourceURL string) string {
	first, _, _ := strings.Cut(sourceURL, ";")
	return strings.TrimSpace(first)
}

// contentSimilar compares the first 500 normalized characters of two
// abstracts.
func contentSimilar(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	na := hashutil.NormalizeText(a)
	nb := hashutil.NormalizeText(b)
	if len(na) > abstractPrefixLen {
		na = na[:abstractPrefixLen]
	}
	if len(nb) > abstractPrefixLen {
		nb = nb[:abstractPrefixLen]
	}
	return na == nb
}

// nullableHash stores 0 hashes as NULL so the UNIQUE index ignores
// papers without URLs.
func nullableHash(h int64) any {
	if h == 0 {
		return nil
	}
	return h
}

func splitList(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	return indexFold(list, s) >= 0
}

func indexFold(list []string, s string) int {
	for i, v := range list {
		if strings.EqualFold(v, s) {
			return i
		}
	}
	return -1
}
