// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store is the versioned metadata store: a single-file SQLite
// database holding one row per paper, deduplicated by URL hash, with an
// append-only schema_version log and an ordered migration registry.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paper-ingest/internal/hashutil"
)

// CurrentVersion is the schema version this code writes. Databases
// recorded beyond it open read-only.
const CurrentVersion = 5

// ErrStorage reports a write failure against the store.
var ErrStorage = errors.New("storage failure")

// ErrReadOnly reports a write against a store opened read-only because
// its recorded schema version exceeds CurrentVersion.
var ErrReadOnly = fmt.Errorf("%w: store is read-only", ErrStorage)

// Store wraps the SQLite database.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool
	log      *slog.Logger
}

// Open opens or creates the store at path, applying pending migrations.
// A fresh database is initialized directly at CurrentVersion; a database
// recorded beyond CurrentVersion is opened read-only with a warning.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path, log: slog.Default().With("db", filepath.Base(path))}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// ReadOnly reports whether writes are refused.
func (s *Store) ReadOnly() bool { return s.readOnly }

func (s *Store) init() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			paper_hash INTEGER,
			title_hash INTEGER,
			title TEXT,
			abstract TEXT,
			authors TEXT,
			published_date TEXT,
			pdf_path TEXT,
			source_url TEXT,
			downloaded_date TEXT,
			source TEXT,
			synced_to_cloud BOOLEAN DEFAULT 0,
			language TEXT,
			category TEXT,
			run_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// Fresh databases jump straight to CurrentVersion without replaying
	// historical migrations.
	var recorded int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&recorded); err != nil {
		return fmt.Errorf("checking schema version log: %w", err)
	}
	if recorded == 0 {
		if err := s.setVersion(CurrentVersion); err != nil {
			return err
		}
		s.log.Info("initialized fresh database", "version", CurrentVersion)
		return s.ensureIndexes()
	}

	version, err := s.schemaVersion()
	if err != nil {
		return err
	}
	if version > CurrentVersion {
		s.log.Warn("database schema is newer than this build; opening read-only",
			"recorded", version, "supported", CurrentVersion)
		s.readOnly = true
		return nil
	}

	if err := s.migrate(version); err != nil {
		return err
	}
	return s.ensureIndexes()
}

// ensureIndexes creates the dedup indexes. Called only once the hash
// columns exist, so never before v4 has run on a legacy database.
func (s *Store) ensureIndexes() error {
	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_paper_hash ON papers(paper_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_title_hash ON papers(title_hash)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}

func (s *Store) schemaVersion() (int, error) {
	var v sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return int(v.Int64), nil
}

func (s *Store) setVersion(version int) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		version,
	)
	if err != nil {
		return fmt.Errorf("recording schema version %d: %w", version, err)
	}
	return nil
}

// migrations is the ordered registry. Each function must be idempotent
// and tolerate partial prior application.
func (s *Store) migrations() []struct {
	version int
	apply   func() error
} {
	return []struct {
		version int
		apply   func() error
	}{
		{1, s.migrateV1SourceColumn},
		{2, s.migrateV2VersionTable},
		{3, s.migrateV3RunColumns},
		{4, s.migrateV4NumericHashes},
		{5, s.migrateV5DropPaperID},
	}
}

func (s *Store) migrate(current int) error {
	for _, m := range s.migrations() {
		if m.version <= current {
			continue
		}
		s.log.Info("applying migration", "from", current, "to", m.version)
		if err := m.apply(); err != nil {
			return fmt.Errorf("migration v%d: %w", m.version, err)
		}
		if err := s.setVersion(m.version); err != nil {
			return err
		}
		current = m.version
	}
	return nil
}

func (s *Store) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// v1: add the source column for multi-source tracking.
func (s *Store) migrateV1SourceColumn() error {
	has, err := s.hasColumn("papers", "source")
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.db.Exec(`ALTER TABLE papers ADD COLUMN source TEXT DEFAULT 'arxiv'`)
	return err
}

// v2: the schema_version log itself (created unconditionally in init,
// so this is a no-op on any database opened by this build).
func (s *Store) migrateV2VersionTable() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	return err
}

// v3: run-scoped metadata columns.
func (s *Store) migrateV3RunColumns() error {
	for _, col := range []string{"language", "category", "run_id"} {
		has, err := s.hasColumn("papers", col)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := s.db.Exec(fmt.Sprintf(`ALTER TABLE papers ADD COLUMN %s TEXT`, col)); err != nil {
			return err
		}
	}
	return nil
}

// v4: rebuild the table around 64-bit numeric hashes. Pre-v4 databases
// keyed rows on a source-local string id; this computes paper_hash and
// title_hash for every row and indexes them.
func (s *Store) migrateV4NumericHashes() error {
	has, err := s.hasColumn("papers", "paper_hash")
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE papers_new (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paper_id TEXT,
		paper_hash INTEGER,
		title_hash INTEGER,
		title TEXT,
		abstract TEXT,
		authors TEXT,
		published_date TEXT,
		pdf_path TEXT,
		source_url TEXT,
		downloaded_date TEXT,
		source TEXT,
		synced_to_cloud BOOLEAN DEFAULT 0,
		language TEXT,
		category TEXT,
		run_id TEXT
	)`); err != nil {
		return err
	}

	rows, err := tx.Query(`SELECT CAST(id AS TEXT), COALESCE(source, 'arxiv'),
		COALESCE(title, ''), COALESCE(abstract, ''), COALESCE(authors, ''),
		COALESCE(published_date, ''), COALESCE(pdf_path, ''), COALESCE(source_url, ''),
		COALESCE(downloaded_date, ''), COALESCE(synced_to_cloud, 0),
		COALESCE(language, ''), COALESCE(category, ''), COALESCE(run_id, '')
		FROM papers`)
	if err != nil {
		return err
	}

	type legacyRow struct {
		paperID, source, title, abstract, authors      string
		published, pdfPath, sourceURL, downloaded      string
		language, category, runID                      string
		synced                                         bool
	}
	var legacy []legacyRow
	for rows.Next() {
		var r legacyRow
		if err := rows.Scan(&r.paperID, &r.source, &r.title, &r.abstract, &r.authors,
			&r.published, &r.pdfPath, &r.sourceURL, &r.downloaded, &r.synced,
			&r.language, &r.category, &r.runID); err != nil {
			rows.Close()
			return err
		}
		legacy = append(legacy, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range legacy {
		paperHash := hashutil.StableHash(r.source + ":" + r.paperID)
		titleHash := hashutil.TitleHash(r.title)
		if _, err := tx.Exec(`INSERT INTO papers_new (
			paper_id, paper_hash, title_hash, title, abstract, authors,
			published_date, pdf_path, source_url, downloaded_date, source,
			synced_to_cloud, language, category, run_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.paperID, paperHash, titleHash, r.title, r.abstract, r.authors,
			r.published, r.pdfPath, r.sourceURL, r.downloaded, r.source,
			r.synced, r.language, r.category, r.runID); err != nil {
			return err
		}
	}

	steps := []string{
		`DROP TABLE papers`,
		`ALTER TABLE papers_new RENAME TO papers`,
		`CREATE UNIQUE INDEX idx_paper_hash ON papers(paper_hash)`,
		`CREATE INDEX idx_title_hash ON papers(title_hash)`,
	}
	for _, stmt := range steps {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// v5: drop the legacy paper_id column for the purely URL-centric schema.
func (s *Store) migrateV5DropPaperID() error {
	has, err := s.hasColumn("papers", "paper_id")
	if err != nil {
		return err
	}
	if !has {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	steps := []string{
		`CREATE TABLE papers_v5 (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			paper_hash INTEGER,
			title_hash INTEGER,
			title TEXT,
			abstract TEXT,
			authors TEXT,
			published_date TEXT,
			pdf_path TEXT,
			source_url TEXT,
			downloaded_date TEXT,
			source TEXT,
			synced_to_cloud BOOLEAN DEFAULT 0,
			language TEXT,
			category TEXT,
			run_id TEXT
		)`,
		`INSERT INTO papers_v5 (id, paper_hash, title_hash, title, abstract, authors,
			published_date, pdf_path, source_url, downloaded_date, source,
			synced_to_cloud, language, category, run_id)
		 SELECT id, paper_hash, title_hash, title, abstract, authors,
			published_date, pdf_path, source_url, downloaded_date, source,
			synced_to_cloud, language, category, run_id
		 FROM papers`,
		`DROP TABLE papers`,
		`ALTER TABLE papers_v5 RENAME TO papers`,
		`CREATE UNIQUE INDEX idx_paper_hash ON papers(paper_hash)`,
		`CREATE INDEX idx_title_hash ON papers(title_hash)`,
	}
	for _, stmt := range steps {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
