// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package commit promotes a finished run: staged PDFs move into the
// canonical library and their working-copy rows are merged into the
// production store. The promotion is the second stage of the two-stage
// commit; the first stage is the working copy every worker writes to.
package commit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/paper-ingest/internal/staging"
	"github.com/pdiddy/paper-ingest/internal/store"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

// ErrCancelled reports that the user cancelled the commit; staging and
// the working copy are left in place.
var ErrCancelled = errors.New("commit cancelled")

// Resolution is the user's answer to a single conflict.
type Resolution int

const (
	// Skip leaves the library file alone.
	Skip Resolution = iota
	// Overwrite replaces the library file with the staged one.
	Overwrite
	// CancelAll aborts the whole commit.
	CancelAll
)

// Conflict describes a staged file whose target already exists in the
// library.
type Conflict struct {
	Filename string
	Category string

	StagingPath string
	LibraryPath string

	StagingSize     int64
	LibrarySize     int64
	StagingModified time.Time
	LibraryModified time.Time
}

// Resolver decides conflicts. Implementations range from an
// interactive prompt to a fixed policy.
type Resolver interface {
	Resolve(Conflict) Resolution
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(Conflict) Resolution

// Resolve calls f.
func (f ResolverFunc) Resolve(c Conflict) Resolution { return f(c) }

// Result summarizes a finished commit.
type Result struct {
	Moved    int
	Skipped  int
	Conflict int
}

// Manager runs the promotion.
type Manager struct {
	StagingDir string
	LibraryDir string

	// Working is the run's working-copy store; its rows describe the
	// staged files.
	Working *store.Store

	// Prod is the production store that receives the promoted rows.
	Prod *store.Store

	Log *slog.Logger
}

func (m *Manager) log() *slog.Logger {
	if m.Log != nil {
		return m.Log
	}
	return slog.Default()
}

// CreateWorkingCopy snapshots the production database file to
// workingPath. A missing production database yields a fresh, empty
// working copy.
func CreateWorkingCopy(prodPath, workingPath string) error {
	if err := os.MkdirAll(filepath.Dir(workingPath), 0o755); err != nil {
		return fmt.Errorf("creating working copy directory: %w", err)
	}
	os.Remove(workingPath)

	if _, err := os.Stat(prodPath); os.IsNotExist(err) {
		// First run: initialize an empty store at the working path.
		st, err := store.Open(workingPath)
		if err != nil {
			return fmt.Errorf("initializing working copy: %w", err)
		}
		return st.Close()
	}

	if err := copyFile(prodPath, workingPath); err != nil {
		return fmt.Errorf("snapshotting production store: %w", err)
	}
	return nil
}

// ScanConflicts walks the staging tree and reports every PDF whose
// target path already exists in the library.
func (m *Manager) ScanConflicts() ([]Conflict, error) {
	var conflicts []Conflict
	err := m.walkStagedPDFs(func(stagingPath, category, filename string) error {
		libPath := filepath.Join(m.LibraryDir, category, filename)
		libInfo, err := os.Stat(libPath)
		if err != nil {
			return nil
		}
		stagingInfo, err := os.Stat(stagingPath)
		if err != nil {
			return nil
		}
		conflicts = append(conflicts, Conflict{
			Filename:        filename,
			Category:        category,
			StagingPath:     stagingPath,
			LibraryPath:     libPath,
			StagingSize:     stagingInfo.Size(),
			LibrarySize:     libInfo.Size(),
			StagingModified: stagingInfo.ModTime(),
			LibraryModified: libInfo.ModTime(),
		})
		return nil
	})
	return conflicts, err
}

// Run promotes the staged files. Conflicts are resolved through the
// resolver; a CancelAll answer aborts with ErrCancelled before any
// non-conflicting file has moved. On success staging is cleared.
func (m *Manager) Run(resolver Resolver) (*Result, error) {
	conflicts, err := m.ScanConflicts()
	if err != nil {
		return nil, err
	}

	rows, err := m.workingRowsByFilename()
	if err != nil {
		return nil, err
	}

	result := &Result{Conflict: len(conflicts)}

	// Resolve every conflict before moving anything, so cancel-all
	// leaves the library untouched.
	overwrite := map[string]bool{}
	for _, c := range conflicts {
		switch resolver.Resolve(c) {
		case CancelAll:
			m.log().Info("commit cancelled by user")
			return nil, ErrCancelled
		case Overwrite:
			overwrite[c.StagingPath] = true
		default:
			result.Skipped++
		}
	}

	err = m.walkStagedPDFs(func(stagingPath, category, filename string) error {
		libPath := filepath.Join(m.LibraryDir, category, filename)

		if fileExists(libPath) && !overwrite[stagingPath] {
			return nil
		}

		if err := os.MkdirAll(filepath.Dir(libPath), 0o755); err != nil {
			return fmt.Errorf("creating library directory: %w", err)
		}
		if err := moveFile(stagingPath, libPath); err != nil {
			return fmt.Errorf("moving %s: %w", filename, err)
		}
		result.Moved++
		m.log().Info("promoted to library", "file", filename, "category", category)

		if row, ok := rows[filename]; ok {
			if err := m.syncToProd(row, libPath); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	if err := staging.Clear(m.StagingDir); err != nil {
		return result, fmt.Errorf("clearing staging: %w", err)
	}
	return result, nil
}

// syncToProd merges one working-copy row into the production store with
// its library path and the synced flag set.
func (m *Manager) syncToProd(row types.Paper, libPath string) error {
	promoted := row
	promoted.ID = 0
	promoted.PDFPath = libPath

	res, err := m.Prod.AddPaper(&promoted)
	if err != nil {
		return fmt.Errorf("syncing %s to production store: %w", row.Title, err)
	}
	if row.PaperHash != 0 {
		if err := m.Prod.UpdatePDFPath(row.PaperHash, libPath); err != nil {
			return err
		}
	}
	return m.Prod.MarkSynced([]int64{res.ID})
}

// workingRowsByFilename indexes promotable working-copy rows by their
// PDF's base name. Rejected rows stay behind for dedup only.
func (m *Manager) workingRowsByFilename() (map[string]types.Paper, error) {
	papers, err := m.Working.AllPapers()
	if err != nil {
		return nil, err
	}
	rows := make(map[string]types.Paper, len(papers))
	for _, p := range papers {
		if p.PDFPath == "" || p.PDFPath == types.RejectedPDFPath {
			continue
		}
		rows[filepath.Base(p.PDFPath)] = p
	}
	return rows, nil
}

// walkStagedPDFs visits every .pdf under staging with its category: the
// immediate parent directory. Staging may nest per-adapter directories
// above the category level; only the innermost directory names the
// library category.
func (m *Manager) walkStagedPDFs(fn func(path, category, filename string) error) error {
	if _, err := os.Stat(m.StagingDir); os.IsNotExist(err) {
		return nil
	}
	return filepath.Walk(m.StagingDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}
		rel, err := filepath.Rel(m.StagingDir, path)
		if err != nil {
			return err
		}
		category := filepath.Base(filepath.Dir(rel))
		if category == "." || category == string(filepath.Separator) {
			category = "Uncategorized"
		}
		return fn(path, category, filepath.Base(path))
	})
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// moveFile renames when possible and falls back to copy+remove across
// filesystems.
func moveFile(src, dst string) error {
	os.Remove(dst)
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
