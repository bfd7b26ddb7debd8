// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package backup archives the library and the production metadata
// store into a timestamped zip before a run mutates either.
package backup

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ArchiveName returns the backup file name for a timestamp, e.g.
// Research_Backup_031526.07.zip.
func ArchiveName(now time.Time) string {
	return fmt.Sprintf("Research_Backup_%s.zip", now.Format("010206.05"))
}

// Create writes a zip under destDir containing the library tree mirrored
// beneath Library/ and the metadata database at the archive root. The
// archive path is returned. A missing database is skipped; a missing
// library yields an archive with only the database.
func Create(libraryDir, dbPath, destDir string, now time.Time) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	archivePath := filepath.Join(destDir, ArchiveName(now))
	f, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("creating backup archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	if err := addLibrary(zw, libraryDir); err != nil {
		zw.Close()
		os.Remove(archivePath)
		return "", err
	}

	if fileExists(dbPath) {
		if err := addFile(zw, dbPath, "metadata.db"); err != nil {
			zw.Close()
			os.Remove(archivePath)
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		os.Remove(archivePath)
		return "", fmt.Errorf("finalizing backup archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing backup archive: %w", err)
	}

	slog.Info("backup complete", "archive", archivePath)
	return archivePath, nil
}

func addLibrary(zw *zip.Writer, libraryDir string) error {
	if libraryDir == "" || !fileExists(libraryDir) {
		return nil
	}
	return filepath.Walk(libraryDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(libraryDir, path)
		if err != nil {
			return err
		}
		// Zip paths always use forward slashes.
		name := "Library/" + filepath.ToSlash(rel)
		return addFile(zw, path, name)
	})
}

func addFile(zw *zip.Writer, path, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading %s for backup: %w", path, err)
	}
	defer in.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("adding %s to backup: %w", name, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("writing %s to backup: %w", name, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
