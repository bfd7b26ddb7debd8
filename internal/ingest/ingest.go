// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest imports user-supplied PDFs from a drop folder into the
// staging tree and the working store, alongside the adapter pipeline.
package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/paper-ingest/internal/classify"
	"github.com/pdiddy/paper-ingest/internal/naming"
	"github.com/pdiddy/paper-ingest/internal/store"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

// sourceName labels drop-folder papers in the store.
const sourceName = "user_ingest"

// LanguageDetector guesses the content language of a text snippet.
// Detection libraries plug in here; the default assumes English.
type LanguageDetector interface {
	Detect(text string) string
}

type englishDetector struct{}

func (englishDetector) Detect(string) string { return "en" }

// Stats summarizes an ingest pass.
type Stats struct {
	Processed  int
	NonEnglish int
	Errors     int
}

// Ingestor processes the drop folder.
type Ingestor struct {
	// IngestDir is the drop folder; processed files move into its
	// processed/ subdirectory.
	IngestDir string

	// StagingDir receives the staged copies under category directories.
	StagingDir string

	Store      *store.Store
	Classifier *classify.Classifier

	// RunID stamps the rows this pass creates.
	RunID string

	Detector LanguageDetector

	Log *slog.Logger
}

func (in *Ingestor) log() *slog.Logger {
	if in.Log != nil {
		return in.Log
	}
	return slog.Default()
}

func (in *Ingestor) detector() LanguageDetector {
	if in.Detector != nil {
		return in.Detector
	}
	return englishDetector{}
}

// Scan lists the PDFs waiting in the drop folder, skipping hidden and
// editor temp files. A missing folder yields an empty list.
func (in *Ingestor) Scan() ([]string, error) {
	entries, err := os.ReadDir(in.IngestDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning ingest folder: %w", err)
	}

	var pdfs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}
		pdfs = append(pdfs, filepath.Join(in.IngestDir, name))
	}
	sort.Strings(pdfs)
	return pdfs, nil
}

// Run processes every waiting PDF. In TEST mode the folder is only
// counted. A file that fails is counted and left in place; the pass
// continues.
func (in *Ingestor) Run(mode types.Mode) (Stats, error) {
	var stats Stats

	pdfs, err := in.Scan()
	if err != nil {
		return stats, err
	}
	if len(pdfs) == 0 {
		return stats, nil
	}
	in.log().Info("found documents in ingest folder", "count", len(pdfs))

	if mode == types.ModeTest {
		stats.Processed = len(pdfs)
		return stats, nil
	}

	for _, path := range pdfs {
		lang, err := in.processOne(path)
		if err != nil {
			in.log().Error("failed to ingest document", "path", path, "error", err)
			stats.Errors++
			continue
		}
		stats.Processed++
		if lang != "en" {
			stats.NonEnglish++
		}
		in.archive(path)
	}

	in.log().Info("ingest complete",
		"processed", stats.Processed, "non_english", stats.NonEnglish, "errors", stats.Errors)
	return stats, nil
}

// processOne stages one PDF and records its working-store row. Returns
// the detected language.
func (in *Ingestor) processOne(path string) (string, error) {
	title := titleFromFilename(path)
	category := in.Classifier.Classify(title, "", "")
	lang := in.detector().Detect(title)

	destDir := filepath.Join(in.StagingDir, naming.SanitizeFilename(category, ""))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return lang, fmt.Errorf("creating staging category: %w", err)
	}

	dest := filepath.Join(destDir, naming.SanitizeFilename(title, ".pdf"))
	if fileExists(dest) {
		// Same name already staged without a store row; keep both copies
		// apart so neither is silently lost.
		in.log().Warn("file already staged without a store row", "path", dest)
		ext := filepath.Ext(dest)
		dest = strings.TrimSuffix(dest, ext) +
			"_" + time.Now().Format("20060102_150405") + ext
	}

	if err := copyFile(path, dest); err != nil {
		return lang, fmt.Errorf("copying to staging: %w", err)
	}

	today := time.Now().Format("2006-01-02")
	_, err := in.Store.AddPaper(&types.Paper{
		Title:          title,
		Authors:        "Unknown",
		PublishedDate:  today,
		PDFPath:        dest,
		DownloadedDate: today,
		Source:         sourceName,
		Language:       lang,
		Category:       category,
		RunID:          in.RunID,
	})
	if err != nil {
		os.Remove(dest)
		return lang, err
	}

	in.log().Info("ingested document", "title", title, "category", category)
	return lang, nil
}

// archive moves a processed source file into processed/. Failure to
// move is only logged; the document itself is already staged.
func (in *Ingestor) archive(path string) {
	processedDir := filepath.Join(in.IngestDir, "processed")
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		in.log().Warn("could not create processed folder", "error", err)
		return
	}
	dest := filepath.Join(processedDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		in.log().Warn("could not move processed file", "path", path, "error", err)
	}
}

// titleFromFilename derives a title from the PDF's base name.
func titleFromFilename(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	return strings.TrimSpace(name)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
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
