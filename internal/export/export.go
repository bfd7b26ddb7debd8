// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export writes store contents to a CSV or YAML research log.
// Exports append: rows already present in the target file are skipped,
// keyed by store id, so a desynced database cannot double-write.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-ingest/pkg/types"
)

// Format selects the output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
)

// csvHeader is the column order of the CSV log.
var csvHeader = []string{
	"id", "title", "published_date", "authors", "abstract",
	"source_url", "pdf_path", "downloaded_date", "source",
}

// Exporter appends papers to a log file under Dir.
type Exporter struct {
	Dir    string
	Format Format
}

// Path returns the target file for the configured format.
func (e *Exporter) Path() string {
	name := "research_log." + string(e.format())
	return filepath.Join(e.Dir, name)
}

func (e *Exporter) format() Format {
	if e.Format == FormatYAML {
		return FormatYAML
	}
	return FormatCSV
}

// Export appends the papers not yet present in the log and returns the
// ids now covered by the file, including those that were already there.
func (e *Exporter) Export(papers []types.Paper) ([]int64, error) {
	if len(papers) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	switch e.format() {
	case FormatYAML:
		return e.exportYAML(papers)
	default:
		return e.exportCSV(papers)
	}
}

func (e *Exporter) exportCSV(papers []types.Paper) ([]int64, error) {
	path := e.Path()
	existing, initialized, err := readCSVIDs(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !initialized {
		if err := w.Write(csvHeader); err != nil {
			return nil, fmt.Errorf("writing export header: %w", err)
		}
	}

	var covered []int64
	for i := range papers {
		p := &papers[i]
		covered = append(covered, p.ID)
		if existing[p.ID] {
			continue
		}
		record := []string{
			strconv.FormatInt(p.ID, 10), p.Title, p.PublishedDate, p.Authors,
			p.Abstract, p.SourceURL, p.PDFPath, p.DownloadedDate, p.Source,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("writing export row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing export file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing export file: %w", err)
	}
	return covered, nil
}

func (e *Exporter) exportYAML(papers []types.Paper) ([]int64, error) {
	path := e.Path()

	var log []types.Paper
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &log); err != nil {
			return nil, fmt.Errorf("parsing existing export file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading export file: %w", err)
	}

	existing := make(map[int64]bool, len(log))
	for _, p := range log {
		existing[p.ID] = true
	}

	var covered []int64
	for _, p := range papers {
		covered = append(covered, p.ID)
		if existing[p.ID] {
			continue
		}
		log = append(log, p)
	}

	data, err := yaml.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("encoding export file: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing export file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("replacing export file: %w", err)
	}
	return covered, nil
}

// readCSVIDs collects the id column of an existing CSV log.
// initialized reports whether the file already carries a header; a
// missing file yields an empty, uninitialized set.
func readCSVIDs(path string) (ids map[int64]bool, initialized bool, err error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading export file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, false, fmt.Errorf("parsing existing export file: %w", err)
	}

	ids = map[int64]bool{}
	for i, rec := range records {
		if i == 0 || len(rec) == 0 {
			continue
		}
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			continue
		}
		ids[id] = true
	}
	return ids, len(records) > 0, nil
}
