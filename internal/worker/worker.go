// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package worker runs one source adapter through the full
// search/filter/download/store sequence, reporting progress on the
// event bus. A worker is spawned and monitored by the supervisor.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/pdiddy/paper-ingest/internal/bus"
	"github.com/pdiddy/paper-ingest/internal/classify"
	"github.com/pdiddy/paper-ingest/internal/filter"
	"github.com/pdiddy/paper-ingest/internal/hashutil"
	"github.com/pdiddy/paper-ingest/internal/naming"
	"github.com/pdiddy/paper-ingest/internal/source"
	"github.com/pdiddy/paper-ingest/internal/store"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

// ErrBackfillEmpty reports a BACKFILL worker that produced neither new
// papers nor duplicates. The supervisor treats it as fatal.
var ErrBackfillEmpty = errors.New("zero documents returned during backfill run")

// Worker drives one adapter for one run.
type Worker struct {
	// Adapter is the source this worker crawls.
	Adapter source.Adapter

	// DisplayName labels this worker's bus events.
	DisplayName string

	// Query is the effective boolean prompt for this adapter. The
	// controller selects the strict or relaxed profile per adapter.
	Query string

	// RunID identifies the run; it doubles as the downloaded-date stamp.
	RunID string

	// Mode selects TEST, DAILY, or BACKFILL behavior.
	Mode types.Mode

	// Limits are the per-mode search and download caps.
	Limits types.ModeLimits

	// StartDate restricts the search when the mode respects date ranges.
	StartDate time.Time

	// Store is the working-copy metadata store.
	Store *store.Store

	// Filter applies the boolean relevance expression.
	Filter *filter.Filter

	// Bus receives progress and error events.
	Bus *bus.Bus

	// Classifier picks the library category for duplicate checks.
	Classifier *classify.Classifier

	// LibraryRoot is the canonical library path, consulted for
	// filename-level dedup when CheckDuplicates is set.
	LibraryRoot     string
	CheckDuplicates bool

	// Pacing is the delay between consecutive downloads.
	Pacing time.Duration
}

// Run executes the worker to completion. Panics are converted into an
// ERROR event so the supervisor can roll back and retry; the returned
// error mirrors what was reported.
func (w *Worker) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", source.ErrAdapter, r)
			w.reportError(err, string(debug.Stack()))
		}
	}()

	w.updateRow(ctx, bus.Event{Status: "Running...", RunID: w.RunID, Mode: w.Mode})

	startDate := time.Time{}
	if w.Limits.RespectDateRange {
		startDate = w.StartDate
	}

	candidates, err := w.Adapter.Search(ctx, w.Query, startDate, w.Limits.PerQueryLimit)
	if err != nil {
		if ctx.Err() != nil {
			w.updateRow(ctx, bus.Event{Status: "Cancelled"})
			return nil
		}
		w.reportError(err, "")
		return err
	}
	if ctx.Err() != nil {
		w.updateRow(ctx, bus.Event{Status: "Cancelled"})
		return nil
	}

	w.progress(bus.Event{Status: "Filtering", Found: len(candidates)})

	var kept []types.Candidate
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		if w.Filter.IsRelevant(c.Title, c.Abstract) {
			kept = append(kept, c)
		}
	}

	if w.Mode == types.ModeTest {
		w.updateRow(ctx, bus.Event{
			Status:  "Complete",
			Count:   len(kept),
			Details: fmt.Sprintf("Test mode: %d of %d candidates relevant", len(kept), len(candidates)),
		})
		return nil
	}

	downloaded, duplicates, err := w.ingest(ctx, kept)
	if err != nil {
		w.reportError(err, "")
		return err
	}

	if w.Mode == types.ModeBackfill && downloaded == 0 && duplicates == 0 {
		w.reportError(ErrBackfillEmpty, "")
		return ErrBackfillEmpty
	}

	if ctx.Err() != nil {
		w.updateRow(ctx, bus.Event{Status: "Cancelled", Count: downloaded})
		return nil
	}

	status := "Complete"
	if downloaded == 0 {
		status = "No Results"
	}
	w.updateRow(ctx, bus.Event{
		Status:  status,
		Count:   downloaded,
		Details: "Finished successfully",
	})
	return nil
}

// ingest downloads and stores the kept candidates up to the per-agent
// limit, skipping duplicates.
func (w *Worker) ingest(ctx context.Context, kept []types.Candidate) (downloaded, duplicates int, err error) {
	limit := w.Limits.Limit()
	total := len(kept)
	if total > limit {
		total = limit
	}

	for i := range kept {
		if ctx.Err() != nil {
			break
		}
		if downloaded >= limit {
			break
		}
		c := &kept[i]

		if w.Pacing > 0 && i > 0 {
			select {
			case <-ctx.Done():
				return downloaded, duplicates, nil
			case <-time.After(w.Pacing):
			}
		}

		dup, dupErr := w.isDuplicate(c)
		if dupErr != nil {
			return downloaded, duplicates, dupErr
		}
		if dup {
			duplicates++
			w.reportItemProgress(i+1, total, downloaded, duplicates)
			continue
		}

		w.updateRow(ctx, bus.Event{
			Status:  "Downloading",
			Count:   downloaded,
			Details: fmt.Sprintf("(%d/%d) %s", min(i+1, total), total, truncate(c.Title, 30)),
		})

		path, dlErr := w.Adapter.Download(ctx, c)
		if dlErr != nil {
			if ctx.Err() != nil {
				return downloaded, duplicates, nil
			}
			// One bad candidate does not fail the worker.
			continue
		}

		p := candidatePaper(c, path, w.RunID)
		if _, addErr := w.Store.AddPaper(p); addErr != nil {
			return downloaded, duplicates, fmt.Errorf("%w: %v", source.ErrAdapter, addErr)
		}
		downloaded++
		w.reportItemProgress(i+1, total, downloaded, duplicates)
	}
	return downloaded, duplicates, nil
}

// isDuplicate applies the two dedup checks that precede a download: the
// working store's URL hash, and optionally a same-named file already in
// the library.
func (w *Worker) isDuplicate(c *types.Candidate) (bool, error) {
	if h := hashutil.URLHash(c.SourceURL); h != 0 {
		exists, err := w.Store.ExistsByHash(h)
		if err != nil {
			return false, fmt.Errorf("%w: %v", source.ErrAdapter, err)
		}
		if exists {
			return true, nil
		}
	}

	if w.CheckDuplicates && w.LibraryRoot != "" {
		category := w.Classifier.Classify(c.Title, c.Abstract, c.Authors)
		libPath := filepath.Join(w.LibraryRoot,
			naming.SanitizeFilename(category, ""),
			naming.SanitizeFilename(c.Title, ".pdf"))
		if _, err := os.Stat(libPath); err == nil {
			return true, nil
		}
	}
	return false, nil
}

func (w *Worker) reportItemProgress(i, total, downloaded, duplicates int) {
	// Duplicates skipped past the download limit keep the loop index
	// moving, so the numerator can otherwise outrun the total.
	if i > total {
		i = total
	}
	details := fmt.Sprintf("Downloading (%d/%d)", i, total)
	if w.Mode == types.ModeBackfill {
		details = fmt.Sprintf("New: %d, Duplicates: %d", downloaded, duplicates)
	}
	percent := 0
	if total > 0 {
		percent = i * 100 / total
	}
	w.progress(bus.Event{
		Status:     "Downloading",
		Found:      total,
		Downloaded: downloaded,
		Progress:   percent,
		Details:    details,
	})
}

// updateRow publishes a row update. Terminal statuses must not be
// dropped, so this blocks until accepted; a background context is used
// so a cancelled run can still report its final state.
func (w *Worker) updateRow(ctx context.Context, e bus.Event) {
	e.Type = bus.UpdateRow
	e.Source = w.DisplayName
	if e.RunID == "" {
		e.RunID = w.RunID
	}
	w.Bus.Publish(context.Background(), e)
}

// progress publishes a coalescable progress update; it may be dropped
// under backpressure.
func (w *Worker) progress(e bus.Event) {
	e.Type = bus.ProgressUpdate
	e.Source = w.DisplayName
	w.Bus.TryPublish(e)
}

func (w *Worker) reportError(err error, stack string) {
	w.Bus.Publish(context.Background(), bus.Event{
		Type:   bus.Error,
		Source: w.DisplayName,
		RunID:  w.RunID,
		Err:    err.Error(),
		Stack:  stack,
	})
}

// candidatePaper converts a downloaded candidate into its store row.
func candidatePaper(c *types.Candidate, path, runID string) *types.Paper {
	return &types.Paper{
		Title:          c.Title,
		Abstract:       c.Abstract,
		Authors:        c.Authors,
		PublishedDate:  c.PublishedDate,
		PDFPath:        path,
		SourceURL:      c.SourceURL,
		DownloadedDate: runID,
		Source:         c.Source,
		Language:       c.Language,
		RunID:          runID,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
