package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-ingest/internal/backup"
	"github.com/pdiddy/paper-ingest/internal/bus"
	"github.com/pdiddy/paper-ingest/internal/classify"
	"github.com/pdiddy/paper-ingest/internal/commit"
	"github.com/pdiddy/paper-ingest/internal/filter"
	"github.com/pdiddy/paper-ingest/internal/ingest"
	"github.com/pdiddy/paper-ingest/internal/secrets"
	"github.com/pdiddy/paper-ingest/internal/source"
	"github.com/pdiddy/paper-ingest/internal/staging"
	"github.com/pdiddy/paper-ingest/internal/store"
	"github.com/pdiddy/paper-ingest/internal/supervisor"
	"github.com/pdiddy/paper-ingest/internal/worker"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

// Default boolean prompts. Preprint-server adapters get the strict
// profile; blog-like sources match too little of it, so they run the
// relaxed one.
const (
	defaultStrictQuery = `("AI" OR "artificial intelligence" OR "LLM" OR "language model" OR "machine learning") AND ("safety" OR "alignment" OR "interpretability" OR "red teaming" OR "evaluation")`

	defaultRelaxedQuery = `("AI safety" OR "alignment" OR "interpretability" OR "agent")`
)

// adapterSpec binds an adapter to its display name and query profile.
type adapterSpec struct {
	adapter source.Adapter
	display string
	relaxed bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingestion pipeline across all configured sources",
	Long: `Run executes one ingestion pass: it snapshots the production store into
a working copy, prepares the staging tree, spawns one worker per source
adapter under supervision, and optionally commits the results into the
library when the run completes cleanly.

Modes: TEST searches and filters without downloading or writing; DAILY
ingests papers published since the latest stored date; BACKFILL ingests
history and fails when no adapter produces anything new.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("mode", "DAILY", "run mode: TEST, DAILY, or BACKFILL")
	runCmd.Flags().String("query", defaultStrictQuery, "strict boolean relevance query")
	runCmd.Flags().String("relaxed-query", defaultRelaxedQuery, "relaxed query used for blog-like sources")
	runCmd.Flags().String("sources", "arxiv,lesswrong,openreview,aaai,labs", "comma-separated adapter list (add 'acl' with --acl-metadata)")
	runCmd.Flags().String("acl-metadata", "", "directory of ACL Anthology collection XML files")
	runCmd.Flags().Bool("force", false, "override an existing instance lock")
	runCmd.Flags().Bool("skip-backup", false, "skip the pre-run backup archive")
	runCmd.Flags().Bool("skip-commit", false, "leave results in staging instead of committing")
	runCmd.Flags().String("on-conflict", "ask", "commit conflict policy: ask, skip, overwrite, or cancel")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mode, err := parseMode(mustString(cmd, "mode"))
	if err != nil {
		return err
	}

	// Both query profiles must validate before any worker is spawned.
	strictFilter, err := filter.Parse(mustString(cmd, "query"))
	if err != nil {
		return fmt.Errorf("strict query: %w", err)
	}
	relaxedFilter, err := filter.Parse(mustString(cmd, "relaxed-query"))
	if err != nil {
		return fmt.Errorf("relaxed query: %w", err)
	}

	lock, err := staging.Acquire(filepath.Dir(cfg.DBPath), mustBool(cmd, "force"))
	if err != nil {
		return fmt.Errorf("%w; pass --force to override", err)
	}
	defer lock.Release()

	if cfg.CloudStorage.Enabled && cfg.CloudStorage.BackupPath != "" && !mustBool(cmd, "skip-backup") {
		archive, err := backup.Create(cfg.CloudStorage.Path, cfg.DBPath, cfg.CloudStorage.BackupPath, time.Now())
		if err != nil {
			return fmt.Errorf("pre-run backup: %w", err)
		}
		fmt.Fprintln(os.Stderr, "Backup written:", archive)
	}

	workingPath := workingDBPath(cfg)
	if err := commit.CreateWorkingCopy(cfg.DBPath, workingPath); err != nil {
		return err
	}
	working, err := store.Open(workingPath)
	if err != nil {
		return err
	}
	defer working.Close()

	stagingRoot := cfg.StagingRoot()
	if err := staging.Prepare(stagingRoot); err != nil {
		return err
	}

	runID := time.Now().Format("2006-01-02 15:04:05")
	classifier := classify.New(nil)
	client := &http.Client{Timeout: 60 * time.Second}

	specs, err := buildAdapters(cmd, cfg, client, classifier, stagingRoot)
	if err != nil {
		return err
	}

	startDate := dailyStartDate(working, cfg.DateOverlapDays)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.New(256)
	byDisplay := make(map[string]adapterSpec, len(specs))
	for _, s := range specs {
		byDisplay[s.display] = s
	}

	sup := supervisor.New(ctx, supervisor.Config{
		Bus:         b,
		Store:       working,
		Retry:       cfg.RetrySettings,
		LibraryRoot: cfg.CloudStorage.Path,
		StagingRoot: stagingRoot,
		Factory: func(displayName string) *worker.Worker {
			s := byDisplay[displayName]
			f := strictFilter
			query := mustString(cmd, "query")
			if s.relaxed {
				f = relaxedFilter
				query = mustString(cmd, "relaxed-query")
			}
			return &worker.Worker{
				Adapter:         s.adapter,
				DisplayName:     displayName,
				Query:           query,
				RunID:           runID,
				Mode:            mode,
				Limits:          cfg.ModeSettings.ForMode(mode),
				StartDate:       startDate,
				Store:           working,
				Filter:          f,
				Bus:             b,
				Classifier:      classifier,
				LibraryRoot:     cfg.CloudStorage.Path,
				CheckDuplicates: cfg.CloudStorage.CheckDuplicates,
				Pacing:          cfg.RetrySettings.RequestPacingDelay,
			}
		},
	})

	fmt.Printf("Run %s (%s) across %d sources\n", runID, mode, len(specs))
	for _, s := range specs {
		sup.StartWorker(s.adapter.Name(), s.display)
	}

	totalNew, cancelled := consume(ctx, b, sup, len(specs))
	sup.StopAll()

	if cancelled {
		fmt.Println("Run cancelled; staged work preserved for a later commit.")
		return nil
	}

	if cfg.IngestPath != "" && mode != types.ModeTest {
		ing := &ingest.Ingestor{
			IngestDir:  cfg.IngestPath,
			StagingDir: stagingRoot,
			Store:      working,
			Classifier: classifier,
			RunID:      runID,
		}
		stats, err := ing.Run(mode)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Drop-folder ingest failed:", err)
		} else if stats.Processed > 0 {
			fmt.Printf("Drop folder: %d processed, %d errors\n", stats.Processed, stats.Errors)
			totalNew += stats.Processed
		}
	}

	if mode == types.ModeBackfill && totalNew == 0 {
		return fmt.Errorf("%w: no adapter produced new papers", worker.ErrBackfillEmpty)
	}

	if cfg.CloudStorage.Enabled && mode != types.ModeTest && !mustBool(cmd, "skip-commit") {
		resolver, err := newResolver(mustString(cmd, "on-conflict"))
		if err != nil {
			return err
		}
		if err := runCommit(cfg, working, resolver); err != nil {
			if err == commit.ErrCancelled {
				fmt.Println("Commit cancelled; staging and working copy left in place.")
				return nil
			}
			return err
		}
	}

	fmt.Printf("Run %s finished: %d new papers\n", runID, totalNew)
	return nil
}

// consume drains the bus until every worker reaches a terminal state,
// feeding each event to the supervisor and rendering progress. It
// returns the total of newly downloaded papers and whether the run was
// cancelled by the user.
func consume(ctx context.Context, b *bus.Bus, sup *supervisor.Supervisor, workers int) (int, bool) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	terminal := map[string]bus.Event{}
	cancelled := false
	done := ctx.Done()

	for len(terminal) < workers {
		select {
		case <-done:
			cancelled = true
			done = nil
			sup.StopAll()
		case <-ticker.C:
			sup.CheckTimeouts()
			if cancelled && !sup.IsAnyAlive() {
				// Workers are gone; collect whatever terminal rows made it
				// onto the bus and stop waiting.
				drain(b, sup, terminal)
				total := tally(terminal)
				return total, true
			}
		case e := <-b.Events():
			sup.HandleEvent(e)
			render(e)
			if e.Type == bus.UpdateRow && isTerminal(e.Status) {
				terminal[e.Source] = e
			}
		}
	}
	return tally(terminal), cancelled
}

func drain(b *bus.Bus, sup *supervisor.Supervisor, terminal map[string]bus.Event) {
	for {
		select {
		case e := <-b.Events():
			sup.HandleEvent(e)
			render(e)
			if e.Type == bus.UpdateRow && isTerminal(e.Status) {
				terminal[e.Source] = e
			}
		default:
			return
		}
	}
}

func tally(terminal map[string]bus.Event) int {
	total := 0
	for _, e := range terminal {
		if e.Status == "Complete" {
			total += e.Count
		}
	}
	return total
}

func isTerminal(status string) bool {
	switch status {
	case "Complete", "No Results", "Cancelled", "HALTED":
		return true
	}
	return false
}

// render prints one bus event as a progress line.
func render(e bus.Event) {
	switch e.Type {
	case bus.UpdateRow:
		if e.Details != "" {
			fmt.Printf("[%s] %s: %s\n", e.Source, e.Status, e.Details)
		} else {
			fmt.Printf("[%s] %s\n", e.Source, e.Status)
		}
	case bus.Log:
		fmt.Println(e.Text)
	case bus.StatusBar:
		fmt.Fprintln(os.Stderr, e.Text)
	case bus.Error:
		fmt.Fprintf(os.Stderr, "[%s] ERROR: %s\n", e.Source, e.Err)
	}
}

// buildAdapters assembles the selected source adapters.
func buildAdapters(cmd *cobra.Command, cfg types.Config, client *http.Client, classifier *classify.Classifier, stagingRoot string) ([]adapterSpec, error) {
	fetcher := &httpFetcher{client: client}
	renderer := documentRenderer{}

	// The staging key must equal Adapter.Name(): the supervisor's
	// rollback scan walks stagingRoot/<adapter name>.
	opts := func(name string) source.Options {
		return source.Options{
			StagingRoot:  filepath.Join(stagingRoot, name),
			Client:       client,
			Retry:        cfg.RetrySettings,
			Classifier:   classifier,
			ContactEmail: loadedSecrets[secrets.ContactEmail],
		}
	}

	aclDir := mustString(cmd, "acl-metadata")

	var specs []adapterSpec
	for _, name := range strings.Split(mustString(cmd, "sources"), ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "arxiv":
			specs = append(specs, adapterSpec{source.NewArxiv(opts("arxiv")), "arXiv", false})
		case "lesswrong":
			specs = append(specs, adapterSpec{source.NewLessWrong(opts("lesswrong"), renderer), "LessWrong", true})
		case "openreview":
			o := opts("openreview")
			o.AuthToken = loadedSecrets[secrets.OpenReviewToken]
			specs = append(specs, adapterSpec{source.NewOpenReview(o), "OpenReview", false})
		case "acl":
			if aclDir == "" {
				return nil, fmt.Errorf("%w: source 'acl' requires --acl-metadata", types.ErrConfig)
			}
			specs = append(specs, adapterSpec{source.NewACL(opts("acl_anthology"), aclDir), "ACL Anthology", false})
		case "aaai":
			specs = append(specs, adapterSpec{source.NewAAAI(opts("aaai")), "AAAI", false})
		case "labs":
			specs = append(specs, adapterSpec{source.NewLabs(opts("labs"), fetcher, renderer), "Lab Blogs", true})
		case "":
		default:
			return nil, fmt.Errorf("%w: unknown source %q", types.ErrConfig, name)
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no sources selected", types.ErrConfig)
	}
	return specs, nil
}

// dailyStartDate computes DAILY mode's lower bound: the latest stored
// date minus the overlap lookback. Zero when the store is empty.
func dailyStartDate(st *store.Store, overlapDays int) time.Time {
	latest, err := st.GetLatestDate()
	if err != nil || latest == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", latest[:min(len(latest), 10)])
	if err != nil {
		return time.Time{}
	}
	return t.AddDate(0, 0, -overlapDays)
}

func parseMode(s string) (types.Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TEST":
		return types.ModeTest, nil
	case "DAILY", "":
		return types.ModeDaily, nil
	case "BACKFILL":
		return types.ModeBackfill, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", types.ErrConfig, s)
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func mustBool(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}
