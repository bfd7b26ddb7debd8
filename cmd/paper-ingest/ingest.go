package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-ingest/internal/classify"
	"github.com/pdiddy/paper-ingest/internal/commit"
	"github.com/pdiddy/paper-ingest/internal/ingest"
	"github.com/pdiddy/paper-ingest/internal/store"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Import PDFs from the drop folder into staging",
	Long: `Ingest processes PDFs the user placed in the configured drop folder
(ingest_path): each file is classified from its filename, copied into
staging under its category, and recorded in the working copy. Processed
files move into the drop folder's processed/ subdirectory. Run 'commit'
afterwards to promote them into the library.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Bool("dry-run", false, "count waiting documents without processing them")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.IngestPath == "" {
		return fmt.Errorf("%w: ingest_path is not configured", types.ErrConfig)
	}

	workingPath := workingDBPath(cfg)
	if err := ensureWorkingCopy(cfg, workingPath); err != nil {
		return err
	}
	working, err := store.Open(workingPath)
	if err != nil {
		return err
	}
	defer working.Close()

	mode := types.ModeDaily
	if mustBool(cmd, "dry-run") {
		mode = types.ModeTest
	}

	ing := &ingest.Ingestor{
		IngestDir:  cfg.IngestPath,
		StagingDir: cfg.StagingRoot(),
		Store:      working,
		Classifier: classify.New(nil),
		RunID:      time.Now().Format("2006-01-02 15:04:05"),
	}

	stats, err := ing.Run(mode)
	if err != nil {
		return err
	}
	if mode == types.ModeTest {
		fmt.Printf("%d document(s) waiting in %s\n", stats.Processed, cfg.IngestPath)
		return nil
	}
	fmt.Printf("Ingested %d document(s), %d error(s)\n", stats.Processed, stats.Errors)
	return nil
}

// ensureWorkingCopy snapshots the production store if no working copy
// exists yet, so a standalone ingest flows through the normal commit.
func ensureWorkingCopy(cfg types.Config, workingPath string) error {
	if _, err := os.Stat(workingPath); err == nil {
		return nil
	}
	return commit.CreateWorkingCopy(cfg.DBPath, workingPath)
}
