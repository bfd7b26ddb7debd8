package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-ingest/internal/export"
	"github.com/pdiddy/paper-ingest/internal/store"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Append store contents to a CSV or YAML research log",
	Long: `Export appends the production store's papers to a research log file.
Rows already present in the log are skipped, so repeated exports are
safe. By default every paper is offered; --unsynced restricts the pass
to papers not yet promoted to the library.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("format", "csv", "output format: csv or yaml")
	exportCmd.Flags().String("dir", "exports", "destination directory")
	exportCmd.Flags().Bool("unsynced", false, "export only papers not yet promoted")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	var papers []types.Paper
	if mustBool(cmd, "unsynced") {
		papers, err = st.GetUnsynced()
	} else {
		papers, err = st.AllPapers()
	}
	if err != nil {
		return err
	}

	format := export.Format(mustString(cmd, "format"))
	if format != export.FormatCSV && format != export.FormatYAML {
		return fmt.Errorf("%w: unknown export format %q", types.ErrConfig, format)
	}

	e := &export.Exporter{Dir: mustString(cmd, "dir"), Format: format}
	covered, err := e.Export(papers)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d paper(s) to %s\n", len(covered), e.Path())
	return nil
}
