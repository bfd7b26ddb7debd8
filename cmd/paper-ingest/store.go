package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-ingest/internal/store"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect the production metadata store",
	Long: `Store answers quick questions about the production metadata store:
the most recent published date, the rows a given run produced, and the
rows not yet promoted to the library.`,
	RunE: runStore,
}

func init() {
	storeCmd.Flags().Bool("latest", false, "print the most recent published date")
	storeCmd.Flags().String("run", "", "list papers produced by a run id")
	storeCmd.Flags().Bool("unsynced", false, "list papers not yet promoted to the library")

	rootCmd.AddCommand(storeCmd)
}

func runStore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	switch {
	case mustBool(cmd, "latest"):
		latest, err := st.GetLatestDate()
		if err != nil {
			return err
		}
		if latest == "" {
			fmt.Println("store is empty")
			return nil
		}
		fmt.Println(latest)
		return nil

	case mustString(cmd, "run") != "":
		papers, err := st.GetPapersByRunID(mustString(cmd, "run"))
		if err != nil {
			return err
		}
		printPapers(papers)
		return nil

	case mustBool(cmd, "unsynced"):
		papers, err := st.GetUnsynced()
		if err != nil {
			return err
		}
		printPapers(papers)
		return nil
	}

	return fmt.Errorf("pass one of --latest, --run, or --unsynced")
}

func printPapers(papers []types.Paper) {
	if len(papers) == 0 {
		fmt.Println("no papers")
		return
	}
	for _, p := range papers {
		fmt.Printf("%6d  %-10s  %-12s  %s\n", p.ID, p.Source, p.PublishedDate, p.Title)
	}
	fmt.Printf("%d paper(s)\n", len(papers))
}
