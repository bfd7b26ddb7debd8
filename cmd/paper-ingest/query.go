package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-ingest/internal/filter"
)

var queryCmd = &cobra.Command{
	Use:   "query <boolean query>",
	Short: "Validate a relevance query and show how it parses",
	Long: `Query validates a boolean relevance expression against the filter
grammar and prints the required keyword groups and exclusions it parses
into. Use it to check a prompt before spending a run on it.

Example: paper-ingest query '("AI" OR "ML") AND ("safety") ANDNOT ("hiring")'`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	f, err := filter.Parse(args[0])
	if err != nil {
		return err
	}

	fmt.Println("Query is valid.")
	for i, group := range f.RequiredGroups() {
		fmt.Printf("  group %d (any of): %s\n", i+1, strings.Join(group, ", "))
	}
	if excluded := f.UserExcluded(); len(excluded) > 0 {
		fmt.Printf("  excluded: %s\n", strings.Join(excluded, ", "))
	}
	return nil
}
