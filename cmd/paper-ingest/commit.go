package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-ingest/internal/commit"
	"github.com/pdiddy/paper-ingest/internal/store"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Promote staged PDFs and working-copy rows into the library",
	Long: `Commit moves the PDFs a run left in staging into the canonical library
and merges the working copy's rows into the production store. Existing
library files raise a conflict resolved per file: overwrite, skip, or
cancel the whole commit. A cancelled or failed commit leaves staging
and the working copy intact.`,
	RunE: runCommitCmd,
}

func init() {
	commitCmd.Flags().String("on-conflict", "ask", "conflict policy: ask, skip, overwrite, or cancel")

	rootCmd.AddCommand(commitCmd)
}

func runCommitCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.CloudStorage.Enabled || cfg.CloudStorage.Path == "" {
		return fmt.Errorf("%w: cloud_storage must be enabled with a path to commit", types.ErrConfig)
	}

	workingPath := workingDBPath(cfg)
	if _, err := os.Stat(workingPath); err != nil {
		return fmt.Errorf("no working copy at %s; run the pipeline first", workingPath)
	}
	working, err := store.Open(workingPath)
	if err != nil {
		return err
	}
	defer working.Close()

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
	return nil
}

// runCommit executes the promotion against the production store and
// reports the outcome.
func runCommit(cfg types.Config, working *store.Store, resolver commit.Resolver) error {
	prod, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer prod.Close()

	m := &commit.Manager{
		StagingDir: cfg.StagingRoot(),
		LibraryDir: cfg.CloudStorage.Path,
		Working:    working,
		Prod:       prod,
	}

	result, err := m.Run(resolver)
	if err != nil {
		return err
	}
	fmt.Printf("Commit complete: %d moved, %d skipped, %d conflicts\n",
		result.Moved, result.Skipped, result.Conflict)
	return nil
}

// newResolver maps the --on-conflict flag onto a commit.Resolver.
func newResolver(policy string) (commit.Resolver, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "ask", "":
		return &promptResolver{}, nil
	case "skip":
		return commit.ResolverFunc(func(commit.Conflict) commit.Resolution {
			return commit.Skip
		}), nil
	case "overwrite":
		return commit.ResolverFunc(func(commit.Conflict) commit.Resolution {
			return commit.Overwrite
		}), nil
	case "cancel":
		return commit.ResolverFunc(func(commit.Conflict) commit.Resolution {
			return commit.CancelAll
		}), nil
	}
	return nil, fmt.Errorf("%w: unknown conflict policy %q", types.ErrConfig, policy)
}

// promptResolver asks the user per conflict on stdin.
type promptResolver struct {
	reader *bufio.Reader
}

func (p *promptResolver) Resolve(c commit.Conflict) commit.Resolution {
	if p.reader == nil {
		p.reader = bufio.NewReader(os.Stdin)
	}

	fmt.Printf("Conflict: %s (%s)\n", c.Filename, c.Category)
	fmt.Printf("  staged:  %d bytes, modified %s\n", c.StagingSize, c.StagingModified.Format("2006-01-02 15:04:05"))
	fmt.Printf("  library: %d bytes, modified %s\n", c.LibrarySize, c.LibraryModified.Format("2006-01-02 15:04:05"))

	for {
		fmt.Print("[o]verwrite / [s]kip / [c]ancel all: ")
		line, err := p.reader.ReadString('\n')
		if err != nil {
			return commit.CancelAll
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "o", "overwrite":
			return commit.Overwrite
		case "s", "skip":
			return commit.Skip
		case "c", "cancel":
			return commit.CancelAll
		}
	}
}
