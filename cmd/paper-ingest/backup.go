package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-ingest/internal/backup"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Archive the library and metadata store into a timestamped zip",
	Long: `Backup writes a Research_Backup_<MMDDYY.ss>.zip archive containing a
Library/ mirror of the library tree and metadata.db at the archive
root. Runs take the same snapshot automatically before touching
anything; this command takes one on demand.`,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().String("dest", "", "destination directory (default: cloud_storage.backup_path)")

	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dest := mustString(cmd, "dest")
	if dest == "" {
		dest = cfg.CloudStorage.BackupPath
	}
	if dest == "" {
		return fmt.Errorf("%w: no backup destination; set cloud_storage.backup_path or pass --dest", types.ErrConfig)
	}

	archive, err := backup.Create(cfg.CloudStorage.Path, cfg.DBPath, dest, time.Now())
	if err != nil {
		return err
	}
	fmt.Println("Backup written:", archive)
	return nil
}
