// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrConfig reports missing or invalid configuration; fatal at startup.
var ErrConfig = errors.New("invalid configuration")

// CloudStorageConfig controls the canonical library and the commit phase.
type CloudStorageConfig struct {
	// Path is the canonical library root.
	Path string `mapstructure:"path" yaml:"path"`

	// Enabled turns the commit phase on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// CheckDuplicates enables the library-filename dedup check during
	// downloads.
	CheckDuplicates bool `mapstructure:"check_duplicates" yaml:"check_duplicates"`

	// BackupPath is the destination directory for backup archives.
	BackupPath string `mapstructure:"backup_path" yaml:"backup_path"`
}

// ModeLimits holds per-mode search and download limits.
type ModeLimits struct {
	// MaxPapersPerAgent caps downloads per adapter; nil means unlimited.
	MaxPapersPerAgent *int `mapstructure:"max_papers_per_agent" yaml:"max_papers_per_agent"`

	// PerQueryLimit caps results requested from a source per query.
	PerQueryLimit int `mapstructure:"per_query_limit" yaml:"per_query_limit"`

	// RespectDateRange restricts the search to the run's start date.
	RespectDateRange bool `mapstructure:"respect_date_range" yaml:"respect_date_range"`
}

// Limit returns the download cap, or max int when unlimited.
func (m ModeLimits) Limit() int {
	if m.MaxPapersPerAgent == nil {
		return int(^uint(0) >> 1)
	}
	return *m.MaxPapersPerAgent
}

// ModeSettingsConfig groups the limits for each run mode.
type ModeSettingsConfig struct {
	Testing  ModeLimits `mapstructure:"testing" yaml:"testing"`
	Daily    ModeLimits `mapstructure:"daily" yaml:"daily"`
	Backfill ModeLimits `mapstructure:"backfill" yaml:"backfill"`
}

// ForMode returns the limits for the given run mode.
func (m ModeSettingsConfig) ForMode(mode Mode) ModeLimits {
	switch mode {
	case ModeTest:
		return m.Testing
	case ModeBackfill:
		return m.Backfill
	default:
		return m.Daily
	}
}

// RetryConfig holds the concurrency and retry knobs.
type RetryConfig struct {
	// MaxWorkerRetries is how often the supervisor restarts a failed
	// worker before halting it (default 2).
	MaxWorkerRetries int `mapstructure:"max_worker_retries" yaml:"max_worker_retries"`

	// WorkerTimeout is the heartbeat expiry after which a worker is
	// considered hung (default 600s).
	WorkerTimeout time.Duration `mapstructure:"worker_timeout" yaml:"worker_timeout"`

	// WorkerRetryDelay is the pause before restarting a failed worker
	// (default 5s).
	WorkerRetryDelay time.Duration `mapstructure:"worker_retry_delay" yaml:"worker_retry_delay"`

	// APIMaxRetries is the per-request retry budget inside adapters
	// (default 3).
	APIMaxRetries int `mapstructure:"api_max_retries" yaml:"api_max_retries"`

	// APIBaseDelay seeds the exponential backoff, capped at 30s
	// (default 2s).
	APIBaseDelay time.Duration `mapstructure:"api_base_delay" yaml:"api_base_delay"`

	// RequestPacingDelay is inserted between consecutive source requests.
	RequestPacingDelay time.Duration `mapstructure:"request_pacing_delay" yaml:"request_pacing_delay"`
}

// Config is the full recognized option set.
type Config struct {
	// DBPath locates the production metadata store.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// PapersDir is the default staging root for adapters lacking an
	// explicit staging directory.
	PapersDir string `mapstructure:"papers_dir" yaml:"papers_dir"`

	// StagingDir is the shared staging root (preferred over PapersDir).
	StagingDir string `mapstructure:"staging_dir" yaml:"staging_dir"`

	// IngestPath is an optional drop folder for locally supplied PDFs.
	IngestPath string `mapstructure:"ingest_path" yaml:"ingest_path"`

	// DateOverlapDays is DAILY mode's safety lookback before the latest
	// stored date.
	DateOverlapDays int `mapstructure:"date_overlap_days" yaml:"date_overlap_days"`

	CloudStorage  CloudStorageConfig `mapstructure:"cloud_storage" yaml:"cloud_storage"`
	ModeSettings  ModeSettingsConfig `mapstructure:"mode_settings" yaml:"mode_settings"`
	RetrySettings RetryConfig        `mapstructure:"retry_settings" yaml:"retry_settings"`
}

// DefaultConfig returns the configuration with all documented defaults
// applied.
func DefaultConfig() Config {
	ten := 10
	return Config{
		DBPath:          "data/metadata.db",
		PapersDir:       "data/papers",
		DateOverlapDays: 2,
		ModeSettings: ModeSettingsConfig{
			Testing:  ModeLimits{MaxPapersPerAgent: &ten, PerQueryLimit: 50, RespectDateRange: false},
			Daily:    ModeLimits{MaxPapersPerAgent: &ten, PerQueryLimit: 50, RespectDateRange: true},
			Backfill: ModeLimits{MaxPapersPerAgent: nil, PerQueryLimit: 200, RespectDateRange: false},
		},
		RetrySettings: RetryConfig{
			MaxWorkerRetries:   2,
			WorkerTimeout:      600 * time.Second,
			WorkerRetryDelay:   5 * time.Second,
			APIMaxRetries:      3,
			APIBaseDelay:       2 * time.Second,
			RequestPacingDelay: time.Second,
		},
	}
}

// StagingRoot returns the effective staging root: StagingDir when set,
// otherwise PapersDir.
func (c Config) StagingRoot() string {
	if c.StagingDir != "" {
		return c.StagingDir
	}
	return c.PapersDir
}

// Validate reports fatal configuration defects.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path is required", ErrConfig)
	}
	if c.StagingRoot() == "" {
		return fmt.Errorf("%w: staging_dir or papers_dir is required", ErrConfig)
	}
	if c.CloudStorage.Enabled && c.CloudStorage.Path == "" {
		return fmt.Errorf("%w: cloud_storage.path is required when cloud_storage.enabled", ErrConfig)
	}
	if c.RetrySettings.WorkerTimeout < 0 || c.RetrySettings.APIBaseDelay < 0 {
		return fmt.Errorf("%w: retry delays must not be negative", ErrConfig)
	}
	return nil
}
