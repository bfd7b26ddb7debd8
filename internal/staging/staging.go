// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package staging manages the run-scoped staging tree and the per-host
// instance lock that keeps two runs from sharing a library root.
package staging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ErrLocked reports that another run holds the instance lock.
var ErrLocked = errors.New("another run is already in progress")

// lockFileName lives at the staging root.
const lockFileName = ".paper-ingest.lock"

// Prepare wipes and recreates the staging directory so a run starts
// from an empty tree.
func Prepare(path string) error {
	if path == "" {
		return fmt.Errorf("no staging path configured")
	}
	slog.Info("preparing staging directory", "path", path)

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("clearing staging directory %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("creating staging directory %s: %w", path, err)
	}
	return nil
}

// Clear removes the staging directory and its contents.
func Clear(path string) error {
	if path == "" {
		return nil
	}
	slog.Info("clearing staging directory", "path", path)
	return os.RemoveAll(path)
}

// Lock is a held instance lock.
type Lock struct {
	path string
}

// Acquire takes the instance lock under root. If a lock already exists
// it fails with ErrLocked unless force is set, in which case the stale
// lock is replaced.
func Acquire(root string, force bool) (*Lock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	path := filepath.Join(root, lockFileName)

	contents := strconv.Itoa(os.Getpid()) + " " + time.Now().Format(time.RFC3339) + "\n"

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		f.WriteString(contents)
		f.Close()
		return &Lock{path: path}, nil
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("creating lock file: %w", err)
	}

	if !force {
		holder, _ := os.ReadFile(path)
		return nil, fmt.Errorf("%w (lock held by %s)", ErrLocked, string(holder))
	}

	slog.Warn("overriding existing instance lock", "path", path)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return nil, fmt.Errorf("overriding lock file: %w", err)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	return err
}
