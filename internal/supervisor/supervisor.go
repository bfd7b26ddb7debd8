// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package supervisor spawns, monitors, restarts, and rolls back the
// per-source workers of a run. The controller consumes the event bus
// and forwards each event to HandleEvent; the supervisor reacts to
// heartbeats and worker errors.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/paper-ingest/internal/bus"
	"github.com/pdiddy/paper-ingest/internal/store"
	"github.com/pdiddy/paper-ingest/internal/worker"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

// WorkerFactory builds a fresh worker for a display name. Restarts go
// through the factory so a retried worker starts from clean state.
type WorkerFactory func(displayName string) *worker.Worker

// Supervisor owns the worker registry for one run.
type Supervisor struct {
	bus     *bus.Bus
	store   *store.Store
	factory WorkerFactory
	retry   types.RetryConfig

	// libraryRoot is never deleted under, no matter what rollback says.
	libraryRoot string

	// stagingRoot holds per-source staging subdirectories scanned on
	// rollback.
	stagingRoot string

	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[string]*workerState
}

type workerState struct {
	adapterName   string
	runID         string
	retries       int
	lastHeartbeat time.Time
	startedAt     time.Time
	cancel        context.CancelFunc
	done          chan struct{}
}

// Config wires a Supervisor.
type Config struct {
	Bus         *bus.Bus
	Store       *store.Store
	Factory     WorkerFactory
	Retry       types.RetryConfig
	LibraryRoot string
	StagingRoot string
	Logger      *slog.Logger
}

// New creates a supervisor. The parent context carries the run's
// cancel signal; cancelling it stops every worker.
func New(parent context.Context, cfg Config) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		bus:         cfg.Bus,
		store:       cfg.Store,
		factory:     cfg.Factory,
		retry:       cfg.Retry,
		libraryRoot: cfg.LibraryRoot,
		stagingRoot: cfg.StagingRoot,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
		workers:     make(map[string]*workerState),
	}
}

// StartWorker spawns a worker for displayName. A worker that is still
// running is left alone.
func (s *Supervisor) StartWorker(adapterName, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startWorkerLocked(adapterName, displayName)
}

func (s *Supervisor) startWorkerLocked(adapterName, displayName string) {
	if st, ok := s.workers[displayName]; ok && st.alive() {
		s.log.Warn("worker already running", "worker", displayName)
		return
	}

	w := s.factory(displayName)
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})

	prev := s.workers[displayName]
	st := &workerState{
		adapterName:   adapterName,
		runID:         w.RunID,
		lastHeartbeat: time.Now(),
		startedAt:     time.Now(),
		cancel:        cancel,
		done:          done,
	}
	if prev != nil {
		st.retries = prev.retries
	}
	s.workers[displayName] = st

	go func() {
		defer close(done)
		// Run's recover converts panics into ERROR events; nothing else
		// escapes here.
		w.Run(ctx)
	}()

	s.log.Info("started worker", "worker", displayName, "run_id", w.RunID)
}

func (st *workerState) alive() bool {
	select {
	case <-st.done:
		return false
	default:
		return true
	}
}

// HandleEvent lets the supervisor observe the bus traffic the
// controller consumes. Row updates refresh the worker's heartbeat;
// error events trigger recovery.
func (s *Supervisor) HandleEvent(e bus.Event) {
	switch e.Type {
	case bus.UpdateRow, bus.ProgressUpdate:
		s.mu.Lock()
		if st, ok := s.workers[e.Source]; ok {
			st.lastHeartbeat = time.Now()
			if e.RunID != "" {
				st.runID = e.RunID
			}
		}
		s.mu.Unlock()
	case bus.Error:
		s.handleError(e)
	}
}

// CheckTimeouts terminates workers whose heartbeat has expired and
// routes them through the error path. Call at least once per second.
func (s *Supervisor) CheckTimeouts() {
	timeout := s.retry.WorkerTimeout
	if timeout <= 0 {
		return
	}

	s.mu.Lock()
	var expired []bus.Event
	for name, st := range s.workers {
		if !st.alive() {
			continue
		}
		if time.Since(st.lastHeartbeat) > timeout {
			s.log.Error("worker heartbeat expired", "worker", name)
			st.cancel()
			expired = append(expired, bus.Event{
				Type:   bus.Error,
				Source: name,
				RunID:  st.runID,
				Err:    "Worker timeout",
			})
		}
	}
	s.mu.Unlock()

	for _, e := range expired {
		s.awaitStop(e.Source, 5*time.Second)
		s.handleError(e)
	}
}

// awaitStop waits for a cancelled worker to exit, up to grace.
func (s *Supervisor) awaitStop(name string, grace time.Duration) {
	s.mu.Lock()
	st, ok := s.workers[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-st.done:
	case <-time.After(grace):
		// Goroutines cannot be force-killed; the worker will observe
		// its context at the next suspension point.
		s.log.Warn("worker did not stop within grace period", "worker", name)
	}
}

// handleError is the recovery path: mark the row failed, roll back the
// run's rows and files, then retry or halt.
func (s *Supervisor) handleError(e bus.Event) {
	s.mu.Lock()
	st, ok := s.workers[e.Source]
	s.mu.Unlock()
	if !ok {
		return
	}

	s.emit(bus.Event{
		Type:    bus.UpdateRow,
		Source:  e.Source,
		Status:  "FAILED",
		Details: "Error: " + e.Err,
	})
	s.emitLog(fmt.Sprintf("CRITICAL: %s errored! Starting recovery...", e.Source))

	// Make sure the failed worker is fully stopped before rolling back
	// or restarting under the same name.
	st.cancel()
	s.awaitStop(e.Source, 5*time.Second)

	runID := e.RunID
	if runID == "" {
		runID = st.runID
	}
	s.rollback(e.Source, st, runID)

	s.mu.Lock()
	max := s.retry.MaxWorkerRetries
	canRetry := st.retries < max
	if canRetry {
		st.retries++
	}
	attempt := st.retries
	adapterName := st.adapterName
	s.mu.Unlock()

	if canRetry {
		s.emit(bus.Event{
			Type:    bus.UpdateRow,
			Source:  e.Source,
			Status:  fmt.Sprintf("Retrying (%d/%d)", attempt, max),
			Details: "Restarting after rollback",
		})

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.retry.WorkerRetryDelay):
		}

		s.mu.Lock()
		s.startWorkerLocked(adapterName, e.Source)
		s.mu.Unlock()
		return
	}

	s.emitLog(fmt.Sprintf("[%s] Max retries reached. Halting agent.", e.Source))
	s.emit(bus.Event{
		Type:    bus.UpdateRow,
		Source:  e.Source,
		Status:  "HALTED",
		Details: fmt.Sprintf("Exceeded %d retries", max),
	})
}

// rollback reverts the failed worker's run: its store rows are removed
// or detached, and the files it created are deleted, both from the
// rollback result and from a staging mtime scan. Nothing under the
// library root is ever deleted.
func (s *Supervisor) rollback(displayName string, st *workerState, runID string) {
	s.emitLog(fmt.Sprintf("[%s] Rolling back work from run %s...", displayName, runID))

	result, err := s.store.RollbackSource(normalizeSourceName(st.adapterName), runID)
	if err != nil {
		s.emitLog(fmt.Sprintf("[%s] Rollback FAILED: %v", displayName, err))
		return
	}

	for _, path := range result.Paths {
		if s.underLibrary(path) {
			s.log.Warn("refusing to delete library file during rollback", "path", path)
			continue
		}
		if err := os.Remove(path); err == nil {
			s.emitLog(fmt.Sprintf("[%s] Deleted file: %s", displayName, filepath.Base(path)))
		}
	}

	s.cleanStaging(st.adapterName, st.startedAt)
	s.emitLog(fmt.Sprintf("[%s] Rollback complete. Database and files reverted.", displayName))
}

// cleanStaging removes files the failed worker left in its staging
// subdirectory: anything modified since the worker started.
func (s *Supervisor) cleanStaging(adapterName string, since time.Time) {
	if s.stagingRoot == "" {
		return
	}
	dir := filepath.Join(s.stagingRoot, normalizeSourceName(adapterName))
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if info.ModTime().Before(since) {
			return nil
		}
		if s.underLibrary(path) {
			return nil
		}
		os.Remove(path)
		return nil
	})
}

func (s *Supervisor) underLibrary(path string) bool {
	if s.libraryRoot == "" {
		return false
	}
	absLib, err := filepath.Abs(s.libraryRoot)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absLib, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

// IsAnyAlive reports whether any registered worker is still executing.
func (s *Supervisor) IsAnyAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.workers {
		if st.alive() {
			return true
		}
	}
	return false
}

// StopAll cancels every worker and waits briefly for them to exit.
func (s *Supervisor) StopAll() {
	s.cancel()
	s.mu.Lock()
	var pending []chan struct{}
	for _, st := range s.workers {
		st.cancel()
		pending = append(pending, st.done)
	}
	s.mu.Unlock()

	deadline := time.After(5 * time.Second)
	for _, done := range pending {
		select {
		case <-done:
		case <-deadline:
			return
		}
	}
}

// emit publishes without risking a deadlock against the controller's
// consume loop: if the bus is full the event is delivered from a
// goroutine instead of being dropped.
func (s *Supervisor) emit(e bus.Event) {
	if s.bus.TryPublish(e) {
		return
	}
	go s.bus.Publish(context.Background(), e)
}

func (s *Supervisor) emitLog(text string) {
	s.log.Info(text)
	s.emit(bus.Event{Type: bus.Log, Text: text})
}

// normalizeSourceName maps a display or adapter name onto the form
// stored in Paper.Source: lower case, no spaces.
func normalizeSourceName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "")
}
