// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package bus carries typed progress events from workers to the
// controller. The bus is a bounded multi-producer single-consumer
// channel: producers block when the consumer falls behind rather than
// dropping events, so terminal statuses are never lost.
package bus

import (
	"context"

	"github.com/pdiddy/paper-ingest/pkg/types"
)

// EventType discriminates bus messages.
type EventType string

const (
	// UpdateRow refreshes a source's display row (status, count,
	// details). Also serves as the worker heartbeat.
	UpdateRow EventType = "UPDATE_ROW"
	// Log is a free-text log line for the operator.
	Log EventType = "LOG"
	// StatusBar replaces the status bar text.
	StatusBar EventType = "STATUS_BAR"
	// ProgressUpdate carries counters for a source in flight.
	ProgressUpdate EventType = "PROGRESS_UPDATE"
	// Error reports a fatal worker failure; the supervisor responds
	// with rollback and retry.
	Error EventType = "ERROR"
	// Done signals the end of a run.
	Done EventType = "DONE"
)

// Event is one bus message. Only the fields relevant to its Type are
// set.
type Event struct {
	Type EventType

	// Source is the worker display name (UpdateRow, ProgressUpdate,
	// Error).
	Source string

	// Status is the row status text, e.g. "Running", "Complete",
	// "FAILED", "HALTED".
	Status string

	// Count is the downloaded-paper count for row updates.
	Count int

	// Details is supplementary row text.
	Details string

	// RunID ties the event to a run for rollback.
	RunID string

	// Mode is the run mode the worker is executing under.
	Mode types.Mode

	// Text is the payload of Log and StatusBar events.
	Text string

	// Found/Downloaded/Progress are ProgressUpdate counters; Progress
	// is a 0-100 percentage.
	Found      int
	Downloaded int
	Progress   int

	// Err and Stack describe an Error event.
	Err   string
	Stack string
}

// Bus is a bounded event channel.
type Bus struct {
	ch chan Event
}

// New creates a bus with the given capacity. Capacity below 1 is
// raised to 1.
func New(capacity int) *Bus {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus{ch: make(chan Event, capacity)}
}

// Publish enqueues an event, blocking while the bus is full. It returns
// ctx.Err() if the context is cancelled first.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	select {
	case b.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish enqueues an event without blocking and reports whether it
// was accepted. Coalescable progress updates use this; terminal events
// must use Publish.
func (b *Bus) TryPublish(e Event) bool {
	select {
	case b.ch <- e:
		return true
	default:
		return false
	}
}

// Events returns the consumer side of the bus.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close closes the bus. Only the controller may call it, after all
// producers have stopped.
func (b *Bus) Close() {
	close(b.ch)
}
