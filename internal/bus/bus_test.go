// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAndConsume(t *testing.T) {
	b := New(4)
	require.NoError(t, b.Publish(context.Background(), Event{Type: Log, Text: "hello"}))
	require.NoError(t, b.Publish(context.Background(), Event{Type: Done}))
	b.Close()

	var got []Event
	for e := range b.Events() {
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, Log, got[0].Type)
	assert.Equal(t, "hello", got[0].Text)
	assert.Equal(t, Done, got[1].Type)
}

func TestPublishBlocksWhenFull(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Publish(context.Background(), Event{Type: Log}))

	done := make(chan error, 1)
	go func() {
		done <- b.Publish(context.Background(), Event{Type: Error, Source: "arxiv"})
	}()

	select {
	case <-done:
		t.Fatal("publish returned while bus was full")
	case <-time.After(20 * time.Millisecond):
	}

	// Draining one slot unblocks the producer; the terminal event is
	// delivered, not dropped.
	<-b.Events()
	require.NoError(t, <-done)
	e := <-b.Events()
	assert.Equal(t, Error, e.Type)
	assert.Equal(t, "arxiv", e.Source)
}

func TestPublishCancelled(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Publish(context.Background(), Event{Type: Log}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Publish(ctx, Event{Type: Log})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTryPublish(t *testing.T) {
	b := New(1)
	assert.True(t, b.TryPublish(Event{Type: ProgressUpdate, Progress: 50}))
	assert.False(t, b.TryPublish(Event{Type: ProgressUpdate, Progress: 60}))

	e := <-b.Events()
	assert.Equal(t, 50, e.Progress)
}
