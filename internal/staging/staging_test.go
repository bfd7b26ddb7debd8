// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package staging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareEmptiesExistingTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "staging")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Alignment Research"), 0o755))
	stale := filepath.Join(root, "Alignment Research", "Old Paper.pdf")
	require.NoError(t, os.WriteFile(stale, []byte("%PDF"), 0o644))

	require.NoError(t, Prepare(root))

	assert.NoFileExists(t, stale)
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPrepareWithoutPath(t *testing.T) {
	assert.Error(t, Prepare(""))
}

func TestClear(t *testing.T) {
	root := filepath.Join(t.TempDir(), "staging")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, Clear(root))
	assert.NoDirExists(t, root)

	assert.NoError(t, Clear(""))
}

func TestLockExcludesSecondRun(t *testing.T) {
	root := t.TempDir()

	lock, err := Acquire(root, false)
	require.NoError(t, err)

	_, err = Acquire(root, false)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lock.Release())

	again, err := Acquire(root, false)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestLockForceOverride(t *testing.T) {
	root := t.TempDir()

	first, err := Acquire(root, false)
	require.NoError(t, err)
	defer first.Release()

	forced, err := Acquire(root, true)
	require.NoError(t, err)
	require.NoError(t, forced.Release())
}

func TestReleaseIsIdempotent(t *testing.T) {
	root := t.TempDir()
	lock, err := Acquire(root, false)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	assert.NoError(t, lock.Release())
}
