package watcher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/strand/internal/watcher"
)

func TestWatcher_DebounceMultipleWrites(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "state.json")
	err := os.WriteFile(snapshot, []byte("{}"), 0644)
	require.NoError(t, err, "failed to create snapshot file")

	// Create watcher with short debounce
	w, err := watcher.New(watcher.Config{
		SnapshotPath: snapshot,
		DebounceDur:  50 * time.Millisecond,
	})
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	// Rapid writes should coalesce into single notification
	for i := 0; i < 10; i++ {
		err := os.WriteFile(snapshot, []byte(fmt.Sprintf(`{"n":%d}`, i)), 0644)
		require.NoError(t, err, "failed to write file")
		time.Sleep(10 * time.Millisecond)
	}

	// Should receive exactly one notification
	select {
	case <-onChange:
		// Expected
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected notification but got timeout")
	}

	// No second notification should come quickly
	select {
	case <-onChange:
		t.Fatal("unexpected second notification")
	case <-time.After(100 * time.Millisecond):
		// Expected - no second notification
	}
}

func TestWatcher_NotifiesOnAtomicRename(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "state.json")
	err := os.WriteFile(snapshot, []byte("{}"), 0644)
	require.NoError(t, err, "failed to create snapshot file")

	w, err := watcher.New(watcher.Config{
		SnapshotPath: snapshot,
		DebounceDur:  50 * time.Millisecond,
	})
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	// Write a temp file and rename it over the snapshot, the way saves land
	tmp := filepath.Join(dir, ".strand-state.tmp.123")
	err = os.WriteFile(tmp, []byte(`{"operation":"idle"}`), 0644)
	require.NoError(t, err, "failed to write temp file")
	err = os.Rename(tmp, snapshot)
	require.NoError(t, err, "failed to rename temp file")

	select {
	case <-onChange:
		// Expected - the rename replaced the snapshot
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected notification for renamed snapshot")
	}
}

func TestWatcher_IgnoresIrrelevantFiles(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "state.json")
	otherPath := filepath.Join(dir, "other.txt")
	err := os.WriteFile(snapshot, []byte("{}"), 0644)
	require.NoError(t, err, "failed to create snapshot file")
	// Pre-create the other file so writes to it are just Write events
	err = os.WriteFile(otherPath, []byte("initial"), 0644)
	require.NoError(t, err, "failed to create other file")

	w, err := watcher.New(watcher.Config{
		SnapshotPath: snapshot,
		DebounceDur:  50 * time.Millisecond,
	})
	require.NoError(t, err, "failed to create watcher")
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	// Write to unrelated file (not Create, since it already exists)
	err = os.WriteFile(otherPath, []byte("other content"), 0644)
	require.NoError(t, err, "failed to write other file")

	select {
	case <-onChange:
		t.Fatal("should not notify for unrelated files")
	case <-time.After(100 * time.Millisecond):
		// Expected - no notification for unrelated file
	}
}

func TestWatcher_Stop(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "state.json")
	err := os.WriteFile(snapshot, []byte("{}"), 0644)
	require.NoError(t, err, "failed to create snapshot file")

	w, err := watcher.New(watcher.Config{
		SnapshotPath: snapshot,
		DebounceDur:  50 * time.Millisecond,
	})
	require.NoError(t, err, "failed to create watcher")

	_, err = w.Start()
	require.NoError(t, err, "failed to start watcher")

	// Stop should not hang or panic
	done := make(chan struct{})
	go func() {
		err := w.Stop()
		assert.NoError(t, err, "Stop returned error")
		close(done)
	}()

	select {
	case <-done:
		// Expected - stop completed successfully
	case <-time.After(1 * time.Second):
		t.Fatal("Stop() timed out - possible deadlock")
	}
}

func TestDefaultConfig(t *testing.T) {
	snapshot := "/test/state.json"
	cfg := watcher.DefaultConfig(snapshot)

	assert.Equal(t, snapshot, cfg.SnapshotPath)
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceDur)
}
