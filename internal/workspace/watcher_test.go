package workspace

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(25 * time.Millisecond)
	}
	return cond()
}

func TestWatcherMarksStaleOnChange(t *testing.T) {
	dir := t.TempDir()
	var fired atomic.Int32
	watcher, err := NewWatcher(dir, discardLogger(), func() { fired.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	if watcher.Stale() {
		t.Fatal("fresh watcher should not be stale")
	}

	if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte("changed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 3*time.Second, watcher.Stale) {
		t.Fatal("watcher never became stale")
	}
	if fired.Load() != 1 {
		t.Fatalf("onStale fired %d times, want 1", fired.Load())
	}

	// further changes while already stale do not re-fire
	if err := os.WriteFile(filepath.Join(dir, "second.py"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)
	if fired.Load() != 1 {
		t.Fatalf("onStale fired %d times after second change, want 1", fired.Load())
	}
}

func TestWatcherResetRearmsCallback(t *testing.T) {
	dir := t.TempDir()
	var fired atomic.Int32
	watcher, err := NewWatcher(dir, discardLogger(), func() { fired.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	if err := os.WriteFile(filepath.Join(dir, "a"), []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 3*time.Second, watcher.Stale) {
		t.Fatal("watcher never became stale")
	}

	watcher.Reset()
	if watcher.Stale() {
		t.Fatal("reset should clear staleness")
	}

	if err := os.WriteFile(filepath.Join(dir, "b"), []byte("2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 3*time.Second, func() bool { return fired.Load() == 2 }) {
		t.Fatalf("onStale fired %d times, want 2", fired.Load())
	}
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()
	watcher, err := NewWatcher(dir, discardLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 3*time.Second, watcher.Stale) {
		t.Fatal("directory creation should mark the context stale")
	}

	watcher.Reset()
	if err := os.WriteFile(filepath.Join(sub, "nested"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 3*time.Second, watcher.Stale) {
		t.Fatal("change inside new directory should mark the context stale")
	}
}

func TestWatcherRequiresDir(t *testing.T) {
	if _, err := NewWatcher("", discardLogger(), nil); err == nil {
		t.Fatal("expected error for empty directory")
	}
}
