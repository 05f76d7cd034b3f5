package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher observes a build context directory and reports when its contents
// drift from the last materialized snapshot.
type Watcher struct {
	mu       sync.Mutex
	dir      string
	debounce time.Duration
	inner    *fsnotify.Watcher
	logger   *slog.Logger
	stale    bool
	onStale  func()
	timer    *time.Timer
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewWatcher starts watching dir and its subdirectories. onStale, when
// non-nil, fires once per transition into the stale state.
func NewWatcher(dir string, logger *slog.Logger, onStale func()) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("watch directory cannot be empty")
	}
	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		dir:      dir,
		debounce: defaultDebounce,
		inner:    inner,
		logger:   logger,
		onStale:  onStale,
		done:     make(chan struct{}),
	}
	if err := w.addRecursive(dir); err != nil {
		inner.Close()
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.loop(ctx)
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.inner.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.inner.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) {
				// New directories must be watched as well.
				if err := w.addRecursive(event.Name); err != nil && w.logger != nil {
					w.logger.Debug("watch new path failed", "path", event.Name, "error", err)
				}
			}
			w.markDirty()
		case err, ok := <-w.inner.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("context watcher error", "dir", w.dir, "error", err)
			}
		}
	}
}

func (w *Watcher) markDirty() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fireStale)
}

func (w *Watcher) fireStale() {
	w.mu.Lock()
	already := w.stale
	w.stale = true
	cb := w.onStale
	w.mu.Unlock()
	if already {
		return
	}
	if w.logger != nil {
		w.logger.Info("build context changed since materialization", "dir", w.dir)
	}
	if cb != nil {
		cb()
	}
}

// Stale reports whether the context changed since the last Reset.
func (w *Watcher) Stale() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stale
}

// Reset clears the stale flag, typically after a fresh materialization.
func (w *Watcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stale = false
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	err := w.inner.Close()
	<-w.done
	return err
}
