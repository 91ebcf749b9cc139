// Package watcher turns filesystem activity under the pages root into
// reindex triggers. Bursts of events are coalesced inside a short
// debounce window, and triggers are delivered through a capacity-1
// channel: while one trigger is pending, further ones are dropped, since
// the pending trigger already guarantees the eventual reindex will
// capture the latest on-disk state.
package watcher

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

// DefaultDebounceWindow is the event-coalescing window.
const DefaultDebounceWindow = 30 * time.Millisecond

// Watcher recursively watches a directory tree and emits debounced
// reindex triggers.
type Watcher struct {
	fsw      *fsnotify.Watcher
	window   time.Duration
	triggers chan struct{}
	stopCh   chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// New creates a Watcher with the given debounce window (0 = default).
func New(window time.Duration) (*Watcher, error) {
	if window <= 0 {
		window = DefaultDebounceWindow
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsw:      fsw,
		window:   window,
		triggers: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}, nil
}

// Triggers returns the channel of debounced reindex triggers.
func (w *Watcher) Triggers() <-chan struct{} {
	return w.triggers
}

// Start watches root recursively and blocks until the context is
// cancelled or Stop is called. New subdirectories are added to the watch
// as they appear.
func (w *Watcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}

	if err := w.addRecursive(absRoot); err != nil {
		return fmt.Errorf("watch %s: %w", absRoot, err)
	}
	slog.Info("watching pages for changes", slog.String("path", absRoot))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// handleEvent filters one fsnotify event and schedules a trigger.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Chmod-only events carry no content mutation.
	if event.Op == fsnotify.Chmod {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		// A new directory needs its own watch before events inside it
		// can be seen.
		if err := w.addRecursive(event.Name); err != nil {
			slog.Debug("could not watch new path",
				slog.String("path", event.Name),
				slog.String("error", err.Error()))
		}
	}

	w.scheduleTrigger()
}

// scheduleTrigger (re)starts the debounce timer; the trigger fires once
// the window passes without further events.
func (w *Watcher) scheduleTrigger() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, w.fireTrigger)
}

// fireTrigger delivers one trigger, dropping it when one is pending.
func (w *Watcher) fireTrigger() {
	select {
	case w.triggers <- struct{}{}:
		slog.Debug("filesystem change detected, reindex trigger queued")
	default:
		slog.Debug("reindex trigger already pending, dropping")
	}
}

// addRecursive adds path and every directory below it to the watch.
// Non-directories are ignored.
func (w *Watcher) addRecursive(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("add watch for %s: %w", p, err)
		}
		return nil
	})
}

// Stop stops the watcher and releases resources. Safe to call multiple
// times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.stopCh)
	return w.fsw.Close()
}
