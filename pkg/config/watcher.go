package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RulesWatcher watches a rules file for changes and triggers reloads.
// It implements debouncing to prevent reload storms. The parent
// directory is watched rather than the file itself so that editors
// that replace the file by rename keep triggering events.
type RulesWatcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	path     string
	debounce *Debouncer

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// DefaultDebounceInterval is the quiet period before a reload fires.
const DefaultDebounceInterval = 100 * time.Millisecond

// NewRulesWatcher creates a watcher for the given rules file.
func NewRulesWatcher(path string, debounceInterval time.Duration, logger *slog.Logger) (*RulesWatcher, error) {
	if debounceInterval <= 0 {
		debounceInterval = DefaultDebounceInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &RulesWatcher{
		watcher:  watcher,
		logger:   logger.With("component", "rules_watcher"),
		path:     filepath.Clean(path),
		debounce: NewDebouncer(debounceInterval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch starts watching for rules file changes and invokes onReload
// after each debounced change. A reload error is logged and the
// previous rules stay in effect; watching continues. This is a
// blocking operation that runs until the context is cancelled or Stop
// is called.
func (rw *RulesWatcher) Watch(ctx context.Context, onReload func() error) error {
	rw.mu.Lock()
	if rw.running {
		rw.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	rw.running = true
	rw.mu.Unlock()

	defer func() {
		rw.mu.Lock()
		rw.running = false
		rw.mu.Unlock()
		close(rw.doneCh)
	}()

	if err := rw.watcher.Add(filepath.Dir(rw.path)); err != nil {
		return fmt.Errorf("failed to watch rules directory: %w", err)
	}

	rw.logger.Info("rules watcher started", "path", rw.path)

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("rules watcher stopped (context cancelled)")
			return nil

		case <-rw.stopCh:
			rw.logger.Info("rules watcher stopped")
			return nil

		case event, ok := <-rw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}

			if !rw.shouldProcessEvent(event) {
				continue
			}

			rw.logger.Debug("rules file event", "path", event.Name, "op", event.Op.String())

			rw.debounce.Trigger(func() {
				rw.logger.Info("reloading admission rules", "path", rw.path)
				if err := onReload(); err != nil {
					rw.logger.Error("rules reload failed, previous rules remain active", "error", err)
				}
			})

		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			rw.logger.Error("rules watcher error", "error", err)
			// Continue watching despite errors
		}
	}
}

// Stop stops the watcher and waits for the watch loop to exit.
func (rw *RulesWatcher) Stop() error {
	rw.mu.Lock()
	if !rw.running {
		rw.mu.Unlock()
		return nil
	}
	rw.mu.Unlock()

	close(rw.stopCh)
	<-rw.doneCh

	rw.debounce.Stop()

	if err := rw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	return nil
}

// shouldProcessEvent filters directory events down to writes, creates,
// and renames of the watched file.
func (rw *RulesWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == rw.path
}

// Debouncer implements event debouncing to prevent reload storms.
// It collects rapid events and triggers the callback only after a
// quiet period.
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	callback func()
	stopCh   chan struct{}
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Trigger arms the debouncer with a new event. The callback runs after
// the debounce interval if no new events occur first.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, func() {
		select {
		case <-d.stopCh:
			return
		default:
			d.mu.Lock()
			cb := d.callback
			d.mu.Unlock()

			if cb != nil {
				cb()
			}
		}
	})
}

// Stop stops the debouncer and cancels any pending callbacks.
func (d *Debouncer) Stop() {
	close(d.stopCh)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
