package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// ============================================================================
// Debouncer
// ============================================================================

func TestDebouncer_CoalescesRapidTriggers(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls.Add(1) })
	}

	time.Sleep(200 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("Expected 1 coalesced callback, got %d", got)
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Stop()

	time.Sleep(150 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("Expected no callback after Stop, got %d", got)
	}
}

// ============================================================================
// RulesWatcher
// ============================================================================

func TestRulesWatcher_TriggersReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte("rules: []\n"), 0o644); err != nil {
		t.Fatalf("Failed to write rules file: %v", err)
	}

	rw, err := NewRulesWatcher(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewRulesWatcher failed: %v", err)
	}

	var reloads atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- rw.Watch(ctx, func() error {
			reloads.Add(1)
			return nil
		})
	}()

	// Give the watcher time to register before mutating the file.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("rules: [updated]\n"), 0o644); err != nil {
		t.Fatalf("Failed to update rules file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for reloads.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Reload never triggered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-watchErr; err != nil {
		t.Errorf("Watch returned error: %v", err)
	}
}

func TestRulesWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte("rules: []\n"), 0o644); err != nil {
		t.Fatalf("Failed to write rules file: %v", err)
	}

	rw, err := NewRulesWatcher(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewRulesWatcher failed: %v", err)
	}

	var reloads atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rw.Watch(ctx, func() error {
			reloads.Add(1)
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)

	// Write a different file in the watched directory.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x\n"), 0o644); err != nil {
		t.Fatalf("Failed to write sibling file: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	if got := reloads.Load(); got != 0 {
		t.Errorf("Expected no reloads for sibling file, got %d", got)
	}

	cancel()
	<-done
}

func TestRulesWatcher_StopIsIdempotentWhenNotRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("rules: []\n"), 0o644); err != nil {
		t.Fatalf("Failed to write rules file: %v", err)
	}

	rw, err := NewRulesWatcher(path, 0, nil)
	if err != nil {
		t.Fatalf("NewRulesWatcher failed: %v", err)
	}

	if err := rw.Stop(); err != nil {
		t.Errorf("Expected nil from Stop on idle watcher, got %v", err)
	}
}
