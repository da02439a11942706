package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/admission/counter"
)

// ============================================================================
// Helpers
// ============================================================================

func seedStore(t *testing.T, store counter.Store, n int, expiresAt time.Time) {
	t.Helper()
	now := time.Now()
	for i := 0; i < n; i++ {
		key := counter.NewKey(string(rune('a'+i%26))+string(rune('0'+i/26)), "cheap", now, time.Minute)
		if _, _, err := store.IncrementAndCheck(key, expiresAt, 1000); err != nil {
			t.Fatalf("Failed to seed store: %v", err)
		}
	}
}

// panickyStore blows up on Sweep so tick recovery can be exercised.
type panickyStore struct{}

func (panickyStore) IncrementAndCheck(counter.Key, time.Time, int) (int64, bool, error) {
	return 0, true, nil
}
func (panickyStore) Sweep(time.Time) int        { panic("sweep exploded") }
func (panickyStore) EstimateMemoryBytes() int64 { return 0 }
func (panickyStore) Len() int                   { return 0 }

// ============================================================================
// Tick behavior
// ============================================================================

func TestTick_SweepsExpiredEntries(t *testing.T) {
	store := counter.NewSharded(4)
	now := time.Now()
	seedStore(t, store, 10, now.Add(-time.Second))

	m := New(store, &Config{Interval: time.Minute, HistorySize: 8})
	m.Tick(now)

	status := m.Status()
	if status.LastSweepRemoved != 10 {
		t.Errorf("Expected 10 swept entries, got %d", status.LastSweepRemoved)
	}
	if status.ActiveKeys != 0 {
		t.Errorf("Expected 0 active keys after sweep, got %d", status.ActiveKeys)
	}
	if status.TicksCompleted != 1 {
		t.Errorf("Expected 1 completed tick, got %d", status.TicksCompleted)
	}
	if !status.LastTickAt.Equal(now) {
		t.Errorf("Expected last tick at %v, got %v", now, status.LastTickAt)
	}
}

func TestTick_NoAlertBelowThresholds(t *testing.T) {
	store := counter.NewSharded(4)
	seedStore(t, store, 5, time.Now().Add(time.Hour))

	m := New(store, &Config{
		Interval:      time.Minute,
		WarningBytes:  1 << 30,
		CriticalBytes: 2 << 30,
		HistorySize:   8,
	})
	m.Tick(time.Now())

	if alerts := m.Status().RecentAlerts; len(alerts) != 0 {
		t.Errorf("Expected no alerts, got %d", len(alerts))
	}
}

func TestTick_WarningAlert(t *testing.T) {
	store := counter.NewSharded(4)
	seedStore(t, store, 10, time.Now().Add(time.Hour))

	var got []Alert
	m := New(store, &Config{
		Interval:      time.Minute,
		WarningBytes:  1, // always crossed while entries exist
		CriticalBytes: 1 << 40,
		HistorySize:   8,
		OnAlert:       func(a Alert) { got = append(got, a) },
	})
	m.Tick(time.Now())

	if len(got) != 1 {
		t.Fatalf("Expected 1 callback invocation, got %d", len(got))
	}
	if got[0].Level != LevelWarning {
		t.Errorf("Expected warning level, got %s", got[0].Level)
	}
	if got[0].EstimatedBytes != store.EstimateMemoryBytes() {
		t.Errorf("Expected estimated bytes %d, got %d", store.EstimateMemoryBytes(), got[0].EstimatedBytes)
	}
	if got[0].ActiveKeys != 10 {
		t.Errorf("Expected 10 active keys in alert, got %d", got[0].ActiveKeys)
	}
}

func TestTick_CriticalTakesPrecedenceOverWarning(t *testing.T) {
	store := counter.NewSharded(4)
	seedStore(t, store, 10, time.Now().Add(time.Hour))

	m := New(store, &Config{
		Interval:      time.Minute,
		WarningBytes:  1,
		CriticalBytes: 1, // both crossed; only critical should fire
		HistorySize:   8,
	})
	m.Tick(time.Now())

	alerts := m.Status().RecentAlerts
	if len(alerts) != 1 {
		t.Fatalf("Expected exactly 1 alert, got %d", len(alerts))
	}
	if alerts[0].Level != LevelCritical {
		t.Errorf("Expected critical level, got %s", alerts[0].Level)
	}
	if alerts[0].ThresholdBytes != 1 {
		t.Errorf("Expected threshold 1, got %d", alerts[0].ThresholdBytes)
	}
}

func TestTick_AlertHistoryIsBounded(t *testing.T) {
	store := counter.NewSharded(4)
	seedStore(t, store, 5, time.Now().Add(time.Hour))

	m := New(store, &Config{
		Interval:     time.Minute,
		WarningBytes: 1,
		HistorySize:  3,
	})
	base := time.Now()
	for i := 0; i < 10; i++ {
		m.Tick(base.Add(time.Duration(i) * time.Minute))
	}

	alerts := m.Status().RecentAlerts
	if len(alerts) != 3 {
		t.Fatalf("Expected history capped at 3, got %d", len(alerts))
	}
	// Newest alerts survive.
	for i, a := range alerts {
		want := base.Add(time.Duration(7+i) * time.Minute)
		if !a.Timestamp.Equal(want) {
			t.Errorf("Alert %d: expected timestamp %v, got %v", i, want, a.Timestamp)
		}
	}
}

func TestTick_RecoversFromPanic(t *testing.T) {
	m := New(panickyStore{}, &Config{Interval: time.Minute, HistorySize: 8})

	m.Tick(time.Now()) // must not propagate the panic
	m.Tick(time.Now())

	if ticks := m.Status().TicksCompleted; ticks != 0 {
		t.Errorf("Expected 0 completed ticks after panics, got %d", ticks)
	}
}

func TestTick_RecoversFromCallbackPanic(t *testing.T) {
	store := counter.NewSharded(4)
	seedStore(t, store, 5, time.Now().Add(time.Hour))

	m := New(store, &Config{
		Interval:     time.Minute,
		WarningBytes: 1,
		HistorySize:  8,
		OnAlert:      func(Alert) { panic("callback exploded") },
	})
	m.Tick(time.Now())

	// Alert is recorded even when the callback panics.
	if alerts := m.Status().RecentAlerts; len(alerts) != 1 {
		t.Errorf("Expected 1 recorded alert, got %d", len(alerts))
	}
}

// ============================================================================
// Loop lifecycle
// ============================================================================

func TestStart_StopsOnCancel(t *testing.T) {
	store := counter.NewSharded(4)
	m := New(store, &Config{Interval: 5 * time.Millisecond, HistorySize: 8})

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for m.Status().TicksCompleted == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Monitor never ticked")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	m.Wait()
}

func TestStatus_ConcurrentWithTicks(t *testing.T) {
	store := counter.NewSharded(4)
	seedStore(t, store, 20, time.Now().Add(time.Hour))

	m := New(store, &Config{Interval: time.Minute, WarningBytes: 1, HistorySize: 4})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Tick(time.Now())
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.Status()
			}
		}()
	}
	wg.Wait()

	if ticks := m.Status().TicksCompleted; ticks != 400 {
		t.Errorf("Expected 400 completed ticks, got %d", ticks)
	}
}
