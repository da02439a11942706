package recorder

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/analytics"
)

// Config contains configuration for the analytics recorder.
type Config struct {
	// QueueCapacity is the bounded ingest queue size. When the queue
	// is full the oldest entry is dropped to make room.
	// Default: 1000
	QueueCapacity int

	// SampleRate is the fraction of query samples accepted, in [0, 1].
	// Violations are never sampled.
	// Default: 1.0
	SampleRate float64

	// BatchSize is the maximum number of records the drain worker
	// writes per storage call.
	// Default: 64
	BatchSize int

	// FlushInterval is how long a partial batch may wait before being
	// written.
	// Default: 1 second
	FlushInterval time.Duration

	// WriteTimeout bounds each storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// ShutdownGrace bounds the best-effort queue flush on Close.
	// Default: 5 seconds
	ShutdownGrace time.Duration

	// Metrics receives per-batch write outcomes. Nil disables them.
	Metrics MetricsHook
}

// MetricsHook receives storage write observations. Implemented by
// telemetry/metrics.
type MetricsHook interface {
	RecordWrite(ok bool)
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		QueueCapacity: 1000,
		SampleRate:    1.0,
		BatchSize:     64,
		FlushInterval: time.Second,
		WriteTimeout:  5 * time.Second,
		ShutdownGrace: 5 * time.Second,
	}
}

// item is one queued record: exactly one of the two fields is set.
type item struct {
	violation *analytics.ViolationRecord
	sample    *analytics.QueryLogEntry
}

// Recorder ingests violation records and query samples without ever
// blocking the caller, and persists them in batches from a single
// background drain worker.
//
// Enqueue operations are non-blocking by contract: when the bounded
// queue is full, the oldest queued entry is dropped and a drop counter
// incremented. Back-pressure never propagates to the request path.
type Recorder struct {
	storage analytics.Storage
	config  *Config
	queue   chan item
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger

	closeOnce sync.Once

	dropped        atomic.Int64
	sampledOut     atomic.Int64
	violationCount atomic.Int64
	sampleCount    atomic.Int64
}

// New creates a recorder draining into storage and starts its worker.
func New(storage analytics.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = 1000
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = 5 * time.Second
	}

	r := &Recorder{
		storage: storage,
		config:  config,
		queue:   make(chan item, config.QueueCapacity),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "analytics.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("analytics recorder initialized",
		"queue_capacity", config.QueueCapacity,
		"sample_rate", config.SampleRate,
		"batch_size", config.BatchSize,
	)

	return r
}

// RecordViolation enqueues a violation record. Never blocks. Assigns
// the record an ID and timestamp if the caller left them zero.
func (r *Recorder) RecordViolation(record *analytics.ViolationRecord) {
	if record == nil {
		return
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	r.enqueue(item{violation: record})
	r.violationCount.Add(1)
}

// RecordQuerySample enqueues a query log entry, subject to the
// configured sampling rate. Never blocks.
func (r *Recorder) RecordQuerySample(entry *analytics.QueryLogEntry) {
	if entry == nil {
		return
	}
	if r.config.SampleRate < 1.0 && rand.Float64() >= r.config.SampleRate {
		r.sampledOut.Add(1)
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	r.enqueue(item{sample: entry})
	r.sampleCount.Add(1)
}

// enqueue inserts without blocking, evicting the oldest queued entry
// when the queue is full.
func (r *Recorder) enqueue(it item) {
	select {
	case r.queue <- it:
		return
	default:
	}

	// Queue full: drop the oldest entry to make room for the new one.
	select {
	case <-r.queue:
		r.dropped.Add(1)
	default:
	}

	select {
	case r.queue <- it:
	default:
		// Lost the race to another producer; drop the new entry.
		r.dropped.Add(1)
	}
}

// Dropped returns the total number of entries dropped because the
// queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// QueueDepth returns the current number of queued entries.
func (r *Recorder) QueueDepth() int {
	return len(r.queue)
}

// QueueCapacity returns the configured queue capacity.
func (r *Recorder) QueueCapacity() int {
	return cap(r.queue)
}

// Close stops the recorder, flushing queued entries best-effort within
// the shutdown grace period.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down analytics recorder",
			"pending", len(r.queue),
		)
		close(r.done)
		r.wg.Wait()
		r.logger.Info("analytics recorder shut down",
			"dropped_total", r.dropped.Load(),
		)
	})
	return nil
}

// worker is the single drain goroutine. It accumulates records into
// batches and writes each batch in one storage call.
func (r *Recorder) worker() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	var violations []*analytics.ViolationRecord
	var samples []*analytics.QueryLogEntry

	flush := func(ctx context.Context) {
		if len(violations) > 0 {
			r.writeViolations(ctx, violations)
			violations = violations[:0]
		}
		if len(samples) > 0 {
			r.writeSamples(ctx, samples)
			samples = samples[:0]
		}
	}

	for {
		select {
		case it := <-r.queue:
			if it.violation != nil {
				violations = append(violations, it.violation)
			} else if it.sample != nil {
				samples = append(samples, it.sample)
			}
			if len(violations)+len(samples) >= r.config.BatchSize {
				flush(context.Background())
			}

		case <-ticker.C:
			flush(context.Background())

		case <-r.done:
			// Drain remaining entries best-effort within the grace
			// period, then exit.
			deadline := time.Now().Add(r.config.ShutdownGrace)
			for {
				select {
				case it := <-r.queue:
					if it.violation != nil {
						violations = append(violations, it.violation)
					} else if it.sample != nil {
						samples = append(samples, it.sample)
					}
					if len(violations)+len(samples) >= r.config.BatchSize {
						flush(context.Background())
					}
					if time.Now().After(deadline) {
						flush(context.Background())
						return
					}
				default:
					flush(context.Background())
					return
				}
			}
		}
	}
}

// writeViolations persists one violation batch.
func (r *Recorder) writeViolations(parent context.Context, batch []*analytics.ViolationRecord) {
	ctx, cancel := context.WithTimeout(parent, r.config.WriteTimeout)
	defer cancel()

	err := r.storage.StoreViolations(ctx, batch)
	if r.config.Metrics != nil {
		r.config.Metrics.RecordWrite(err == nil)
	}
	if err != nil {
		r.logger.Error("failed to store violation batch",
			"batch_size", len(batch),
			"error", err,
		)
		return
	}
	r.logger.Debug("violation batch stored", "batch_size", len(batch))
}

// writeSamples persists one query sample batch.
func (r *Recorder) writeSamples(parent context.Context, batch []*analytics.QueryLogEntry) {
	ctx, cancel := context.WithTimeout(parent, r.config.WriteTimeout)
	defer cancel()

	err := r.storage.StoreQuerySamples(ctx, batch)
	if r.config.Metrics != nil {
		r.config.Metrics.RecordWrite(err == nil)
	}
	if err != nil {
		r.logger.Error("failed to store query sample batch",
			"batch_size", len(batch),
			"error", err,
		)
		return
	}
	r.logger.Debug("query sample batch stored", "batch_size", len(batch))
}
