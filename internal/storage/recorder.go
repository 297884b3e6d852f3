package storage

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-bridge/internal/flight"
	"github.com/roman-kulish/flight-bridge/internal/telemetry"
)

const (
	maxBatchSize  = 100
	bufferSize    = 256
	flushInterval = 5 * time.Second
)

// WithMaxBatchSize sets the maximum number of telemetry snapshots stored
// within a single database transaction
func WithMaxBatchSize(size int) func(*Recorder) {
	return func(r *Recorder) {
		if size > 0 {
			r.maxBatchSize = size
		}
	}
}

// WithFlushInterval sets how long snapshots may wait in memory before they
// are written even though the batch is not full
func WithFlushInterval(d time.Duration) func(*Recorder) {
	return func(r *Recorder) {
		if d > 0 {
			r.flushInterval = d
		}
	}
}

// WithBufferSize sets the capacity of the intake queue
func WithBufferSize(n int) func(*Recorder) {
	return func(r *Recorder) {
		if n > 0 {
			r.bufferSize = n
		}
	}
}

// WithLogger sets the logger for the recorder
func WithLogger(logger *slog.Logger) func(*Recorder) {
	return func(r *Recorder) {
		r.logger = logger.With(slog.String("component", "recorder"))
	}
}

// record is either a telemetry snapshot or a mode change
type record struct {
	telemetry  *telemetry.Telemetry
	transition flight.ModeChange
}

// Recorder writes the mode transitions and telemetry of one session to a
// Store. Intake never blocks the caller: when the queue is full, records are
// dropped and counted. A single writer goroutine batches telemetry and stores
// transitions in arrival order relative to it.
type Recorder struct {
	store     Store
	sessionID int64
	records   chan record

	maxBatchSize  int
	bufferSize    int
	flushInterval time.Duration

	dropped atomic.Uint64
	written atomic.Uint64

	logger *slog.Logger
}

// NewRecorder creates a recorder for sessionID
func NewRecorder(store Store, sessionID int64, options ...func(*Recorder)) *Recorder {
	r := Recorder{
		store:         store,
		sessionID:     sessionID,
		maxBatchSize:  maxBatchSize,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&r)
	}

	r.records = make(chan record, r.bufferSize)

	return &r
}

// SessionID returns the session the recorder writes to
func (r *Recorder) SessionID() int64 {
	return r.sessionID
}

// Publish implements telemetry.Sink
func (r *Recorder) Publish(t *telemetry.Telemetry) {
	if t == nil {
		return
	}

	select {
	case r.records <- record{telemetry: t}:
	default:
		r.drop("telemetry")
	}
}

// RecordTransition queues a mode change
func (r *Recorder) RecordTransition(mc flight.ModeChange) {
	select {
	case r.records <- record{transition: mc}:
	default:
		r.drop("transition")
	}
}

// Dropped returns the number of records lost to a full queue
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Written returns the number of records stored so far
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

func (r *Recorder) drop(kind string) {
	n := r.dropped.Add(1)
	r.logger.Warn("recorder queue full, record dropped",
		slog.String("kind", kind),
		slog.String("dropped", humanize.Comma(int64(n))))
}

// Run writes queued records until ctx is done, then drains the queue
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]*telemetry.Telemetry, 0, r.maxBatchSize)

	for {
		select {
		case <-ctx.Done():
			r.drain(context.WithoutCancel(ctx), batch)
			return

		case rec := <-r.records:
			batch = r.handle(ctx, batch, rec)

		case <-ticker.C:
			batch = r.flush(ctx, batch)
		}
	}
}

func (r *Recorder) drain(ctx context.Context, batch []*telemetry.Telemetry) {
	for {
		select {
		case rec := <-r.records:
			batch = r.handle(ctx, batch, rec)

		default:
			r.flush(ctx, batch)
			r.logger.Info("recorder stopped",
				slog.String("written", humanize.Comma(int64(r.written.Load()))),
				slog.String("dropped", humanize.Comma(int64(r.dropped.Load()))))
			return
		}
	}
}

func (r *Recorder) handle(ctx context.Context, batch []*telemetry.Telemetry, rec record) []*telemetry.Telemetry {
	if rec.telemetry == nil {
		batch = r.flush(ctx, batch)
		r.storeTransition(ctx, rec.transition)
		return batch
	}

	if batch = append(batch, rec.telemetry); len(batch) >= r.maxBatchSize {
		batch = r.flush(ctx, batch)
	}
	return batch
}

// flush stores batch in chunks of at most maxBatchSize and returns the
// emptied batch for reuse
func (r *Recorder) flush(ctx context.Context, batch []*telemetry.Telemetry) []*telemetry.Telemetry {
	for chunk := range slices.Chunk(batch, r.maxBatchSize) {
		if err := r.store.StoreTelemetryBatch(ctx, r.sessionID, chunk); err != nil {
			r.logger.Error("storing telemetry", slog.String("error", err.Error()))
			continue
		}
		r.written.Add(uint64(len(chunk)))
	}

	clear(batch)
	return batch[:0]
}

func (r *Recorder) storeTransition(ctx context.Context, mc flight.ModeChange) {
	if err := r.store.StoreTransition(ctx, r.sessionID, mc); err != nil {
		r.logger.Error("storing transition", slog.String("error", err.Error()))
		return
	}
	r.written.Add(1)
}
