package storage

import (
	"context"
	"time"

	"github.com/roman-kulish/flight-bridge/internal/flight"
	"github.com/roman-kulish/flight-bridge/internal/telemetry"
)

// Store records bridge runs: the mode transitions and the telemetry published
// during each of them. All operations that write to the database are atomic.
type Store interface {
	// CreateSession starts a new recorded run and returns its identifier.
	// The config can be a string, []byte, or a JSON-serializable value.
	CreateSession(ctx context.Context, name string, config any) (sessionID int64, err error)

	// Session retrieves a recorded run by its ID
	Session(ctx context.Context, id int64) (*Session, error)

	// Sessions returns all recorded runs ordered by start time
	Sessions(ctx context.Context) ([]*Session, error)

	// StoreTransition saves one accepted mode change
	StoreTransition(ctx context.Context, sessionID int64, mc flight.ModeChange) error

	// StoreTelemetryBatch saves a batch of snapshots in a single transaction
	StoreTelemetryBatch(ctx context.Context, sessionID int64, batch []*telemetry.Telemetry) error

	// ReadTransitions returns the mode changes of a run in virtual time order
	ReadTransitions(ctx context.Context, sessionID int64) ([]Transition, error)

	// ReadTelemetry iterates over the snapshots of a run in virtual time order.
	// The reader must be closed after use.
	ReadTelemetry(ctx context.Context, sessionID int64, opts ...ReaderOption) (*TelemetryReader, error)

	// Close releases all database connections. It is safe to call Close
	// multiple times.
	Close() error
}

// ReaderOption configures a TelemetryReader
type ReaderOption func(*TelemetryReader)

// WithTimeRange limits the reader to snapshots taken between from and to,
// both inclusive, in virtual time
func WithTimeRange(from, to time.Duration) ReaderOption {
	return func(r *TelemetryReader) {
		r.from = from
		r.to = to
	}
}
