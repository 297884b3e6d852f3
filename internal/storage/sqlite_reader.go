package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roman-kulish/flight-bridge/internal/telemetry"
)

// TelemetryReader iterates over the recorded telemetry of a run
type TelemetryReader struct {
	db        *sql.DB
	sessionID int64
	session   *Session

	from time.Duration
	to   time.Duration

	current *telemetry.Telemetry
	rows    *sql.Rows
	err     error
}

func newTelemetryReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*TelemetryReader, error) {
	tr := &TelemetryReader{
		db:        db,
		sessionID: sessionID,
		from:      0,
		to:        time.Duration(math.MaxInt64),
	}
	for _, opt := range opts {
		opt(tr)
	}
	if err := tr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return tr, nil
}

func (tr *TelemetryReader) init(ctx context.Context) error {
	if tr.db == nil {
		return errors.New("database connection required")
	}
	if tr.sessionID <= 0 {
		return errors.New("session ID required")
	}
	if tr.from > tr.to {
		return fmt.Errorf("start time %s is after end time %s", tr.from, tr.to)
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: tr.loadSession},
		{msg: "initializing query", fn: tr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (tr *TelemetryReader) loadSession(ctx context.Context) (err error) {
	stmt, err := tr.db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var sess Session
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, tr.sessionID).Scan(&sess.ID, &sess.RunID, &sess.Name, &sess.StartTime, &config); err != nil {
		return fmt.Errorf("querying session: %w", err)
	}
	if config.Valid {
		sess.Config = &config.String
	}

	tr.session = &sess
	return
}

func (tr *TelemetryReader) initQuery(ctx context.Context) (err error) {
	tr.rows, err = tr.db.QueryContext(ctx, selectTelemetrySQL, tr.sessionID, tr.from.Microseconds(), tr.to.Microseconds())
	return
}

func (tr *TelemetryReader) scan() (*telemetry.Telemetry, error) {
	var data telemetryData
	err := tr.rows.Scan(
		&data.VirtualTime,
		&data.Latitude,
		&data.Longitude,
		&data.Altitude,
		&data.Yaw,
		&data.VelocityNorth,
		&data.VelocityEast,
		&data.VelocityDown,
		&data.Mode,
		&data.Armed,
		&data.SetpointLat,
		&data.SetpointLon,
		&data.SetpointAlt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning telemetry: %w", err)
	}

	return fromTelemetryData(&data)
}

// Session returns the run this reader is accessing
func (tr *TelemetryReader) Session() *Session {
	return tr.session
}

// Next advances to the next snapshot. It returns false at the end of the data
// or on error; check Error to tell them apart.
func (tr *TelemetryReader) Next(ctx context.Context) bool {
	if tr.err != nil || tr.rows == nil {
		return false
	}

	select {
	case <-ctx.Done():
		tr.err = ctx.Err()
		return false
	default:
	}

	if !tr.rows.Next() {
		tr.current = nil
		return false
	}

	tr.current, tr.err = tr.scan()
	return tr.err == nil
}

// Current returns the snapshot the reader is positioned at
func (tr *TelemetryReader) Current() *telemetry.Telemetry {
	return tr.current
}

func (tr *TelemetryReader) Error() error {
	if tr.err != nil {
		return tr.err
	}
	if tr.rows != nil {
		return tr.rows.Err()
	}
	return nil
}

func (tr *TelemetryReader) Close() error {
	if tr.rows != nil {
		err := tr.rows.Close()
		tr.current = nil
		tr.rows = nil
		return err
	}
	return nil
}
