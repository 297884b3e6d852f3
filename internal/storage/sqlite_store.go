package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/flight-bridge/internal/flight"
	"github.com/roman-kulish/flight-bridge/internal/telemetry"
)

var _ Store = (*SqliteStore)(nil)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened and the schema is initialized on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	// the schema has to exist before a read-only connection can see it
	if _, err := s.getWriteDB(); err != nil {
		return nil, err
	}

	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, name string, config any) (sessionID int64, err error) {
	configData, err := toConfigData(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, uuid.NewString(), name, time.Now().UTC(), configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var sess Session
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, id).Scan(&sess.ID, &sess.RunID, &sess.Name, &sess.StartTime, &config); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}
	if config.Valid {
		sess.Config = &config.String
	}

	return &sess, nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess Session
		var config sql.NullString
		if err = rows.Scan(&sess.ID, &sess.RunID, &sess.Name, &sess.StartTime, &config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		if config.Valid {
			sess.Config = &config.String
		}
		sessions = append(sessions, &sess)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreTransition(ctx context.Context, sessionID int64, mc flight.ModeChange) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertTransitionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	data := toTransitionData(sessionID, mc)
	if _, err = stmt.ExecContext(
		ctx,
		data.SessionID,
		data.VirtualTime,
		data.FromMode,
		data.ToMode,
		data.Auto,
		data.RecordedAt,
	); err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}

	return nil
}

func (s *SqliteStore) StoreTelemetryBatch(ctx context.Context, sessionID int64, batch []*telemetry.Telemetry) (err error) {
	if len(batch) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	values := make([]any, 0, len(batch)*telemetryColumns)

	var sb strings.Builder
	sb.WriteString(insertTelemetrySQL)

	for i, t := range batch {
		data := toTelemetryData(sessionID, t)
		values = append(values,
			data.SessionID,
			data.VirtualTime,
			data.Latitude,
			data.Longitude,
			data.Altitude,
			data.Yaw,
			data.VelocityNorth,
			data.VelocityEast,
			data.VelocityDown,
			data.Mode,
			data.StationMode,
			data.LandedState,
			data.Armed,
			data.SetpointLat,
			data.SetpointLon,
			data.SetpointAlt,
		)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(telemetryValuesSQL)
	}

	if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting telemetry: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) ReadTransitions(ctx context.Context, sessionID int64) (transitions []Transition, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectTransitionsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying transitions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var virtualTime int64
		var from, to string
		var auto bool
		if err = rows.Scan(&virtualTime, &from, &to, &auto); err != nil {
			err = fmt.Errorf("scanning transition: %w", err)
			return
		}

		tr := Transition{
			Time: time.Duration(virtualTime) * time.Microsecond,
			Auto: auto,
		}
		if tr.From, err = flight.ParseMode(from); err != nil {
			return
		}
		if tr.To, err = flight.ParseMode(to); err != nil {
			return
		}
		transitions = append(transitions, tr)
	}
	err = rows.Err()
	return
}

// ReadTelemetry creates a reader over the telemetry of a run. Snapshots are
// returned in virtual time order, optionally limited by WithTimeRange.
//
// The returned reader must be closed after use to release database resources.
// Each reader instance should only be used from a single goroutine.
func (s *SqliteStore) ReadTelemetry(ctx context.Context, sessionID int64, opts ...ReaderOption) (*TelemetryReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newTelemetryReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
