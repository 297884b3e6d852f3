package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/flight-bridge/internal/flight"
	"github.com/roman-kulish/flight-bridge/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && !errors.Is(cErr, sql.ErrTxDone) {
		*err = cErr
	}
}

// toConfigData stores string and []byte configs as they are and anything
// else as JSON
func toConfigData(config any) (sql.NullString, error) {
	switch c := config.(type) {
	case nil:
		return sql.NullString{}, nil

	case string:
		return sql.NullString{String: c, Valid: true}, nil

	case []byte:
		return sql.NullString{String: string(c), Valid: true}, nil

	default:
		p, err := json.Marshal(config)
		if err != nil {
			return sql.NullString{}, fmt.Errorf("marshaling config: %w", err)
		}
		return sql.NullString{String: string(p), Valid: true}, nil
	}
}

func toTransitionData(sessionID int64, mc flight.ModeChange) *transitionData {
	return &transitionData{
		SessionID:   sessionID,
		VirtualTime: int64(mc.Time),
		FromMode:    mc.From.String(),
		ToMode:      mc.To.String(),
		Auto:        mc.Auto,
		RecordedAt:  time.Now().UTC(),
	}
}

func toTelemetryData(sessionID int64, t *telemetry.Telemetry) *telemetryData {
	data := telemetryData{
		SessionID:     sessionID,
		VirtualTime:   t.Timestamp.Microseconds(),
		Latitude:      t.Latitude,
		Longitude:     t.Longitude,
		Altitude:      t.Altitude,
		Yaw:           t.Yaw,
		VelocityNorth: t.VelocityNorth,
		VelocityEast:  t.VelocityEast,
		VelocityDown:  t.VelocityDown,
		Mode:          t.Mode.String(),
		StationMode:   t.StationMode.String(),
		LandedState:   t.LandedState.String(),
		Armed:         t.Armed,
	}

	if sp := t.Setpoint; sp != nil {
		data.SetpointLat = sql.NullFloat64{Float64: sp.Lat, Valid: true}
		data.SetpointLon = sql.NullFloat64{Float64: sp.Lon, Valid: true}
		data.SetpointAlt = sql.NullFloat64{Float64: float64(sp.Alt), Valid: true}
	}

	return &data
}

func fromTelemetryData(data *telemetryData) (*telemetry.Telemetry, error) {
	m, err := flight.ParseMode(data.Mode)
	if err != nil {
		return nil, fmt.Errorf("parsing mode: %w", err)
	}

	t := telemetry.Telemetry{
		Timestamp:     time.Duration(data.VirtualTime) * time.Microsecond,
		Latitude:      data.Latitude,
		Longitude:     data.Longitude,
		Altitude:      data.Altitude,
		Yaw:           data.Yaw,
		VelocityNorth: data.VelocityNorth,
		VelocityEast:  data.VelocityEast,
		VelocityDown:  data.VelocityDown,
		Mode:          m,
		StationMode:   m.GroundStation(),
		LandedState:   m.LandedState(),
		Armed:         data.Armed,
	}

	if data.SetpointLat.Valid && data.SetpointLon.Valid && data.SetpointAlt.Valid {
		t.Setpoint = &flight.Position{
			Lat: data.SetpointLat.Float64,
			Lon: data.SetpointLon.Float64,
			Alt: float32(data.SetpointAlt.Float64),
		}
	}

	return &t, nil
}
