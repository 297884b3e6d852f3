package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (run_id,
                      name,
                      start_time,
                      config)
VALUES (?, ?, ?, ?)`

	selectSessionSQL = `
SELECT 
    id, 
    run_id, 
    name, 
    start_time, 
    config 
FROM sessions 
WHERE 
    id = ?`

	selectSessionsSQL = `
SELECT 
    id, 
    run_id, 
    name, 
    start_time, 
    config 
FROM sessions
ORDER BY start_time, id`

	insertTransitionSQL = `
INSERT INTO transitions (session_id,
                         virtual_time,
                         from_mode,
                         to_mode,
                         auto,
                         recorded_at)
VALUES (?, ?, ?, ?, ?, ?)`

	selectTransitionsSQL = `
SELECT 
    virtual_time, 
    from_mode, 
    to_mode, 
    auto 
FROM transitions 
WHERE 
    session_id = ?
ORDER BY virtual_time, id`

	insertTelemetrySQL = `
INSERT INTO telemetry (session_id,
                       virtual_time,
                       latitude,
                       longitude,
                       altitude,
                       yaw,
                       velocity_north,
                       velocity_east,
                       velocity_down,
                       mode,
                       station_mode,
                       landed_state,
                       armed,
                       setpoint_lat,
                       setpoint_lon,
                       setpoint_alt)
VALUES `

	telemetryValuesSQL = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	telemetryColumns = 16

	selectTelemetrySQL = `
SELECT 
    virtual_time,
    latitude,
    longitude,
    altitude,
    yaw,
    velocity_north,
    velocity_east,
    velocity_down,
    mode,
    armed,
    setpoint_lat,
    setpoint_lon,
    setpoint_alt
FROM telemetry
WHERE 
    session_id = ?
    AND virtual_time BETWEEN ? AND ?
ORDER BY virtual_time, id`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_transitions_session_time ON transitions (session_id, virtual_time);
CREATE INDEX IF NOT EXISTS idx_telemetry_session_time ON telemetry (session_id, virtual_time);`
)

//go:embed schema.sql
var initSchemaSQL string
