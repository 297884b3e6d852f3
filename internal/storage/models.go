package storage

import (
	"database/sql"
	"time"
)

type transitionData struct {
	SessionID   int64
	VirtualTime int64
	FromMode    string
	ToMode      string
	Auto        bool
	RecordedAt  time.Time
}

type telemetryData struct {
	SessionID     int64
	VirtualTime   int64
	Latitude      float64
	Longitude     float64
	Altitude      float64
	Yaw           float64
	VelocityNorth float64
	VelocityEast  float64
	VelocityDown  float64
	Mode          string
	StationMode   string
	LandedState   string
	Armed         bool
	SetpointLat   sql.NullFloat64
	SetpointLon   sql.NullFloat64
	SetpointAlt   sql.NullFloat64
}
