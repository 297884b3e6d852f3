package storage

import (
	"time"

	"github.com/roman-kulish/flight-bridge/internal/flight"
)

// Session is one bridge run recorded in the database
type Session struct {
	ID        int64
	RunID     string
	Name      string
	StartTime time.Time
	Config    *string
}

// Transition is a recorded mode change
type Transition struct {
	Time time.Duration // virtual time of the change
	From flight.Mode
	To   flight.Mode
	Auto bool
}
