package telemetry

import (
	"time"

	"github.com/roman-kulish/flight-bridge/internal/flight"
)

// Telemetry is a snapshot of the simulated vehicle as reported to the ground link
type Telemetry struct {
	Timestamp     time.Duration            `json:"timestamp"`          // Virtual time of the snapshot
	Latitude      float64                  `json:"latitude"`           // Latitude in degrees
	Longitude     float64                  `json:"longitude"`          // Longitude in degrees
	Altitude      float64                  `json:"altitude"`           // Altitude above mean sea level in meters
	Yaw           float64                  `json:"yaw"`                // Yaw angle in degrees
	VelocityNorth float64                  `json:"velocityNorth"`      // North velocity in m/s
	VelocityEast  float64                  `json:"velocityEast"`       // East velocity in m/s
	VelocityDown  float64                  `json:"velocityDown"`       // Down velocity in m/s
	Mode          flight.Mode              `json:"mode"`               // Current flight mode
	StationMode   flight.GroundStationMode `json:"stationMode"`        // Flight mode as named on the ground link
	LandedState   flight.LandedState       `json:"landedState"`        // Landed state derived from the mode
	Armed         bool                     `json:"armed"`              // Whether the vehicle is armed
	Setpoint      *flight.Position         `json:"setpoint,omitempty"` // Last setpoint written by the active mode
}

// RelativeAltitude returns the altitude above home in meters
func (t *Telemetry) RelativeAltitude(home flight.Position) float64 {
	return t.Altitude - float64(home.Alt)
}
