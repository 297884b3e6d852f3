package flight

import "math"

const (
	// TopicVehiclePosition carries Position values decoded from the simulator
	TopicVehiclePosition = "vehicle_position"

	// TopicPositionSetpoint carries Position values written by the active mode
	TopicPositionSetpoint = "position_setpoint"

	// TopicModeComplete carries the Mode that just reported completion
	TopicModeComplete = "mode_complete"

	// TopicModeChanged carries a ModeChange after every accepted transition
	TopicModeChanged = "mode_changed"
)

const earthRadius = 6_371_000.0 // meters

// Position is a position or setpoint record. Velocities are NED in m/s, so a
// negative Vz climbs.
type Position struct {
	Lat float64 `json:"lat" msgpack:"lat"` // degrees
	Lon float64 `json:"lon" msgpack:"lon"` // degrees
	Alt float32 `json:"alt" msgpack:"alt"` // meters above mean sea level
	Yaw float32 `json:"yaw" msgpack:"yaw"` // degrees
	Vx  float32 `json:"vx" msgpack:"vx"`
	Vy  float32 `json:"vy" msgpack:"vy"`
	Vz  float32 `json:"vz" msgpack:"vz"`
}

// HorizontalDistance returns the ground distance in meters between p and q
// using an equirectangular approximation, adequate over a few kilometers.
func (p Position) HorizontalDistance(q Position) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := q.Lat * math.Pi / 180
	dLon := (q.Lon - p.Lon) * math.Pi / 180

	x := dLon * math.Cos((lat1+lat2)/2)
	y := lat2 - lat1
	return math.Hypot(x, y) * earthRadius
}

// AltitudeDelta returns the absolute altitude difference in meters
func (p Position) AltitudeDelta(q Position) float64 {
	return math.Abs(float64(p.Alt) - float64(q.Alt))
}

// ModeChange records an accepted mode transition
type ModeChange struct {
	From Mode   `json:"from"`
	To   Mode   `json:"to"`
	Auto bool   `json:"auto"` // triggered by mode completion rather than a request
	Time uint64 `json:"time"` // virtual time in microseconds
}
