package mode

import (
	"math"

	"github.com/roman-kulish/flight-bridge/internal/flight"
)

// Ground keeps the vehicle on the ground and tracks the home position
type Ground struct {
	idle
}

func (*Ground) Kind() flight.Mode { return flight.Ground }

func (g *Ground) OnActivation(s *State) {
	s.Home = s.Position
}

func (g *Ground) OnActive(s *State) {
	s.Home = s.Position
}

// Takeoff climbs to a fixed height above the position it was activated at
type Takeoff struct {
	idle
	config Config
	target flight.Position
}

func (*Takeoff) Kind() flight.Mode { return flight.Takeoff }

func (t *Takeoff) OnActivation(s *State) {
	t.target = s.Position
	t.target.Alt += float32(t.config.TakeoffAltitude)
	t.target.Vx, t.target.Vy = 0, 0
	t.target.Vz = -float32(t.config.ClimbRate)
	s.SetSetpoint(t.target)
}

func (t *Takeoff) OnActive(s *State) {
	s.SetSetpoint(t.target)
}

func (t *Takeoff) OnInactivation(*State) {
	t.target = flight.Position{}
}

func (t *Takeoff) Complete(s *State) bool {
	return s.Position.AltitudeDelta(t.target) <= t.config.AltitudeThreshold
}

// Hold keeps the vehicle at the position it was in when Hold was entered
type Hold struct {
	idle
	latched flight.Position
}

func (*Hold) Kind() flight.Mode { return flight.Hold }

func (h *Hold) OnActivation(s *State) {
	h.latched = s.Position
	h.latched.Vx, h.latched.Vy, h.latched.Vz = 0, 0, 0
	s.SetSetpoint(h.latched)
}

func (h *Hold) OnActive(s *State) {
	s.SetSetpoint(h.latched)
}

// Heading flies towards the uploaded waypoint. Without a waypoint it has
// nothing to do and completes straight away.
type Heading struct {
	idle
	config    Config
	target    flight.Position
	hasTarget bool
}

func (*Heading) Kind() flight.Mode { return flight.Heading }

func (h *Heading) OnActivation(s *State) {
	if s.Waypoint == nil {
		h.hasTarget = false
		return
	}

	h.target = *s.Waypoint
	h.target.Yaw = float32(bearing(s.Position, h.target))
	h.hasTarget = true
	s.SetSetpoint(h.target)
}

func (h *Heading) OnActive(s *State) {
	if h.hasTarget {
		s.SetSetpoint(h.target)
	}
}

func (h *Heading) OnInactivation(*State) {
	h.hasTarget = false
}

func (h *Heading) Complete(s *State) bool {
	if !h.hasTarget {
		return true
	}
	return s.Position.HorizontalDistance(h.target) <= h.config.AcceptanceRadius &&
		s.Position.AltitudeDelta(h.target) <= h.config.AltitudeThreshold
}

// Land descends in place to the home altitude
type Land struct {
	idle
	config Config
	target flight.Position
}

func (*Land) Kind() flight.Mode { return flight.Land }

func (l *Land) OnActivation(s *State) {
	l.target = s.Position
	l.target.Alt = s.Home.Alt
	l.target.Vx, l.target.Vy = 0, 0
	l.target.Vz = float32(l.config.DescentRate)
	s.SetSetpoint(l.target)
}

func (l *Land) OnActive(s *State) {
	s.SetSetpoint(l.target)
}

func (l *Land) Complete(s *State) bool {
	return s.Position.AltitudeDelta(s.Home) <= l.config.AltitudeThreshold
}

// bearing returns the initial great-circle bearing from p to q in degrees [0, 360)
func bearing(p, q flight.Position) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := q.Lat * math.Pi / 180
	dLon := (q.Lon - p.Lon) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}
