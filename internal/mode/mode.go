package mode

import (
	"github.com/roman-kulish/flight-bridge/internal/flight"
)

const (
	defaultTakeoffAltitude   = 10.0 // meters above the activation position
	defaultAltitudeThreshold = 0.5  // meters
	defaultAcceptanceRadius  = 2.0  // meters
	defaultClimbRate         = 0.5  // m/s
	defaultDescentRate       = 0.5  // m/s
)

// Config holds the tuning shared by all flight modes
type Config struct {
	TakeoffAltitude   float64 `yaml:"takeoffAltitude"`
	AltitudeThreshold float64 `yaml:"altitudeThreshold"`
	AcceptanceRadius  float64 `yaml:"acceptanceRadius"`
	ClimbRate         float64 `yaml:"climbRate"`
	DescentRate       float64 `yaml:"descentRate"`
}

// DefaultConfig returns the stock mode tuning
func DefaultConfig() Config {
	return Config{
		TakeoffAltitude:   defaultTakeoffAltitude,
		AltitudeThreshold: defaultAltitudeThreshold,
		AcceptanceRadius:  defaultAcceptanceRadius,
		ClimbRate:         defaultClimbRate,
		DescentRate:       defaultDescentRate,
	}
}

// State is handed to every hook of every mode on each tick. Modes read the
// vehicle position from it and write their setpoint into it.
type State struct {
	Now      uint64           // virtual time in microseconds
	Position flight.Position  // latest vehicle position
	Home     flight.Position  // position the vehicle took off from
	Waypoint *flight.Position // target for Heading, nil when none was uploaded

	setpoint    flight.Position
	hasSetpoint bool
}

// SetSetpoint records the setpoint to publish after the current hook
func (s *State) SetSetpoint(p flight.Position) {
	s.setpoint = p
	s.hasSetpoint = true
}

// Setpoint returns the setpoint written during the last hook, if any
func (s *State) Setpoint() (flight.Position, bool) {
	return s.setpoint, s.hasSetpoint
}

// ClearSetpoint forgets the setpoint before the next round of hooks
func (s *State) ClearSetpoint() {
	s.setpoint = flight.Position{}
	s.hasSetpoint = false
}

// Behavior is the logic of one flight mode. OnActivation and OnInactivation
// run once on the edges, OnActive and OnInactive on every other tick.
type Behavior interface {
	Kind() flight.Mode
	OnActivation(s *State)
	OnActive(s *State)
	OnInactivation(s *State)
	OnInactive(s *State)
	Complete(s *State) bool
}

// Lifecycle turns a per-tick active flag into Behavior edge hooks
type Lifecycle struct {
	Behavior
	active bool
}

// NewLifecycle wraps b, starting inactive
func NewLifecycle(b Behavior) *Lifecycle {
	return &Lifecycle{Behavior: b}
}

// Run dispatches one tick to the hook matching the active flag and its edge
func (l *Lifecycle) Run(active bool, s *State) {
	switch {
	case active && !l.active:
		l.OnActivation(s)
	case active:
		l.OnActive(s)
	case l.active:
		l.OnInactivation(s)
	default:
		l.OnInactive(s)
	}
	l.active = active
}

// Active reports whether the last Run was an active one
func (l *Lifecycle) Active() bool {
	return l.active
}

// MarkActive sets the active flag without running any hook
func (l *Lifecycle) MarkActive(active bool) {
	l.active = active
}

// New returns the stock behavior for m
func New(m flight.Mode, cfg Config) Behavior {
	switch m {
	case flight.Ground:
		return &Ground{}
	case flight.Takeoff:
		return &Takeoff{config: cfg}
	case flight.Hold:
		return &Hold{}
	case flight.Heading:
		return &Heading{config: cfg}
	case flight.Land:
		return &Land{config: cfg}
	default:
		panic("mode: no behavior for " + m.String())
	}
}

// idle supplies no-op hooks for embedding
type idle struct{}

func (idle) OnActivation(*State)   {}
func (idle) OnActive(*State)       {}
func (idle) OnInactivation(*State) {}
func (idle) OnInactive(*State)     {}
func (idle) Complete(*State) bool  { return false }
