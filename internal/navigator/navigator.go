package navigator

import (
	"io"
	"log/slog"
	"sync"

	"github.com/roman-kulish/flight-bridge/internal/bus"
	"github.com/roman-kulish/flight-bridge/internal/flight"
	"github.com/roman-kulish/flight-bridge/internal/mode"
)

// WithLogger sets the logger for the navigator
func WithLogger(logger *slog.Logger) func(*Navigator) {
	return func(n *Navigator) {
		n.logger = logger.With(slog.String("component", "navigator"))
	}
}

// WithModeConfig sets the tuning of the stock mode behaviors
func WithModeConfig(cfg mode.Config) func(*Navigator) {
	return func(n *Navigator) {
		n.config = cfg
	}
}

// WithBehavior replaces the stock behavior of b.Kind()
func WithBehavior(b mode.Behavior) func(*Navigator) {
	return func(n *Navigator) {
		n.overrides = append(n.overrides, b)
	}
}

// Navigator holds one behavior per flight mode and ticks all of them every
// period, with only the selected one active. Setpoints written by the modes
// and completion edges leave through the bus.
//
// Tick, Select and Reset must be serialized by the caller; SetPosition and
// SetWaypoint may be called from any goroutine.
type Navigator struct {
	bus       *bus.Bus
	config    mode.Config
	overrides []mode.Behavior
	logger    *slog.Logger

	modes     [flight.NumModes]*mode.Lifecycle
	current   flight.Mode
	state     mode.State
	completed bool

	mu       sync.Mutex // guards position and waypoint
	position flight.Position
	waypoint *flight.Position
}

// New creates a navigator with Ground selected
func New(b *bus.Bus, options ...func(*Navigator)) *Navigator {
	n := Navigator{
		bus:    b,
		config: mode.DefaultConfig(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&n)
	}

	for _, m := range flight.Modes() {
		n.modes[m] = mode.NewLifecycle(mode.New(m, n.config))
	}
	for _, behavior := range n.overrides {
		n.modes[behavior.Kind()] = mode.NewLifecycle(behavior)
	}
	n.overrides = nil

	return &n
}

// Reset makes m the selected mode and marks it active without running any
// hook. Every other mode is marked inactive.
func (n *Navigator) Reset(m flight.Mode) {
	for i, l := range n.modes {
		l.MarkActive(flight.Mode(i) == m)
	}
	n.current = m
	n.completed = false
}

// Select deactivates the current mode and activates m. The outgoing mode's
// teardown hook runs before the incoming mode's setup hook.
func (n *Navigator) Select(m flight.Mode, now uint64) {
	n.refresh(now)

	n.modes[n.current].Run(false, &n.state)
	n.current = m
	n.completed = false
	n.modes[m].Run(true, &n.state)

	n.logger.Debug("mode selected", slog.String("mode", m.String()))
	n.publishSetpoint()
}

// Tick runs one period: every mode is ticked, the selected one as active.
// It reports whether the selected mode is complete after its tick.
func (n *Navigator) Tick(now uint64) bool {
	n.refresh(now)

	for i, l := range n.modes {
		l.Run(flight.Mode(i) == n.current, &n.state)
	}
	n.publishSetpoint()

	complete := n.modes[n.current].Complete(&n.state)
	if complete && !n.completed {
		n.logger.Debug("mode complete", slog.String("mode", n.current.String()))
		bus.Publish(n.bus, flight.TopicModeComplete, n.current)
	}
	n.completed = complete

	return complete
}

// Current returns the selected mode
func (n *Navigator) Current() flight.Mode {
	return n.current
}

// Home returns the home position as last recorded by the Ground mode
func (n *Navigator) Home() flight.Position {
	return n.state.Home
}

// SetPosition records the latest vehicle position for the next tick
func (n *Navigator) SetPosition(p flight.Position) {
	n.mu.Lock()
	n.position = p
	n.mu.Unlock()
}

// Position returns the latest vehicle position
func (n *Navigator) Position() flight.Position {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.position
}

// SetWaypoint sets the target used the next time Heading is entered
func (n *Navigator) SetWaypoint(p flight.Position) {
	n.mu.Lock()
	n.waypoint = &p
	n.mu.Unlock()

	n.logger.Info("waypoint set",
		slog.Float64("lat", p.Lat),
		slog.Float64("lon", p.Lon),
		slog.Float64("alt", float64(p.Alt)))
}

// ClearWaypoint removes the Heading target
func (n *Navigator) ClearWaypoint() {
	n.mu.Lock()
	n.waypoint = nil
	n.mu.Unlock()

	n.logger.Info("waypoint cleared")
}

// Waypoint returns a copy of the Heading target, nil when none is set
func (n *Navigator) Waypoint() *flight.Position {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.waypoint == nil {
		return nil
	}
	wp := *n.waypoint
	return &wp
}

func (n *Navigator) refresh(now uint64) {
	n.mu.Lock()
	n.state.Position = n.position
	if n.waypoint != nil {
		wp := *n.waypoint
		n.state.Waypoint = &wp
	} else {
		n.state.Waypoint = nil
	}
	n.mu.Unlock()

	n.state.Now = now
	n.state.ClearSetpoint()
}

func (n *Navigator) publishSetpoint() {
	if sp, ok := n.state.Setpoint(); ok {
		bus.Publish(n.bus, flight.TopicPositionSetpoint, sp)
	}
}
