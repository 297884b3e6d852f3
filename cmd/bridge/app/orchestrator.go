package app

import (
	"log/slog"

	"github.com/roman-kulish/flight-bridge/internal/bus"
	"github.com/roman-kulish/flight-bridge/internal/flight"
	"github.com/roman-kulish/flight-bridge/internal/navigator"
	"github.com/roman-kulish/flight-bridge/internal/storage"
	"github.com/roman-kulish/flight-bridge/internal/vehicle"
)

// WithRecorder sets the flight recorder receiving mode changes
func WithRecorder(r *storage.Recorder) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// Orchestrator routes bus traffic between the subsystems of the bridge: poses
// from the simulator reach the navigator and the vehicle mirror, setpoints
// reach the vehicle mirror and mode changes reach the flight recorder.
type Orchestrator struct {
	bus      *bus.Bus
	nav      *navigator.Navigator
	vehicle  *vehicle.Vehicle
	recorder *storage.Recorder

	logger *slog.Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(b *bus.Bus, nav *navigator.Navigator, v *vehicle.Vehicle, logger *slog.Logger, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		bus:     b,
		nav:     nav,
		vehicle: v,
		logger:  logger.With(slog.String("component", "orchestrator")),
	}

	for _, option := range options {
		option(&o)
	}

	return &o
}

// Wire subscribes the handlers. It must run before any producer starts
// publishing.
func (o *Orchestrator) Wire() {
	bus.Subscribe(o.bus, flight.TopicVehiclePosition, o.onVehiclePosition)
	bus.Subscribe(o.bus, flight.TopicPositionSetpoint, o.vehicle.SetSetpoint)
	bus.Subscribe(o.bus, flight.TopicModeComplete, o.onModeComplete)
	bus.Subscribe(o.bus, flight.TopicModeChanged, o.onModeChanged)
}

func (o *Orchestrator) onVehiclePosition(p flight.Position) {
	o.nav.SetPosition(p)
	o.vehicle.SetPosition(p)
}

func (o *Orchestrator) onModeComplete(m flight.Mode) {
	o.logger.Debug("mode complete", slog.String("mode", m.String()))
}

func (o *Orchestrator) onModeChanged(mc flight.ModeChange) {
	if o.recorder != nil {
		o.recorder.RecordTransition(mc)
	}
}
