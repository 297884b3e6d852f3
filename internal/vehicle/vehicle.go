package vehicle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/flight-bridge/internal/clock"
	"github.com/roman-kulish/flight-bridge/internal/flight"
	"github.com/roman-kulish/flight-bridge/internal/telemetry"
)

// ErrDisarmInFlight is returned when disarming is requested outside Ground
var ErrDisarmInFlight = errors.New("cannot disarm while in flight")

// WithLogger sets the logger for the vehicle
func WithLogger(logger *slog.Logger) func(*Vehicle) {
	return func(v *Vehicle) {
		v.logger = logger.With(slog.String("component", "vehicle"))
	}
}

// WithArmDelay makes arming take d of virtual time on c. Until it elapses the
// vehicle reports arming in progress.
func WithArmDelay(d time.Duration, c *clock.Clock) func(*Vehicle) {
	return func(v *Vehicle) {
		v.armDelay = d
		v.clock = c
	}
}

// WithClock timestamps telemetry snapshots with the virtual time of c
func WithClock(c *clock.Clock) func(*Vehicle) {
	return func(v *Vehicle) {
		v.clock = c
	}
}

// Vehicle mirrors the state of the simulated vehicle: arming, the current
// flight mode, the last reported position and the last setpoint. It is the
// vehicle-state collaborator of the mode manager and the telemetry provider
// of the ground link.
type Vehicle struct {
	mu          sync.RWMutex
	armed       bool
	arming      bool
	mode        flight.Mode
	position    flight.Position
	setpoint    flight.Position
	hasSetpoint bool

	armDelay time.Duration
	clock    *clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// New creates a disarmed vehicle on the ground with a discard logger
func New(options ...func(*Vehicle)) *Vehicle {
	v := Vehicle{
		mode:   flight.Ground,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&v)
	}

	v.ctx, v.cancel = context.WithCancel(context.Background())
	return &v
}

// Arm requests arming. Without an arm delay the vehicle arms immediately;
// otherwise arming completes once the delay has elapsed on the virtual clock.
// Requests while armed or arming are ignored.
func (v *Vehicle) Arm() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.armed || v.arming {
		return
	}

	if v.armDelay <= 0 || v.clock == nil {
		v.armed = true
		v.logger.Info("armed")
		return
	}

	v.arming = true
	v.logger.Info("arming", slog.Duration("delay", v.armDelay))

	v.wg.Add(1)
	go v.completeArming()
}

func (v *Vehicle) completeArming() {
	defer v.wg.Done()

	s := v.clock.NewSleeper()
	defer s.Close()

	reason := s.SleepContext(v.ctx, v.armDelay)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.arming = false
	if reason != clock.TimedOut {
		v.logger.Warn("arming aborted", slog.String("reason", reason.String()))
		return
	}
	v.armed = true
	v.logger.Info("armed")
}

// Disarm disarms the vehicle. It is refused unless the vehicle is on the ground.
func (v *Vehicle) Disarm() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.mode != flight.Ground {
		return ErrDisarmInFlight
	}
	if v.armed {
		v.logger.Info("disarmed")
	}
	v.armed = false
	return nil
}

// IsArmed returns true once arming has completed
func (v *Vehicle) IsArmed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.armed
}

// IsArming returns true while an arm request is in progress
func (v *Vehicle) IsArming() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.arming
}

// SetMode mirrors the current flight mode. Returning to Ground disarms.
func (v *Vehicle) SetMode(m flight.Mode) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.mode = m
	if m == flight.Ground && v.armed {
		v.armed = false
		v.logger.Info("disarmed on landing")
	}
}

// Mode returns the mirrored flight mode
func (v *Vehicle) Mode() flight.Mode {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.mode
}

// SetPosition records the latest position reported by the simulator
func (v *Vehicle) SetPosition(p flight.Position) {
	v.mu.Lock()
	v.position = p
	v.mu.Unlock()
}

// SetSetpoint records the latest setpoint written by the active mode
func (v *Vehicle) SetSetpoint(p flight.Position) {
	v.mu.Lock()
	v.setpoint = p
	v.hasSetpoint = true
	v.mu.Unlock()
}

// Get implements telemetry.Provider
func (v *Vehicle) Get() *telemetry.Telemetry {
	v.mu.RLock()
	defer v.mu.RUnlock()

	t := telemetry.Telemetry{
		Latitude:      v.position.Lat,
		Longitude:     v.position.Lon,
		Altitude:      float64(v.position.Alt),
		Yaw:           float64(v.position.Yaw),
		VelocityNorth: float64(v.position.Vx),
		VelocityEast:  float64(v.position.Vy),
		VelocityDown:  float64(v.position.Vz),
		Mode:          v.mode,
		StationMode:   v.mode.GroundStation(),
		LandedState:   v.mode.LandedState(),
		Armed:         v.armed,
	}
	if v.clock != nil {
		t.Timestamp = v.clock.Elapsed()
	}
	if v.hasSetpoint {
		sp := v.setpoint
		t.Setpoint = &sp
	}

	return &t
}

// Close aborts a pending arm request and waits for it to finish
func (v *Vehicle) Close() {
	v.cancel()
	v.wg.Wait()
}
