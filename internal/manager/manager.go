package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sasha-s/go-deadlock"

	"github.com/roman-kulish/flight-bridge/internal/bus"
	"github.com/roman-kulish/flight-bridge/internal/clock"
	"github.com/roman-kulish/flight-bridge/internal/flight"
	"github.com/roman-kulish/flight-bridge/internal/navigator"
)

const (
	// DefaultControlRate is the rate of the control loop in Hz
	DefaultControlRate = 50.0
)

var (
	// ErrInvalidTransition is returned when a requested mode change is not an edge of the transition table
	ErrInvalidTransition = errors.New("invalid mode transition")

	// ErrNotInitialized is returned when the manager is used before InitializeModes
	ErrNotInitialized = errors.New("modes are not initialized")

	// ErrAlreadyInitialized is returned by a second InitializeModes call
	ErrAlreadyInitialized = errors.New("modes are already initialized")

	// ErrArmingDeferred is returned by ActivateTakeoff while the vehicle is not armed yet
	ErrArmingDeferred = errors.New("takeoff deferred until the vehicle is armed")

	// ErrDisarmInFlight is returned by Disarm unless the current mode is Ground
	ErrDisarmInFlight = errors.New("cannot disarm while in flight")
)

// Vehicle is the vehicle-state collaborator the manager arms and keeps in
// sync with the current mode
type Vehicle interface {
	IsArmed() bool
	IsArming() bool
	Arm()
	Disarm() error
	SetMode(m flight.Mode)
}

// Stats are counters of the control loop
type Stats struct {
	Ticks    uint64 `json:"ticks"`
	Overruns uint64 `json:"overruns"`
}

// WithLogger sets the logger for the manager
func WithLogger(logger *slog.Logger) func(*Manager) {
	return func(m *Manager) {
		m.logger = logger.With(slog.String("component", "manager"))
	}
}

// WithControlRate sets the control loop rate in Hz
func WithControlRate(hz float64) func(*Manager) {
	return func(m *Manager) {
		if hz > 0 {
			m.period = time.Duration(float64(time.Second) / hz)
		}
	}
}

// WithPacer sets the time base of the control loop. The default is wall-clock time.
func WithPacer(p clock.Pacer) func(*Manager) {
	return func(m *Manager) {
		m.pacer = p
	}
}

// WithClock stamps transitions and mode ticks with the virtual time of c
func WithClock(c *clock.Clock) func(*Manager) {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithBus publishes a flight.ModeChange on flight.TopicModeChanged after every
// accepted transition
func WithBus(b *bus.Bus) func(*Manager) {
	return func(m *Manager) {
		m.bus = b
	}
}

// Manager owns the current flight mode. It validates every transition
// against the transition table, runs the selected mode at a fixed rate and
// follows completed modes into their successors.
type Manager struct {
	nav     *navigator.Navigator
	vehicle Vehicle
	bus     *bus.Bus
	clock   *clock.Clock

	mu          deadlock.Mutex // transition boundary
	current     flight.Mode
	initialized bool

	period   time.Duration
	pacer    clock.Pacer
	ticks    atomic.Uint64
	overruns atomic.Uint64

	runMu     sync.Mutex // serializes Start and Stop
	isRunning atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	logger *slog.Logger
}

// New creates a manager driving nav and mirroring modes into vehicle
func New(nav *navigator.Navigator, vehicle Vehicle, options ...func(*Manager)) *Manager {
	m := Manager{
		nav:     nav,
		vehicle: vehicle,
		period:  time.Duration(float64(time.Second) / DefaultControlRate),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&m)
	}

	if m.pacer == nil {
		m.pacer = clock.NewWallPacer()
	}

	return &m
}

// InitializeModes selects Ground without running its setup hook and syncs the
// vehicle mirror. It must be called once before Start.
func (m *Manager) InitializeModes() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return ErrAlreadyInitialized
	}

	m.nav.Reset(flight.Ground)
	m.current = flight.Ground
	m.vehicle.SetMode(flight.Ground)
	m.initialized = true

	m.logger.Info("modes initialized", slog.String("mode", m.current.String()))
	return nil
}

// Start spawns the control loop. Starting a running manager is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	initialized := m.initialized
	m.mu.Unlock()

	if !initialized {
		return ErrNotInitialized
	}

	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.isRunning.Load() {
		return nil
	}
	m.release() // a loop that ended with its parent context

	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	m.isRunning.Store(true)
	go m.controlLoop(ctx)

	return nil
}

// Stop ends the control loop and waits for it. Stopping a manager that is
// not running is a no-op.
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	m.release()
}

// release must be called with m.runMu held
func (m *Manager) release() {
	if m.cancel == nil {
		return
	}

	m.cancel()
	m.wg.Wait()
	m.cancel = nil
}

// IsRunning returns true while the control loop runs
func (m *Manager) IsRunning() bool {
	return m.isRunning.Load()
}

// ChangeMode performs a requested transition. It fails with
// ErrInvalidTransition, leaving the mode untouched, when the pair is not an
// edge of the transition table.
func (m *Manager) ChangeMode(requested flight.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}

	return m.transition(requested, false)
}

// ActivateTakeoff arms the vehicle if needed and enters Takeoff once armed.
// While the vehicle is not armed it returns ErrArmingDeferred and the caller
// is expected to retry; only one arm request is issued while arming is in
// progress.
func (m *Manager) ActivateTakeoff() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}

	if !m.vehicle.IsArmed() {
		if !m.vehicle.IsArming() {
			m.logger.Info("arming before takeoff")
			m.vehicle.Arm()
		}
		return ErrArmingDeferred
	}

	return m.transition(flight.Takeoff, false)
}

// ActivateLand enters Land. From Heading it first goes to Hold, and a second
// call is needed to land.
func (m *Manager) ActivateLand() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}

	if m.current == flight.Heading {
		m.logger.Info("leaving heading before landing")
		return m.transition(flight.Hold, false)
	}

	return m.transition(flight.Land, false)
}

// Disarm disarms the vehicle. It is refused with ErrDisarmInFlight unless the
// current mode is Ground, and it is ordered with every transition so that a
// takeoff never proceeds on a vehicle disarmed after its arm check.
func (m *Manager) Disarm() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}
	if m.current != flight.Ground {
		return fmt.Errorf("%w: mode %s", ErrDisarmInFlight, m.current)
	}

	return m.vehicle.Disarm()
}

// CurrentMode returns the current flight mode
func (m *Manager) CurrentMode() flight.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current
}

// Stats returns the control loop counters
func (m *Manager) Stats() Stats {
	return Stats{
		Ticks:    m.ticks.Load(),
		Overruns: m.overruns.Load(),
	}
}

// transition must be called with m.mu held
func (m *Manager) transition(requested flight.Mode, auto bool) error {
	from := m.current
	if !flight.CanTransition(from, requested) {
		m.logger.Warn("rejected mode transition",
			slog.String("from", from.String()),
			slog.String("to", requested.String()))
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, requested)
	}

	now := m.now()
	m.nav.Select(requested, now)
	m.current = requested
	m.vehicle.SetMode(requested)

	m.logger.Info("mode changed",
		slog.String("from", from.String()),
		slog.String("to", requested.String()),
		slog.Bool("auto", auto))

	if m.bus != nil {
		bus.Publish(m.bus, flight.TopicModeChanged, flight.ModeChange{
			From: from,
			To:   requested,
			Auto: auto,
			Time: now,
		})
	}

	return nil
}

func (m *Manager) controlLoop(ctx context.Context) {
	defer m.wg.Done()
	defer m.isRunning.Store(false)

	m.logger.Info("control loop started", slog.Duration("period", m.period))

	for ctx.Err() == nil {
		begin := m.pacer.Now()
		m.tick()
		elapsed := m.pacer.Now() - begin

		if elapsed > m.period {
			n := m.overruns.Add(1)
			m.logger.Warn("control loop missed its rate",
				slog.Duration("period", m.period),
				slog.Duration("elapsed", elapsed),
				slog.String("overruns", humanize.Comma(int64(n))))
			continue
		}

		m.pacer.Wait(ctx, m.period-elapsed)
	}

	m.logger.Info("control loop stopped",
		slog.String("ticks", humanize.Comma(int64(m.ticks.Load()))),
		slog.String("overruns", humanize.Comma(int64(m.overruns.Load()))))
}

// tick runs the current mode for one period and follows it into its
// successor when it reports completion
func (m *Manager) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return
	}
	m.ticks.Add(1)

	if !m.nav.Tick(m.now()) {
		return
	}

	next, ok := flight.Successor(m.current)
	if !ok {
		return
	}
	if err := m.transition(next, true); err != nil {
		m.logger.Error(err.Error())
	}
}

func (m *Manager) now() uint64 {
	if m.clock == nil {
		return 0
	}
	return m.clock.Now()
}
