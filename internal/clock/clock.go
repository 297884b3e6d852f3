package clock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// TimedOut means the alarm target was reached by the virtual clock
	TimedOut WakeReason = iota

	// Interrupted means the waiter was woken before its target, by an explicit
	// interrupt, a cancelled context or a WakeAll teardown
	Interrupted
)

// ErrClockRegression is returned when the time source tries to move the clock backwards
var ErrClockRegression = errors.New("virtual clock regression")

// WakeReason tells a sleeper why it was released
type WakeReason uint8

func (r WakeReason) String() string {
	switch r {
	case TimedOut:
		return "timed out"
	case Interrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("wake(%d)", uint8(r))
	}
}

// alarm is a single wait slot. Slots live in Clock.slots at a stable index for
// the lifetime of the clock and are reused rather than freed.
type alarm struct {
	target uint64
	gen    uint64
	wake   chan WakeReason // capacity 1, at most one send per arming

	armed    bool // member of the pending set
	signaled bool
	retired  bool
}

// WithLogger sets the logger for the clock
func WithLogger(logger *slog.Logger) func(*Clock) {
	return func(c *Clock) {
		c.logger = logger.With(slog.String("component", "clock"))
	}
}

// Clock is a virtual clock with microsecond resolution. Time only moves when
// SetTime is called, and any number of goroutines may block in a Sleeper
// until the clock reaches their target.
type Clock struct {
	now atomic.Uint64

	mu      sync.Mutex
	slots   []*alarm
	free    []int
	started bool

	logger *slog.Logger
}

// New creates a virtual clock at time zero with a discard logger
func New(options ...func(*Clock)) *Clock {
	c := Clock{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Now returns the current virtual time in microseconds. It never blocks.
func (c *Clock) Now() uint64 {
	return c.now.Load()
}

// Elapsed returns the current virtual time as a duration since the clock epoch
func (c *Clock) Elapsed() time.Duration {
	return time.Duration(c.now.Load()) * time.Microsecond
}

// SetTime advances the clock to t microseconds and releases every armed alarm
// whose target has been reached. Alarms retired by their owners are dropped
// from the pending set during the same pass. A value lower than the current
// time is rejected and leaves the clock untouched.
func (c *Clock) SetTime(t uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.now.Load()
	if t < current {
		c.logger.Warn("rejected clock regression",
			slog.Uint64("current", current),
			slog.Uint64("requested", t))
		return fmt.Errorf("%w: %d < %d", ErrClockRegression, t, current)
	}

	if !c.started {
		c.started = true
		c.logger.Info("virtual clock started", slog.Duration("at", time.Duration(t)*time.Microsecond))
	}

	c.now.Store(t)

	for _, a := range c.slots {
		if !a.armed {
			continue
		}
		if a.retired {
			a.armed = false
			continue
		}
		if !a.signaled && a.target <= t {
			a.signaled = true
			a.wake <- TimedOut
		}
	}

	return nil
}

// Sleep blocks until the clock has advanced by d, using a slot borrowed for
// the duration of the call. Long-lived waiters should hold their own Sleeper.
func (c *Clock) Sleep(d time.Duration) WakeReason {
	s := c.NewSleeper()
	defer s.Close()

	return s.Sleep(d)
}

// WakeAll interrupts every goroutine currently blocked on the clock
func (c *Clock) WakeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	for _, a := range c.slots {
		if a.armed && !a.retired && !a.signaled {
			a.signaled = true
			a.wake <- Interrupted
			n++
		}
	}

	if n > 0 {
		c.logger.Debug("interrupted sleepers", slog.Int("count", n))
	}
}

// NewSleeper hands out a wait slot owned by the caller until Close
func (c *Clock) NewSleeper() *Sleeper {
	c.mu.Lock()
	defer c.mu.Unlock()

	var idx int
	if n := len(c.free); n > 0 {
		idx = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		idx = len(c.slots)
		c.slots = append(c.slots, &alarm{wake: make(chan WakeReason, 1)})
	}

	return &Sleeper{clock: c, slot: idx}
}

// pending returns the number of alarms that are armed and not yet retired
func (c *Clock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	for _, a := range c.slots {
		if a.armed && !a.retired {
			n++
		}
	}
	return n
}

// Sleeper owns one alarm slot of a Clock. Repeated sleeps through the same
// Sleeper reuse that slot. A Sleeper must not be used from two goroutines at once.
type Sleeper struct {
	clock  *Clock
	slot   int
	closed bool
}

// Sleep blocks until the virtual clock has advanced by d from now
func (s *Sleeper) Sleep(d time.Duration) WakeReason {
	return s.SleepContext(context.Background(), d)
}

// SleepContext is Sleep that is also interrupted when ctx is done
func (s *Sleeper) SleepContext(ctx context.Context, d time.Duration) WakeReason {
	now := s.clock.Now()
	if d <= 0 {
		return s.SleepUntilContext(ctx, now)
	}
	return s.SleepUntilContext(ctx, now+uint64(d.Microseconds()))
}

// SleepUntil blocks until the virtual clock reaches target microseconds
func (s *Sleeper) SleepUntil(target uint64) WakeReason {
	return s.SleepUntilContext(context.Background(), target)
}

// SleepUntilContext is SleepUntil that is also interrupted when ctx is done
func (s *Sleeper) SleepUntilContext(ctx context.Context, target uint64) WakeReason {
	if s.closed {
		panic("clock: sleep on closed sleeper")
	}
	if ctx.Err() != nil {
		return Interrupted
	}

	c := s.clock
	c.mu.Lock()
	a := c.slots[s.slot]
	if target <= c.now.Load() {
		a.retired = true
		c.mu.Unlock()
		return TimedOut
	}

	select {
	case <-a.wake: // stale signal from an earlier arming
	default:
	}
	a.gen++
	a.target = target
	a.signaled = false
	a.retired = false
	a.armed = true
	gen := a.gen
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { s.interrupt(gen) })
	reason := <-a.wake
	stop()

	c.mu.Lock()
	a.retired = true
	c.mu.Unlock()

	return reason
}

// Interrupt wakes the goroutine blocked on this sleeper, if any, with Interrupted
func (s *Sleeper) Interrupt() {
	s.clock.mu.Lock()
	gen := s.clock.slots[s.slot].gen
	s.clock.mu.Unlock()

	s.interrupt(gen)
}

func (s *Sleeper) interrupt(gen uint64) {
	c := s.clock
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.slots[s.slot]
	if a.gen != gen || !a.armed || a.retired || a.signaled {
		return
	}
	a.signaled = true
	a.wake <- Interrupted
}

// Close returns the slot to the clock for reuse by a later sleeper
func (s *Sleeper) Close() {
	if s.closed {
		return
	}
	s.closed = true

	c := s.clock
	c.mu.Lock()
	defer c.mu.Unlock()

	c.slots[s.slot].retired = true
	c.free = append(c.free, s.slot)
}
