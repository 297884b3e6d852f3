package telemetry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roman-kulish/flight-bridge/internal/clock"
	"github.com/roman-kulish/flight-bridge/internal/flight"
)

type providerFunc func() *Telemetry

func (f providerFunc) Get() *Telemetry { return f() }

func TestPublishOnce(t *testing.T) {
	var seen []*Telemetry
	snapshot := &Telemetry{Mode: flight.Hold, Altitude: 12}

	p := NewPublisher(providerFunc(func() *Telemetry { return snapshot }), clock.NewWallPacer(),
		WithSink(SinkFunc(func(t *Telemetry) { seen = append(seen, t) })),
		WithSink(SinkFunc(func(t *Telemetry) { seen = append(seen, t) })))

	p.PublishOnce()

	if len(seen) != 2 || seen[0] != snapshot || seen[1] != snapshot {
		t.Fatalf("sinks received %v, want the snapshot twice", seen)
	}
	if p.Published() != 1 {
		t.Errorf("Published() = %d, want 1", p.Published())
	}
}

func TestPublishOnceSkipsNilSnapshot(t *testing.T) {
	var calls int
	p := NewPublisher(providerFunc(func() *Telemetry { return nil }), clock.NewWallPacer(),
		WithSink(SinkFunc(func(*Telemetry) { calls++ })))

	p.PublishOnce()

	if calls != 0 || p.Published() != 0 {
		t.Errorf("calls = %d, published = %d, want 0 and 0", calls, p.Published())
	}
}

func TestRunOnVirtualClock(t *testing.T) {
	c := clock.New()
	pacer := c.NewPacer()
	defer pacer.Close()

	var received atomic.Int64
	p := NewPublisher(providerFunc(func() *Telemetry {
		return &Telemetry{Timestamp: c.Elapsed()}
	}), pacer,
		WithRate(1),
		WithSink(SinkFunc(func(*Telemetry) { received.Add(1) })))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()

	waitFor(t, func() bool { return received.Load() == 1 })

	// a second Run must not start another loop
	if err := p.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run error = %v, want ErrAlreadyRunning", err)
	}

	// half a period publishes nothing new
	if err := c.SetTime(500_000); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if n := received.Load(); n != 1 {
		t.Errorf("received %d snapshots after half a period, want 1", n)
	}

	if err := c.SetTime(1_000_000); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	waitFor(t, func() bool { return received.Load() == 2 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if p.IsRunning() {
		t.Errorf("IsRunning() = true after Run returned")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
