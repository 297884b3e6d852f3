package clock

import (
	"context"
	"time"
)

// Pacer is the time base of a fixed-rate loop: it reports elapsed time and
// waits out the remainder of a period. Wall and virtual time both satisfy it.
type Pacer interface {
	Now() time.Duration
	Wait(ctx context.Context, d time.Duration)
}

// WallPacer paces a loop on the monotonic wall clock
type WallPacer struct {
	start time.Time
}

// NewWallPacer creates a wall-clock pacer starting now
func NewWallPacer() *WallPacer {
	return &WallPacer{start: time.Now()}
}

func (p *WallPacer) Now() time.Duration {
	return time.Since(p.start)
}

func (p *WallPacer) Wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// VirtualPacer paces a loop on the virtual clock through a dedicated sleeper.
// It belongs to a single loop goroutine.
type VirtualPacer struct {
	clock   *Clock
	sleeper *Sleeper
}

// NewPacer creates a pacer driven by the virtual clock
func (c *Clock) NewPacer() *VirtualPacer {
	return &VirtualPacer{clock: c, sleeper: c.NewSleeper()}
}

func (p *VirtualPacer) Now() time.Duration {
	return p.clock.Elapsed()
}

func (p *VirtualPacer) Wait(ctx context.Context, d time.Duration) {
	p.sleeper.SleepContext(ctx, d)
}

// Close releases the pacer's alarm slot
func (p *VirtualPacer) Close() {
	p.sleeper.Close()
}
