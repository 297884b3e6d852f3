package clock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// waitPending blocks until n alarms are armed, so that SetTime is known to
// see every sleeper started by the test
func waitPending(t *testing.T, c *Clock, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for c.pending() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d pending alarms, got %d", n, c.pending())
		}
		time.Sleep(time.Millisecond)
	}
}

func receive(t *testing.T, ch <-chan WakeReason) WakeReason {
	t.Helper()

	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("sleeper was not woken")
		return 0
	}
}

func assertBlocked(t *testing.T, ch <-chan WakeReason) {
	t.Helper()

	select {
	case r := <-ch:
		t.Fatalf("sleeper woke early with %s", r)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSleepZeroIntervalTimesOut(t *testing.T) {
	c := New()
	if err := c.SetTime(1_000); err != nil {
		t.Fatalf("SetTime: %v", err)
	}

	if r := c.Sleep(0); r != TimedOut {
		t.Errorf("Sleep(0) = %s, want %s", r, TimedOut)
	}
	if r := c.Sleep(-time.Second); r != TimedOut {
		t.Errorf("Sleep(-1s) = %s, want %s", r, TimedOut)
	}
	if n := c.pending(); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestSetTimeWakesDueSleepers(t *testing.T) {
	c := New()

	intervals := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
	results := make([]chan WakeReason, len(intervals))
	for i, d := range intervals {
		results[i] = make(chan WakeReason, 1)
		go func(d time.Duration, out chan<- WakeReason) {
			out <- c.Sleep(d)
		}(d, results[i])
	}
	waitPending(t, c, len(intervals))

	if err := c.SetTime(15_000); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	if r := receive(t, results[0]); r != TimedOut {
		t.Errorf("first sleeper woke with %s, want %s", r, TimedOut)
	}
	assertBlocked(t, results[1])
	assertBlocked(t, results[2])

	// an equal value is not a regression and wakes nothing new
	if err := c.SetTime(15_000); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	assertBlocked(t, results[1])

	if err := c.SetTime(30_000); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	for i := 1; i < len(results); i++ {
		if r := receive(t, results[i]); r != TimedOut {
			t.Errorf("sleeper %d woke with %s, want %s", i, r, TimedOut)
		}
	}

	if c.Now() != 30_000 {
		t.Errorf("Now() = %d, want 30000", c.Now())
	}
	if c.Elapsed() != 30*time.Millisecond {
		t.Errorf("Elapsed() = %s, want 30ms", c.Elapsed())
	}
}

func TestSetTimeLargeJumpWakesEveryone(t *testing.T) {
	c := New()

	const sleepers = 16
	var wg sync.WaitGroup
	reasons := make(chan WakeReason, sleepers)
	for i := range sleepers {
		wg.Add(1)
		go func(d time.Duration) {
			defer wg.Done()
			reasons <- c.Sleep(d)
		}(time.Duration(i+1) * time.Second)
	}
	waitPending(t, c, sleepers)

	if err := c.SetTime(uint64((time.Hour).Microseconds())); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	wg.Wait()
	close(reasons)

	var n int
	for r := range reasons {
		if r != TimedOut {
			t.Errorf("woke with %s, want %s", r, TimedOut)
		}
		n++
	}
	if n != sleepers {
		t.Errorf("woke %d sleepers, want %d", n, sleepers)
	}
}

func TestSetTimeRejectsRegression(t *testing.T) {
	c := New()
	if err := c.SetTime(5_000); err != nil {
		t.Fatalf("SetTime: %v", err)
	}

	err := c.SetTime(4_999)
	if !errors.Is(err, ErrClockRegression) {
		t.Fatalf("SetTime(4999) error = %v, want ErrClockRegression", err)
	}
	if c.Now() != 5_000 {
		t.Errorf("Now() = %d after rejected regression, want 5000", c.Now())
	}
}

func TestSleeperReusesSlot(t *testing.T) {
	c := New()
	s := c.NewSleeper()
	defer s.Close()

	for round := 1; round <= 3; round++ {
		done := make(chan WakeReason, 1)
		go func() {
			done <- s.Sleep(time.Millisecond)
		}()
		waitPending(t, c, 1)

		if err := c.SetTime(c.Now() + 1_000); err != nil {
			t.Fatalf("round %d: SetTime: %v", round, err)
		}
		if r := receive(t, done); r != TimedOut {
			t.Fatalf("round %d: woke with %s", round, r)
		}
	}

	if n := len(c.slots); n != 1 {
		t.Errorf("slots = %d, want 1", n)
	}
}

func TestClosedSleeperSlotIsRecycled(t *testing.T) {
	c := New()

	s1 := c.NewSleeper()
	s1.Close()
	s1.Close() // closing twice is harmless

	s2 := c.NewSleeper()
	defer s2.Close()

	if s1.slot != s2.slot {
		t.Errorf("second sleeper got slot %d, want recycled slot %d", s2.slot, s1.slot)
	}
	if n := len(c.slots); n != 1 {
		t.Errorf("slots = %d, want 1", n)
	}
}

func TestSleepContextCancelled(t *testing.T) {
	c := New()
	s := c.NewSleeper()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan WakeReason, 1)
	go func() {
		done <- s.SleepContext(ctx, time.Second)
	}()
	waitPending(t, c, 1)

	cancel()
	if r := receive(t, done); r != Interrupted {
		t.Errorf("woke with %s, want %s", r, Interrupted)
	}

	// a cancelled context never blocks
	if r := s.SleepContext(ctx, time.Second); r != Interrupted {
		t.Errorf("SleepContext on cancelled context = %s, want %s", r, Interrupted)
	}
}

func TestInterrupt(t *testing.T) {
	c := New()
	s := c.NewSleeper()
	defer s.Close()

	done := make(chan WakeReason, 1)
	go func() {
		done <- s.Sleep(time.Second)
	}()
	waitPending(t, c, 1)

	s.Interrupt()
	if r := receive(t, done); r != Interrupted {
		t.Errorf("woke with %s, want %s", r, Interrupted)
	}

	// reaching the old target later must not leak a wake into the next sleep
	if err := c.SetTime(2_000_000); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	go func() {
		done <- s.Sleep(time.Second)
	}()
	waitPending(t, c, 1)
	assertBlocked(t, done)

	if err := c.SetTime(3_000_000); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	if r := receive(t, done); r != TimedOut {
		t.Errorf("woke with %s, want %s", r, TimedOut)
	}
}

func TestWakeAll(t *testing.T) {
	c := New()

	const sleepers = 4
	reasons := make(chan WakeReason, sleepers)
	for range sleepers {
		go func() {
			reasons <- c.Sleep(time.Minute)
		}()
	}
	waitPending(t, c, sleepers)

	c.WakeAll()
	for range sleepers {
		if r := receive(t, reasons); r != Interrupted {
			t.Errorf("woke with %s, want %s", r, Interrupted)
		}
	}
}

func TestVirtualPacer(t *testing.T) {
	c := New()
	p := c.NewPacer()
	defer p.Close()

	done := make(chan struct{})
	go func() {
		p.Wait(context.Background(), 20*time.Millisecond)
		close(done)
	}()
	waitPending(t, c, 1)

	if err := c.SetTime(20_000); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("pacer did not return")
	}
	if p.Now() != 20*time.Millisecond {
		t.Errorf("Now() = %s, want 20ms", p.Now())
	}
}

func TestWallPacerCancelled(t *testing.T) {
	p := NewWallPacer()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	p.Wait(ctx, time.Minute)
	if time.Since(start) > time.Second {
		t.Errorf("Wait ignored cancelled context")
	}
	if p.Now() <= 0 {
		t.Errorf("Now() = %s, want positive", p.Now())
	}
}
