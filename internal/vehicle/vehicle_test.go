package vehicle

import (
	"errors"
	"testing"
	"time"

	"github.com/roman-kulish/flight-bridge/internal/clock"
	"github.com/roman-kulish/flight-bridge/internal/flight"
)

func TestArmImmediately(t *testing.T) {
	v := New()
	defer v.Close()

	if v.IsArmed() || v.IsArming() {
		t.Fatalf("new vehicle should be disarmed")
	}

	v.Arm()
	if !v.IsArmed() {
		t.Errorf("IsArmed() = false after Arm without delay")
	}
	if v.IsArming() {
		t.Errorf("IsArming() = true after immediate arm")
	}
}

func TestArmWithDelay(t *testing.T) {
	c := clock.New()
	v := New(WithArmDelay(2*time.Second, c))
	defer v.Close()

	v.Arm()
	v.Arm() // ignored while arming

	if !v.IsArming() || v.IsArmed() {
		t.Fatalf("expected arming in progress, armed=%v arming=%v", v.IsArmed(), v.IsArming())
	}

	// keep pushing time until the arming goroutine has registered and woken
	deadline := time.Now().Add(2 * time.Second)
	for step := uint64(1); !v.IsArmed(); step++ {
		if time.Now().After(deadline) {
			t.Fatalf("vehicle did not arm")
		}
		if err := c.SetTime(step * 1_000_000); err != nil {
			t.Fatalf("SetTime: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	if v.IsArming() {
		t.Errorf("IsArming() = true after arming completed")
	}
}

func TestCloseAbortsArming(t *testing.T) {
	c := clock.New()
	v := New(WithArmDelay(time.Minute, c))

	v.Arm()
	v.Close()

	if v.IsArmed() || v.IsArming() {
		t.Errorf("armed=%v arming=%v after Close, want both false", v.IsArmed(), v.IsArming())
	}
}

func TestDisarm(t *testing.T) {
	v := New()
	defer v.Close()

	v.Arm()
	v.SetMode(flight.Takeoff)
	if err := v.Disarm(); !errors.Is(err, ErrDisarmInFlight) {
		t.Fatalf("Disarm in flight error = %v, want ErrDisarmInFlight", err)
	}
	if !v.IsArmed() {
		t.Fatalf("vehicle disarmed in flight")
	}

	v.SetMode(flight.Ground)
	if v.IsArmed() {
		t.Errorf("vehicle still armed after returning to ground")
	}
	if err := v.Disarm(); err != nil {
		t.Errorf("Disarm on ground: %v", err)
	}
}

func TestTelemetrySnapshot(t *testing.T) {
	c := clock.New()
	if err := c.SetTime(3_500_000); err != nil {
		t.Fatalf("SetTime: %v", err)
	}

	v := New(WithClock(c))
	defer v.Close()

	if sp := v.Get().Setpoint; sp != nil {
		t.Errorf("Setpoint = %+v before any setpoint, want nil", sp)
	}

	v.Arm()
	v.SetMode(flight.Heading)
	v.SetPosition(flight.Position{Lat: 47.1, Lon: 8.2, Alt: 510, Yaw: 90, Vx: 1, Vy: 2, Vz: -0.5})
	v.SetSetpoint(flight.Position{Lat: 47.2, Lon: 8.3, Alt: 520})

	tm := v.Get()
	if tm.Timestamp != 3500*time.Millisecond {
		t.Errorf("Timestamp = %s, want 3.5s", tm.Timestamp)
	}
	if tm.Mode != flight.Heading || tm.StationMode != flight.StationMission || tm.LandedState != flight.InAir {
		t.Errorf("mode fields = %s/%s/%s", tm.Mode, tm.StationMode, tm.LandedState)
	}
	if !tm.Armed {
		t.Errorf("Armed = false")
	}
	if tm.Altitude != 510 || tm.VelocityDown != -0.5 || tm.Yaw != 90 {
		t.Errorf("unexpected kinematics %+v", tm)
	}
	if tm.Setpoint == nil || tm.Setpoint.Alt != 520 {
		t.Errorf("Setpoint = %+v, want altitude 520", tm.Setpoint)
	}
}
