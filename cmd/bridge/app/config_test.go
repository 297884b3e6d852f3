package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
control:
  useVirtualClock: true
flight:
  takeoffAltitude: 25
  armDelay: 1500ms
simulator:
  listen: 0.0.0.0:14560
storage:
  enabled: false
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if config.Settings.Level != "debug" {
		t.Errorf("Level = %q, want debug", config.Settings.Level)
	}
	if !config.Control.UseVirtualClock {
		t.Errorf("UseVirtualClock = false, want true")
	}
	if config.Flight.TakeoffAltitude != 25 {
		t.Errorf("TakeoffAltitude = %g, want 25", config.Flight.TakeoffAltitude)
	}
	if got := time.Duration(config.Flight.ArmDelay); got != 1500*time.Millisecond {
		t.Errorf("ArmDelay = %s, want 1.5s", got)
	}
	if config.Storage.Enabled {
		t.Errorf("Storage.Enabled = true, want false")
	}

	// untouched settings keep their defaults
	defaults := DefaultConfig()
	if config.Control.RateHz != defaults.Control.RateHz {
		t.Errorf("RateHz = %g, want %g", config.Control.RateHz, defaults.Control.RateHz)
	}
	if config.Flight.ClimbRate != defaults.Flight.ClimbRate {
		t.Errorf("ClimbRate = %g, want %g", config.Flight.ClimbRate, defaults.Flight.ClimbRate)
	}
	if config.GroundLink.Listen != defaultGroundLinkAddr {
		t.Errorf("GroundLink.Listen = %q, want %q", config.GroundLink.Listen, defaultGroundLinkAddr)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "bad duration", content: "flight:\n  armDelay: soon\n", want: "parsing duration"},
		{name: "bad level", content: "settings:\n  logLevel: loud\n", want: "settings.logLevel"},
		{name: "zero control rate", content: "control:\n  rateHz: 0\n", want: "control.rateHz"},
		{name: "negative threshold", content: "flight:\n  altitudeThreshold: -1\n", want: "flight.altitudeThreshold"},
		{name: "missing simulator address", content: "simulator:\n  listen: \"\"\n", want: "simulator.listen"},
		{name: "not yaml", content: "control: [", want: "parsing configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatalf("LoadConfig succeeded, want error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("LoadConfig of a missing file succeeded")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	config := DefaultConfig()
	config.Control.RateHz = 0
	config.Telemetry.RateHz = -1

	err := config.Validate()
	if err == nil {
		t.Fatalf("Validate succeeded")
	}
	for _, want := range []string{"control.rateHz", "telemetry.rateHz"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %v, want it to contain %q", err, want)
		}
	}

	if err = DefaultConfig().Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}
