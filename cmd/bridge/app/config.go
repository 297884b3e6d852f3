package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/flight-bridge/internal/logging"
	"github.com/roman-kulish/flight-bridge/internal/manager"
	"github.com/roman-kulish/flight-bridge/internal/mode"
	"github.com/roman-kulish/flight-bridge/internal/simlink"
)

const (
	defaultTelemetryRate  = 1.0 // Hz
	defaultSimulatorAddr  = "127.0.0.1:14560"
	defaultGroundLinkAddr = "127.0.0.1:8080"
	defaultDataDirectory  = "data"
	defaultMaxBatchSize   = 100
)

// Config represents the main application configuration
type Config struct {
	Settings   logging.Config   `yaml:"settings"`
	Control    ControlConfig    `yaml:"control"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Flight     FlightConfig     `yaml:"flight"`
	Simulator  SimulatorConfig  `yaml:"simulator"`
	GroundLink GroundLinkConfig `yaml:"groundlink"`
	Storage    StorageConfig    `yaml:"storage"`
}

// ControlConfig represents the mode manager settings
type ControlConfig struct {
	RateHz          float64 `yaml:"rateHz"`
	UseVirtualClock bool    `yaml:"useVirtualClock"`
}

// TelemetryConfig represents telemetry publishing settings
type TelemetryConfig struct {
	RateHz float64 `yaml:"rateHz"`
}

// FlightConfig represents the flight mode tuning and vehicle settings
type FlightConfig struct {
	mode.Config `yaml:",inline"`
	ArmDelay    Duration `yaml:"armDelay"`
}

// SimulatorConfig represents the simulator link settings
type SimulatorConfig struct {
	Listen                string `yaml:"listen"`
	DecodeErrorsThreshold uint8  `yaml:"decodeErrorsThreshold"`
}

// GroundLinkConfig represents the ground-control link settings
type GroundLinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
	MaxBatchSize  int    `yaml:"maxBatchSize"`
}

// Duration is a time.Duration written as a string such as "1.5s" in YAML
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// DefaultConfig returns the configuration used for everything the file leaves out
func DefaultConfig() *Config {
	return &Config{
		Settings: logging.Config{Level: "info"},
		Control: ControlConfig{
			RateHz: manager.DefaultControlRate,
		},
		Telemetry: TelemetryConfig{
			RateHz: defaultTelemetryRate,
		},
		Flight: FlightConfig{
			Config: mode.DefaultConfig(),
		},
		Simulator: SimulatorConfig{
			Listen:                defaultSimulatorAddr,
			DecodeErrorsThreshold: simlink.DecodeErrorsThreshold,
		},
		GroundLink: GroundLinkConfig{
			Enabled: true,
			Listen:  defaultGroundLinkAddr,
		},
		Storage: StorageConfig{
			Enabled:       true,
			DataDirectory: defaultDataDirectory,
			MaxBatchSize:  defaultMaxBatchSize,
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults and validates the result
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	config := DefaultConfig()
	if err = yaml.Unmarshal(p, config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return config, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Settings.Level); err != nil {
		errs = append(errs, fmt.Errorf("settings.logLevel: %w", err))
	}
	if c.Control.RateHz <= 0 {
		errs = append(errs, fmt.Errorf("control.rateHz must be positive, got %g", c.Control.RateHz))
	}
	if c.Telemetry.RateHz <= 0 {
		errs = append(errs, fmt.Errorf("telemetry.rateHz must be positive, got %g", c.Telemetry.RateHz))
	}

	f := c.Flight
	if f.TakeoffAltitude <= 0 {
		errs = append(errs, fmt.Errorf("flight.takeoffAltitude must be positive, got %g", f.TakeoffAltitude))
	}
	if f.AltitudeThreshold <= 0 {
		errs = append(errs, fmt.Errorf("flight.altitudeThreshold must be positive, got %g", f.AltitudeThreshold))
	}
	if f.AcceptanceRadius <= 0 {
		errs = append(errs, fmt.Errorf("flight.acceptanceRadius must be positive, got %g", f.AcceptanceRadius))
	}
	if f.ClimbRate <= 0 || f.DescentRate <= 0 {
		errs = append(errs, fmt.Errorf("flight.climbRate and flight.descentRate must be positive"))
	}
	if f.ArmDelay < 0 {
		errs = append(errs, fmt.Errorf("flight.armDelay must not be negative"))
	}

	if c.Simulator.Listen == "" {
		errs = append(errs, errors.New("simulator.listen is required"))
	}
	if c.GroundLink.Enabled && c.GroundLink.Listen == "" {
		errs = append(errs, errors.New("groundlink.listen is required when the ground link is enabled"))
	}
	if c.Storage.Enabled && c.Storage.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("storage.maxBatchSize must be positive, got %d", c.Storage.MaxBatchSize))
	}

	return errors.Join(errs...)
}
