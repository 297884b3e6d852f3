package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/flight-bridge/internal/bus"
	"github.com/roman-kulish/flight-bridge/internal/clock"
	"github.com/roman-kulish/flight-bridge/internal/groundlink"
	"github.com/roman-kulish/flight-bridge/internal/manager"
	"github.com/roman-kulish/flight-bridge/internal/navigator"
	"github.com/roman-kulish/flight-bridge/internal/simlink"
	"github.com/roman-kulish/flight-bridge/internal/storage"
	"github.com/roman-kulish/flight-bridge/internal/telemetry"
	"github.com/roman-kulish/flight-bridge/internal/vehicle"
)

const sessionName = "bridge"

// Run builds the bridge from config and runs it until ctx is done or one of
// the links fails
func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	c := clock.New(clock.WithLogger(logger))
	b := bus.New(bus.WithLogger(logger))

	nav := navigator.New(b,
		navigator.WithLogger(logger),
		navigator.WithModeConfig(config.Flight.Config))

	vehicleOpts := []func(*vehicle.Vehicle){vehicle.WithLogger(logger), vehicle.WithClock(c)}
	if d := time.Duration(config.Flight.ArmDelay); d > 0 {
		vehicleOpts = append(vehicleOpts, vehicle.WithArmDelay(d, c))
	}
	v := vehicle.New(vehicleOpts...)
	defer v.Close()

	controlPacer, telemetryPacer := createPacers(c, config.Control.UseVirtualClock)
	defer closePacer(controlPacer)
	defer closePacer(telemetryPacer)

	m := manager.New(nav, v,
		manager.WithLogger(logger),
		manager.WithBus(b),
		manager.WithClock(c),
		manager.WithPacer(controlPacer),
		manager.WithControlRate(config.Control.RateHz))

	var orchestratorOpts []func(*Orchestrator)
	publisherOpts := []func(*telemetry.Publisher){telemetry.WithLogger(logger), telemetry.WithRate(config.Telemetry.RateHz)}

	var recorder *storage.Recorder
	if config.Storage.Enabled {
		store, sErr := createStorage(&config.Storage)
		if sErr != nil {
			return fmt.Errorf("failed to create storage: %w", sErr)
		}
		defer func() {
			if cErr := store.Close(); cErr != nil {
				err = errors.Join(err, fmt.Errorf("closing storage: %w", cErr))
			}
		}()

		sessionID, sErr := store.CreateSession(ctx, sessionName, config)
		if sErr != nil {
			return fmt.Errorf("creating session: %w", sErr)
		}

		recorder = storage.NewRecorder(store, sessionID,
			storage.WithLogger(logger),
			storage.WithMaxBatchSize(config.Storage.MaxBatchSize))

		orchestratorOpts = append(orchestratorOpts, WithRecorder(recorder))
		publisherOpts = append(publisherOpts, telemetry.WithSink(recorder))

		logger.Info("recording flight session", slog.Int64("session", sessionID))
	}

	var gl *groundlink.Server
	if config.GroundLink.Enabled {
		gl = groundlink.NewServer(m, v, nav, groundlink.WithLogger(logger))
		defer gl.Close()

		publisherOpts = append(publisherOpts, telemetry.WithSink(gl.Stream()))
	}

	NewOrchestrator(b, nav, v, logger, orchestratorOpts...).Wire()

	pub := telemetry.NewPublisher(v, telemetryPacer, publisherOpts...)
	link := simlink.New(c, b,
		simlink.WithLogger(logger),
		simlink.WithDecodeErrorsThreshold(config.Simulator.DecodeErrorsThreshold))

	if err = m.InitializeModes(); err != nil {
		return fmt.Errorf("initializing modes: %w", err)
	}

	// The recorder outlives the producers so that it can drain what they queued
	recorderDone := make(chan struct{})
	recorderCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
	defer func() {
		stopRecorder()
		<-recorderDone
	}()

	go func() {
		defer close(recorderDone)
		if recorder != nil {
			recorder.Run(recorderCtx)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return link.ListenAndServe(gctx, config.Simulator.Listen)
	})
	if gl != nil {
		g.Go(func() error {
			return gl.ListenAndServe(gctx, config.GroundLink.Listen)
		})
	}
	g.Go(func() error {
		return pub.Run(gctx)
	})

	if err = m.Start(gctx); err != nil {
		cancel()
		return errors.Join(fmt.Errorf("starting mode manager: %w", err), g.Wait())
	}

	g.Go(func() error {
		<-gctx.Done()

		m.Stop()
		c.WakeAll() // release goroutines sleeping on a clock that no longer advances
		return nil
	})

	logger.Info("bridge running",
		slog.String("simulator", config.Simulator.Listen),
		slog.Bool("virtualClock", config.Control.UseVirtualClock))

	if err = g.Wait(); err != nil {
		return err
	}

	stats := m.Stats()
	logger.Info("bridge stopped",
		slog.Uint64("ticks", stats.Ticks),
		slog.Uint64("overruns", stats.Overruns))

	return nil
}

// createPacers returns one pacer for the control loop and one for the
// telemetry publisher. Virtual pacers cannot be shared between loops.
func createPacers(c *clock.Clock, virtual bool) (clock.Pacer, clock.Pacer) {
	if virtual {
		return c.NewPacer(), c.NewPacer()
	}
	return clock.NewWallPacer(), clock.NewWallPacer()
}

func closePacer(p clock.Pacer) {
	if vp, ok := p.(*clock.VirtualPacer); ok {
		vp.Close()
	}
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	var dbPath string
	if config.DataDirectory != "" && filepath.IsAbs(config.DataDirectory) {
		dbPath = config.DataDirectory
	} else if config.DataDirectory != "" {
		dbPath = filepath.Join(wd, config.DataDirectory)
	} else {
		dbPath = filepath.Join(wd, defaultDataDirectory)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("flight_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
