package app

import (
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-bridge/internal/storage"
)

var ErrNoTelemetry = errors.New("session has no telemetry in the selected range")

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	profile, err := readProfile(ctx, store, config, logger)
	if err != nil {
		return err
	}

	renderer, err := NewProfileRenderer(RenderConfig{
		Width:    config.Width,
		Height:   config.Height,
		NoLegend: config.NoLegend,
	})
	if err != nil {
		return fmt.Errorf("creating profile renderer: %w", err)
	}

	logger.Info("rendering flight profile",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", config.Width),
			slog.Int("height", config.Height),
		))

	img, err := renderer.Render(profile)
	if err != nil {
		return fmt.Errorf("rendering profile: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}

func readProfile(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) (*Profile, error) {
	var opts []storage.ReaderOption
	var filters []any

	if config.From != nil || config.To != nil {
		from, to := time.Duration(0), maxDuration
		if config.From != nil {
			from = *config.From
			filters = append(filters, slog.Duration("from", from))
		}
		if config.To != nil {
			to = *config.To
			filters = append(filters, slog.Duration("to", to))
		}
		opts = append(opts, storage.WithTimeRange(from, to))
	}

	logger.Info("reader configuration", filters...)

	iter, err := store.ReadTelemetry(ctx, config.SessionID, opts...)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	profile := NewProfile(iter.Session())
	for iter.Next(ctx) {
		profile.Update(iter.Current())
	}
	if err = iter.Error(); err != nil {
		return nil, err
	}
	if profile.Empty() {
		return nil, ErrNoTelemetry
	}

	transitions, err := store.ReadTransitions(ctx, config.SessionID)
	if err != nil {
		return nil, fmt.Errorf("reading transitions: %w", err)
	}
	profile.SetTransitions(transitions)

	logger.Info("finished reading telemetry",
		slog.Group("stats",
			slog.String("session", profile.Session.RunID),
			slog.String("samples", humanize.Comma(int64(len(profile.Samples)))),
			slog.Int("transitions", len(profile.Transitions)),
			slog.Duration("duration", profile.Duration()),
			slog.String("minAltitude", fmt.Sprintf("%0.2fm", profile.MinAltitude)),
			slog.String("maxAltitude", fmt.Sprintf("%0.2fm", profile.MaxAltitude)),
		))

	return profile, nil
}
