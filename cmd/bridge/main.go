package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/flight-bridge/cmd/bridge/app"
	"github.com/roman-kulish/flight-bridge/internal/logging"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	var configPath string
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.Parse()

	if configPath == "" {
		logger.Error("no configuration file provided")
		os.Exit(1)
	}

	config, err := app.LoadConfig(configPath)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
		os.Exit(1)
	}

	logger, closer, err := logging.New(config.Settings, &logLevel, os.Stdout)
	if err != nil {
		slog.Error(fmt.Sprintf("failed to create logger: %s", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = app.Run(ctx, config, logger)
	cancel()
	_ = closer.Close()

	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
