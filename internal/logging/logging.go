package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

var ErrInvalidLevel = errors.New("invalid log level")

// Config selects where the program log goes. Without a file the log is text
// on stdout; with one it is JSON in a rotating file.
type Config struct {
	Level      string `yaml:"logLevel"`
	File       string `yaml:"logFile"`
	MaxSize    int    `yaml:"logMaxSize"`    // megabytes
	MaxBackups int    `yaml:"logMaxBackups"` // rotated files kept
	MaxAge     int    `yaml:"logMaxAge"`     // days
	Compress   bool   `yaml:"logCompress"`
}

// ParseLevel converts "debug", "info", "warn" or "error" into a slog.Level.
// An empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
}

// New builds the root logger. level is set from cfg and stays adjustable by
// the caller. The returned closer releases the log file, if any.
func New(cfg Config, level *slog.LevelVar, stdout io.Writer) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	level.Set(lvl)

	opts := &slog.HandlerOptions{Level: level}

	if cfg.File == "" {
		if stdout == nil {
			stdout = os.Stdout
		}
		return slog.New(slog.NewTextHandler(stdout, opts)), nopCloser{}, nil
	}

	w := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	if w.MaxSize <= 0 {
		w.MaxSize = 32 // MB
	}

	return slog.New(slog.NewJSONHandler(w, opts)), w, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
