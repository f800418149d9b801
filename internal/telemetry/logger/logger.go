// Package logger configures structured logging for kvstash.
//
// It is a thin layer over log/slog: JSON or text handlers, a process-wide
// dynamic level, and level parsing from configuration strings.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Format is the output format (json, text).
	Format string
	// Output is the output writer. Defaults to os.Stderr.
	Output io.Writer
	// AddSource adds source file information to log entries.
	AddSource bool
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

// level is shared by every logger built here so the level can be
// adjusted at runtime (config hot reload).
var level = new(slog.LevelVar)

// New creates a logger with the given configuration.
func New(cfg Config) (*slog.Logger, error) {
	lv, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	level.Set(lv)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		h = slog.NewJSONHandler(out, opts)
	case "text":
		h = slog.NewTextHandler(out, opts)
	default:
		return nil, fmt.Errorf("logger: unknown format %q", cfg.Format)
	}

	return slog.New(h), nil
}

// SetLevel adjusts the level of all loggers created by New.
func SetLevel(s string) error {
	lv, err := parseLevel(s)
	if err != nil {
		return err
	}
	level.Set(lv)
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("logger: unknown level %q", s)
}
