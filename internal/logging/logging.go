// Package logging builds the process logger: JSON records on stderr, and
// optionally a rotating file, decorated with context groups by logctx.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ggoodman/pipedrive-mcp-server-go/internal/logctx"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the level and destinations.
type Config struct {
	// Level is 0 (debug), 1 (info), 2 (warn) or 3 (error).
	Level int
	// File, when set, receives a copy of every record through lumberjack.
	File string
	// Stderr overrides os.Stderr; tests use it.
	Stderr io.Writer
}

// Level maps the numeric level onto slog. Out-of-range values clamp.
func Level(n int) slog.Level {
	switch {
	case n <= 0:
		return slog.LevelDebug
	case n == 1:
		return slog.LevelInfo
	case n == 2:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// New returns the logger and a closer for the rotating file, if any.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	var out io.Writer = os.Stderr
	if cfg.Stderr != nil {
		out = cfg.Stderr
	}

	closer := io.Closer(nopCloser{})
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		out = io.MultiWriter(out, lj)
		closer = lj
	}

	h := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: Level(cfg.Level)})
	return slog.New(logctx.Handler{Handler: h}), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
