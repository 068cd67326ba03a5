package slogutil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"changeguard/internal/config"
)

// LoggerFactory builds the logger for one CLI run.
// Level precedence: CLI flags > logging.level in config > warn.
type LoggerFactory struct {
	stderr   io.Writer
	root     string
	config   config.LoggingConfig
	cliLevel *slog.Level // nil when no flag was given
	file     *os.File
}

// NewLoggerFactory creates a factory. root resolves a relative logging.file.
func NewLoggerFactory(stderr io.Writer, root string, cfg config.LoggingConfig, cliLevel *slog.Level) *LoggerFactory {
	return &LoggerFactory{stderr: stderr, root: root, config: cfg, cliLevel: cliLevel}
}

// EffectiveLevel returns the level the run logs at
func (f *LoggerFactory) EffectiveLevel() slog.Level {
	if f.cliLevel != nil {
		return *f.cliLevel
	}
	if f.config.Level != "" {
		return LevelFromString(f.config.Level)
	}
	return slog.LevelWarn
}

// RunLogger returns the run's logger. Records go to stderr and, when
// logging.file is set, are appended to that file as well; every record
// carries the run id.
func (f *LoggerFactory) RunLogger(runID string) (*slog.Logger, error) {
	level := f.EffectiveLevel()
	h := f.handler(f.stderr, level)

	if f.config.File != "" {
		path := f.config.File
		if !filepath.IsAbs(path) && f.root != "" {
			path = filepath.Join(f.root, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		f.file = file
		h = fanout{h, f.handler(file, level)}
	}

	logger := slog.New(h)
	if runID != "" {
		logger = logger.With(RunKey, runID)
	}
	return logger, nil
}

func (f *LoggerFactory) handler(w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if f.config.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return NewLineHandler(w, opts)
}

// Close closes the log file, if one was opened.
func (f *LoggerFactory) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// fanout sends each record to every handler enabled for it
type fanout []slog.Handler

func (hs fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (hs fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range hs {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (hs fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(hs))
	for i, h := range hs {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (hs fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(hs))
	for i, h := range hs {
		out[i] = h.WithGroup(name)
	}
	return out
}
