package slogutil

import (
	"log/slog"
	"strings"
)

// LevelSilent is above every level a component logs at; -q maps to it.
const LevelSilent = slog.Level(100)

// NewDiscardLogger returns a logger that drops everything. Components
// substitute it for a nil logger.
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// LevelFromString maps logging.level to a slog level; unknown names give info.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "silent", "off":
		return LevelSilent
	default:
		return slog.LevelInfo
	}
}

// LevelFromVerbosity maps -v counts and -q: quiet silences the run, no flag
// keeps warnings, -v adds info and -vv adds the per-stage debug lines.
func LevelFromVerbosity(verbosity int, quiet bool) slog.Level {
	switch {
	case quiet:
		return LevelSilent
	case verbosity <= 0:
		return slog.LevelWarn
	case verbosity == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
