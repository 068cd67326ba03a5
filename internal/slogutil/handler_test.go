package slogutil

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func lineLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	return slog.New(NewLineHandler(buf, &slog.HandlerOptions{Level: level}))
}

func TestLineHandler_RunIDLeadsMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := lineLogger(&buf, slog.LevelDebug).With(RunKey, "3f2a", "root", "/src/app")

	logger.Debug("Stage finished", "stage", "usage", "duration", 1500*time.Microsecond)

	line := strings.TrimSuffix(buf.String(), "\n")
	_, rest, ok := strings.Cut(line, " ")
	if !ok {
		t.Fatalf("no timestamp in %q", line)
	}
	want := "DEBUG run=3f2a Stage finished root=/src/app stage=usage duration=1.5ms"
	if rest != want {
		t.Errorf("line = %q\nwant   %q", rest, want)
	}
}

func TestLineHandler_Levels(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, "DEBUG"},
		{slog.LevelInfo, "INFO "},
		{slog.LevelWarn, "WARN "},
		{slog.LevelError, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		lineLogger(&buf, slog.LevelDebug).Log(context.Background(), tt.level, "msg")
		if !strings.Contains(buf.String(), " "+tt.want+" msg") {
			t.Errorf("level %v rendered as %q", tt.level, buf.String())
		}
	}
}

func TestLineHandler_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := lineLogger(&buf, slog.LevelWarn)

	logger.Info("Analysis complete")
	logger.Warn("Usage scan incomplete", "pending", 3)

	out := buf.String()
	if strings.Contains(out, "Analysis complete") {
		t.Errorf("info record should be filtered: %s", out)
	}
	if !strings.Contains(out, "pending=3") {
		t.Errorf("warn record missing: %s", out)
	}
}

func TestLineHandler_QuotesAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := lineLogger(&buf, slog.LevelInfo).WithGroup("scan")

	logger.Info("Analysis complete",
		"verdict", "1 breaking, 0 risky",
		"file", "",
		slog.Group("files", "total", 12, "skipped", 1),
	)

	out := buf.String()
	for _, want := range []string{
		`scan.verdict="1 breaking, 0 risky"`,
		`scan.file=""`,
		"scan.files.total=12",
		"scan.files.skipped=1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}

func TestLineHandler_RunKeyInsideGroupStaysAnAttr(t *testing.T) {
	var buf bytes.Buffer
	lineLogger(&buf, slog.LevelInfo).WithGroup("child").With(RunKey, "x").Info("msg")

	if !strings.Contains(buf.String(), "msg child.run=x") {
		t.Errorf("grouped run attr should render in place: %s", buf.String())
	}
}

func TestLevelFromString(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"off":     LevelSilent,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := LevelFromString(in); got != want {
			t.Errorf("LevelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFromVerbosity(t *testing.T) {
	tests := []struct {
		verbosity int
		quiet     bool
		want      slog.Level
	}{
		{0, false, slog.LevelWarn},
		{1, false, slog.LevelInfo},
		{2, false, slog.LevelDebug},
		{5, false, slog.LevelDebug},
		{2, true, LevelSilent},
	}
	for _, tt := range tests {
		if got := LevelFromVerbosity(tt.verbosity, tt.quiet); got != tt.want {
			t.Errorf("LevelFromVerbosity(%d, %v) = %v, want %v", tt.verbosity, tt.quiet, got, tt.want)
		}
	}
}

func TestNewDiscardLogger(t *testing.T) {
	logger := NewDiscardLogger()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("discard logger should not be enabled at any level")
	}
}
