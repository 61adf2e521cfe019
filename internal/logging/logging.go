package logging

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// EnvLevelName is the environment variable consulted by cmd/ binaries for
// the log level: zebra-scan uses it as a fallback for its -log-level flag
// (flag wins when explicitly set); zebra-setup, which has no such flag,
// always honors it.
const EnvLevelName = "SSI_SCANNER_LOG_LEVEL"

// Global structured logger. Initialized with a reasonable text handler.
var logger atomic.Pointer[slog.Logger]

func init() {
	l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Store(l)
}

// L returns the current global logger.
func L() *slog.Logger { return logger.Load() }

// Set replaces the global logger.
func Set(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// New creates a new logger with given level, format ("text" or "json"), and optional writer (defaults stderr).
func New(format string, level slog.Leveler, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h)
}

// DebugEnvEnabled reports whether either of the original driver's debug
// environment variables is set. Kept for operator continuity (spec.md §9)
// alongside the structured level configured via flags/EnvLevelName.
func DebugEnvEnabled() bool {
	if v := os.Getenv("SSI_DEBUG"); v != "" {
		return true
	}
	if v := os.Getenv("STYL_DEBUG"); v != "" {
		return true
	}
	return false
}

// LevelFromConfig resolves the effective log level: an explicit "debug"
// level string wins, otherwise either debug env var bumps info/warn/error
// up to debug.
func LevelFromConfig(levelName string) slog.Level {
	var lvl slog.Level
	switch levelName {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if DebugEnvEnabled() && lvl > slog.LevelDebug {
		lvl = slog.LevelDebug
	}
	return lvl
}
