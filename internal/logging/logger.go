package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the project-standard slog logger. Level is parsed from
// the given string (debug/info/warn/error), defaulting to info. Debug level
// also switches to a text handler with source locations for local work.
func NewLogger(level string) *slog.Logger {
	parsed := ParseLevel(level)

	if parsed == slog.LevelDebug {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:     parsed,
			AddSource: true,
		}))
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parsed,
	}))
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
