package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New constructs a text logger with the level taken from LOG_LEVEL.
func New(service string) *slog.Logger {
	return NewWithLevel(service, parseLevel(os.Getenv("LOG_LEVEL")))
}

// NewDebug constructs a text logger that always emits debug records.
func NewDebug(service string) *slog.Logger {
	return NewWithLevel(service, slog.LevelDebug)
}

// NewWithLevel constructs a text logger writing to stdout at the given level.
func NewWithLevel(service string, level slog.Level) *slog.Logger {
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", service)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
