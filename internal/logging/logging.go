// Package logging configures the process-wide slog default.
//
// The interactive CLI owns stdout for its prompt and tables, so logs go to
// stderr and default to errors only; LOG_LEVEL raises verbosity during
// development.
package logging

import (
	"log/slog"
	"os"
)

// Init installs the default text logger on stderr.
func Init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	})))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
