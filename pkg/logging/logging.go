// Package logging configures the process-wide slog default logger. Every
// other package logs through log/slog's package-level functions directly
// (as pkg/pipeline and pkg/slack already do), so this package's only job is
// to install the right handler once, at startup.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs a JSON slog handler at the given level ("debug", "info",
// "warn", "error"; unrecognized or empty defaults to "info") as the
// process default logger.
func Setup(level string) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
