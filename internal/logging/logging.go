package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// New builds the process logger: JSON to stderr, optionally teed to logFile,
// level parsed from config. It is installed as the slog default so
// package-level slog calls end up in the same sink. The returned cleanup
// closes the log file if one was opened; callers must defer it.
func New(level, logFile string) (*slog.Logger, func(), error) {
	var out io.Writer = os.Stderr
	cleanup := func() {}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		cleanup = func() { _ = f.Close() }
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(level)})
	logger := slog.New(handler).With("service", "prodtrack")
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

// ForComponent returns a child logger tagged with the component name. Every
// long-lived component gets one at wiring time so log lines are attributable
// without each package inventing its own convention.
func ForComponent(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}

func parseLevel(s string) slog.Level {
	switch s {
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
