package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init installs the CLI's default logger. The chat screen owns stdout, so
// logs go to stderr and only errors show unless LOG_LEVEL says otherwise.
func Init() *slog.Logger {
	return InitWithDefault(os.Stderr, slog.LevelError)
}

// InitWithDefault installs a text logger on w. LOG_LEVEL overrides fallback.
func InitWithDefault(w io.Writer, fallback slog.Level) *slog.Logger {
	logger := slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: ParseLevel(os.Getenv("LOG_LEVEL"), fallback),
		}),
	)
	slog.SetDefault(logger)
	return logger
}

func ParseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	default:
		return fallback
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
