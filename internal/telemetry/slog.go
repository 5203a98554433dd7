package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupLogger configures the global slog default logger from the logging section of the
// application configuration and returns it.
//
// format: "json" selects JSONHandler; anything else selects TextHandler.
// level: "debug", "info", "warn", "error" (case-insensitive); defaults to "info".
// output: "stderr" writes to standard error; anything else writes to standard output.
func SetupLogger(format, level, output string) *slog.Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(output, "stderr") {
		w = os.Stderr
	}

	logger := slog.New(NewHandler(w, format, level))
	slog.SetDefault(logger)
	logger.Info("logger initialised", "format", format, "level", ParseLevel(level).String())
	return logger
}

// NewHandler builds the slog handler SetupLogger installs, writing to w.
func NewHandler(w io.Writer, format, level string) slog.Handler {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps a configured level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
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
