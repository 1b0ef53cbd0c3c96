// Package logger builds the process logger.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"embedbot/internal/config"
)

var Module = fx.Module("logger",
	fx.Provide(provideLogger),
)

func provideLogger(cfg *config.LoggingConfig) zerolog.Logger {
	return New(cfg.Level, cfg.Format, os.Stdout)
}

// New creates a logger writing to out. format is "console" or "json".
func New(level, format string, out io.Writer) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(level))

	w := out
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: out}
	}

	return zerolog.New(w).
		With().
		Timestamp().
		Caller().
		Logger()
}

// ParseLevel maps a level name to zerolog.Level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
