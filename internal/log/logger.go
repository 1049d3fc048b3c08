// Package log configures the process-wide structured logger and provides
// the field and component names shared across packages.
package log

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Config holds logger configuration.
type Config struct {
	Level     slog.Level
	Component string
	// NoColor forces plain output, for log collectors that choke on ANSI.
	NoColor bool
}

// DefaultConfig reads LOG_LEVEL and LOG_NO_COLOR from the environment.
func DefaultConfig() Config {
	return Config{
		Level:     parseLevel(os.Getenv("LOG_LEVEL")),
		Component: ComponentApp,
		NoColor:   os.Getenv("LOG_NO_COLOR") != "",
	}
}

// Setup installs the process-wide default logger and returns it. Every
// package logs through slog.Default, so this runs once at startup in each
// binary's main.
func Setup(config Config) *slog.Logger {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      config.Level,
		TimeFormat: time.RFC3339,
		NoColor:    config.NoColor,
	})

	logger := slog.New(handler).With(FieldComponent, config.Component)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
