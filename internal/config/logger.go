package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger writes JSON in production and source-annotated text elsewhere.
// LOG_LEVEL overrides the environment's default level.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(os.Stdout, cfg.Environment, cfg.LogLevel)
}

func newLogger(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: env == "development",
		Level:     parseLevel(env, level),
	}

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With("service", "faceguard")
}

func parseLevel(env, level string) slog.Level {
	var l slog.Level
	if level != "" && l.UnmarshalText([]byte(strings.ToUpper(level))) == nil {
		return l
	}
	if env == "production" {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
