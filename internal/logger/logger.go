// Package logger holds the process-wide slog logger. Output defaults to
// human-readable text at debug level in development and JSON at info level
// elsewhere; LOG_LEVEL and LOG_FORMAT override either choice independently.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

var global *slog.Logger

// Options selects the handler. Zero values fall back to the per-environment
// defaults described in the package comment.
type Options struct {
	Env    string
	Level  string // "debug", "info", "warn", "error"
	Format string // "text", "json"
}

// Init builds the global logger and installs it as slog's default.
func Init(opts Options) {
	production := opts.Env == "production"

	level := slog.LevelDebug
	if production {
		level = slog.LevelInfo
	}
	switch strings.ToLower(opts.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	format := strings.ToLower(opts.Format)
	if format == "" {
		if production {
			format = "json"
		} else {
			format = "text"
		}
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	global = slog.New(handler)
	slog.SetDefault(global)
}

// get returns the global logger, falling back to development defaults when a
// package logs before Init runs (tests, mostly).
func get() *slog.Logger {
	if global == nil {
		Init(Options{Env: "development"})
	}
	return global
}

// With returns a logger carrying additional key-value pairs.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

func Debug(msg string, args ...any) {
	get().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	get().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	get().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	get().Error(msg, args...)
}
