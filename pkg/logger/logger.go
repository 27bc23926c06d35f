// Package logger provides structured logging for fskit.
//
// The logger supports text and JSON output, configurable levels and
// key/value context fields. File-backed loggers are acquired through a
// Disposer so the log file is closed when the owning scope ends.
//
// Example usage:
//
//	err := logger.Open(logger.Config{
//	    Level:  "debug",
//	    Output: "/var/log/fskit.log",
//	    Format: "json",
//	}).Run(func(log logger.Logger) error {
//	    log.Info("engine starting", "backend", "fsnotify")
//	    return nil
//	})
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/0xmhha/fskit/pkg/disposer"
)

// Logger provides structured logging with levels and fields.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an informational message with optional key-value pairs.
	Info(msg string, keysAndValues ...interface{})

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs.
	Error(msg string, keysAndValues ...interface{})

	// With returns a new logger with additional context fields.
	With(keysAndValues ...interface{}) Logger

	// Named returns a logger tagged with a component name.
	Named(component string) Logger
}

// Config contains logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string

	// Output is the destination (stdout, stderr, or file path).
	Output string

	// Format is the output format (text, json).
	Format string
}

// logger implements the Logger interface using slog.
type logger struct {
	slogger *slog.Logger
}

// New creates a logger writing to stdout or stderr.
//
// File outputs need a release step and must go through Open; New falls back
// to stderr for them.
func New(cfg Config) Logger {
	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		w = os.Stdout
	default:
		w = os.Stderr
	}
	return newWithWriter(w, cfg)
}

// Open returns a Disposer for a logger built from cfg. When Output names a
// file, the file is opened for appending on acquisition and closed on
// release.
func Open(cfg Config) disposer.Disposer[Logger] {
	if isStdStream(cfg.Output) {
		return disposer.Pure(New(cfg))
	}

	file := disposer.FromCloser(func() (*os.File, error) {
		// #nosec G304: output path comes from trusted config
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // nolint:gosec
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.Output, err)
		}
		return f, nil
	})

	return disposer.Map(file, func(f *os.File) Logger {
		return newWithWriter(f, cfg)
	})
}

// NewWithWriter creates a logger writing to w. Useful for tests that
// inspect log output.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	return newWithWriter(w, cfg)
}

func newWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return &logger{
		slogger: slog.New(handler),
	}
}

// Debug implements Logger.Debug.
func (l *logger) Debug(msg string, keysAndValues ...interface{}) {
	l.slogger.Debug(msg, keysAndValues...)
}

// Info implements Logger.Info.
func (l *logger) Info(msg string, keysAndValues ...interface{}) {
	l.slogger.Info(msg, keysAndValues...)
}

// Warn implements Logger.Warn.
func (l *logger) Warn(msg string, keysAndValues ...interface{}) {
	l.slogger.Warn(msg, keysAndValues...)
}

// Error implements Logger.Error.
func (l *logger) Error(msg string, keysAndValues ...interface{}) {
	l.slogger.Error(msg, keysAndValues...)
}

// With implements Logger.With.
func (l *logger) With(keysAndValues ...interface{}) Logger {
	return &logger{
		slogger: l.slogger.With(keysAndValues...),
	}
}

// Named implements Logger.Named.
func (l *logger) Named(component string) Logger {
	return l.With("component", component)
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info for unrecognized levels.
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

func isStdStream(output string) bool {
	switch strings.ToLower(output) {
	case "", "stdout", "stderr":
		return true
	default:
		return false
	}
}

// Default returns a text logger at info level on stderr.
func Default() Logger {
	return New(Config{
		Level:  "info",
		Output: "stderr",
		Format: "text",
	})
}

// Noop returns a logger that discards all log messages.
func Noop() Logger {
	return &logger{
		slogger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
