// Package debug owns the process-wide slog logger used by the CLI.
package debug

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger  = slog.New(slog.NewTextHandler(io.Discard, nil))
	enabled bool
	output  io.Writer = os.Stderr
	mu      sync.RWMutex
)

// Init configures the logger and installs it as the slog default, so library
// packages that fall back to slog.Default log through it. Verbose enables
// debug records; otherwise only warnings and errors are written.
func Init(verbose bool) {
	mu.Lock()
	defer mu.Unlock()

	enabled = verbose
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// SetOutput redirects subsequent Init calls to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Enabled returns whether debug logging is enabled
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// With returns a logger with the given attributes
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Logger returns the underlying slog.Logger instance
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
