// Package klog is the core's logging entry point: a thin wrapper around
// zerolog, structured as one global logger with console output in
// development, JSON in production, and per-component child loggers.
package klog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init replaces it; components should
// call Component(name) rather than using Logger directly so every log
// line carries its origin.
var Logger zerolog.Logger

// Config controls global logger construction.
type Config struct {
	Level  string // debug, info, warn, error
	JSON   bool
	Output io.Writer
}

// Init configures the global logger. Safe to call once at process startup;
// packages that log before an explicit Init use the info-level console
// logger this package's init installs.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	if cfg.JSON {
		Logger = zerolog.New(out).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the owning component, e.g.
// klog.Component("mvcc") or klog.Component("dispatch.server").
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

func init() {
	// Sensible default so packages imported outside of a configured
	// process (tests, one-off CLI runs) still produce readable output.
	Init(Config{Level: "info"})
}
