// Package logger provides structured logging shared across the plugin
// host's subsystems. It follows the same shape as the teacher's
// api/internal/logger package: a package-level Init that configures the
// process-wide level/format once, plus component-scoped child loggers
// so each subsystem's log lines carry a "component" field instead of
// going through one undifferentiated logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log is the process-wide base logger. Init reconfigures it; until
// Init is called it writes console-formatted output at info level so
// packages behave reasonably under `go test` without explicit setup.
var Log zerolog.Logger

func init() {
	Log = zerolog.New(consoleWriter(os.Stderr)).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// Init configures the process-wide logger. level is parsed with
// zerolog.ParseLevel ("debug", "info", "warn", "error", ...); an
// unrecognized level falls back to info. pretty selects a human-
// readable console writer over newline-delimited JSON.
func Init(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if pretty {
		w = consoleWriter(os.Stderr)
	}

	Log = zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
}

// Component returns a child logger scoped to the named subsystem, e.g.
// logger.Component("flow") or logger.Component("lifecycle"). Every
// plugin host package accepts a zerolog.Logger at construction and
// should be given one of these rather than the bare Log.
func Component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}

// Nop returns a logger that discards everything. Every constructor in
// this module takes a logger argument; passing Nop() there keeps the
// plugin host from writing output into an embedding application.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
