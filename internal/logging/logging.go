// Package logging provides the zerolog setup shared by every component.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.Mutex
	base   zerolog.Logger
	debug  bool
	inited bool
)

// Init configures the process-wide base logger. Safe to call once at
// startup; subsequent calls are no-ops.
func Init(debugMode bool) {
	mu.Lock()
	defer mu.Unlock()
	if inited {
		return
	}
	debug = debugMode

	var w io.Writer = os.Stderr
	if debugMode {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	level := zerolog.InfoLevel
	if debugMode {
		level = zerolog.DebugLevel
	}

	base = zerolog.New(w).With().Timestamp().Logger().Level(level)
	inited = true
}

// WithComponent returns a logger tagged with the given component name.
// Mirrors the convention used throughout the sync engine: every store,
// provider and background loop names itself so log lines can be
// filtered by subsystem.
func WithComponent(name string) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if !inited {
		base = zerolog.New(os.Stderr).With().Timestamp().Logger()
		inited = true
	}
	return base.With().Str("component", name).Logger()
}
