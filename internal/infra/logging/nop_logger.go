package logging

import (
	"io"
	"log/slog"
)

// levelOff is above every level slog defines, so nothing is ever enabled.
const levelOff = slog.Level(1 << 10)

// NewNopLogger creates a logger that discards all output.
// Loggers returned by GetLogger before Configure are nop loggers, as are
// the loggers injected by tests.
func NewNopLogger() Logger {
	//nolint:exhaustruct
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: levelOff}))
}
