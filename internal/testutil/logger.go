package testutil

import (
	"io"
	"log/slog"
)

// NopLogger returns a logger whose records go nowhere. Components still run
// their With calls against it, so logging wiring stays exercised in tests
// without producing output.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
