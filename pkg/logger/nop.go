package logger

import (
	"io"
	"log/slog"
)

// NewNop creates a logger that discards all output. Useful in tests and
// as a default when logging is not configured.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
