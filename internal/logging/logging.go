// Package logging builds the process-wide structured logger: a plain
// slog.JSONHandler for machine consumption, or github.com/lmittmann/tint
// for a human terminal.
package logging

import (
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
)

// Format selects the handler NewLogger builds.
type Format string

const (
	// FormatText is the default: colorized tint output for a terminal.
	FormatText Format = "text"
	// FormatJSON emits structured JSON, for log aggregation.
	FormatJSON Format = "json"
)

// Config controls logger construction.
type Config struct {
	Format Format
	Level  slog.Level
	Writer io.Writer
}

// NewLogger builds a *slog.Logger per cfg, writing to w. Any Format other
// than FormatJSON, including an empty one, selects FormatText. cfg.Writer
// is not read, and a nil w is not replaced by a default.
func NewLogger(cfg Config, w io.Writer) *slog.Logger {
	if cfg.Format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.Level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{Level: cfg.Level}))
}
