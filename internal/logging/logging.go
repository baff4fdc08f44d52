// Package logging builds the process-wide *slog.Logger.
//
// Output goes through charmbracelet/log, which implements slog.Handler:
// colored key=value lines for a terminal, or JSON lines for a collector.
package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// Options selects the output format and level.
type Options struct {
	Level string
	JSON  bool
}

// ParseLevel maps "debug", "info", "warn" and "error" to a charm level.
// Anything else is Info.
func ParseLevel(s string) charmlog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return charmlog.DebugLevel
	case "warn", "warning":
		return charmlog.WarnLevel
	case "error":
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// New returns a slog.Logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	handler := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           ParseLevel(opts.Level),
	})
	if opts.JSON {
		handler.SetFormatter(charmlog.JSONFormatter)
	} else {
		handler.SetFormatter(charmlog.TextFormatter)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
