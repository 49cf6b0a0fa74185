// Package logger configures structured logging and records crashes.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup installs a text slog handler writing to w as the default logger and
// returns it. Verbose enables debug records.
func Setup(verbose bool, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(l)
	return l
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
