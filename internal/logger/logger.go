// Package logger builds the structured logger used by every command.
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// Options selects the handler and level.
type Options struct {
	Debug bool
	JSON  bool
	// Color forces colored level tags on or off. Nil detects a terminal.
	Color *bool
}

// New returns a logger writing to w. The pretty handler is used unless
// JSON is set.
func New(w io.Writer, opts Options) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}

	useColor := colorDefault(w)
	if opts.Color != nil {
		useColor = *opts.Color
	}
	return slog.New(NewPrettyHandler(w, level, useColor))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func colorDefault(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	return ok && isatty.IsTerminal(f.Fd())
}
