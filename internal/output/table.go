// Package output provides terminal output helpers: color detection, a
// spinner for long package manager commands, and tables for the run
// journal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/blackwell-systems/bootstrap-env/internal/store"
)

// IsColorEnabled returns true if ANSI color codes should be written to w.
// It checks that w is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return writerIsTTY(w)
}

// IsStdoutTTY reports whether stdout is a terminal.
func IsStdoutTTY() bool {
	return writerIsTTY(os.Stdout)
}

var (
	statusOK      = color.New(color.FgGreen)
	statusFailed  = color.New(color.FgRed)
	statusRunning = color.New(color.FgYellow)
)

func formatStatus(status string, useColor bool) string {
	padded := fmt.Sprintf("%-10s", status)
	if !useColor {
		return padded
	}
	var c *color.Color
	switch status {
	case store.StatusSucceeded:
		c = statusOK
	case store.StatusFailed:
		c = statusFailed
	default:
		c = statusRunning
	}
	c.EnableColor()
	return c.Sprint(padded)
}

// RenderRunTable renders journaled runs, newest first as given.
func RenderRunTable(runs []*store.Run, useColor bool) string {
	if len(runs) == 0 {
		return "No runs journaled.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-8s  %-16s %-10s %-4s  %-10s %s\n",
		"Run", "Started", "Status", "Exit", "OS", "Build tool"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")

	for _, run := range runs {
		sb.WriteString(fmt.Sprintf("%-8s  %-16s %s %-4d  %-10s %s\n",
			shortID(run.ID),
			formatRelativeTime(run.StartedAt),
			formatStatus(run.Status, useColor),
			run.ExitCode,
			truncate(orDash(run.OSVersion), 10),
			orDash(run.BuildToolPath)))
	}
	return sb.String()
}

// RenderEventTable renders the installer decisions of one run.
func RenderEventTable(events []*store.Event) string {
	if len(events) == 0 {
		return "No installer events recorded.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-8s %-20s %-10s %s\n", "Action", "Tool", "Manager", "Detail"))
	sb.WriteString(strings.Repeat("─", 60))
	sb.WriteString("\n")
	for _, e := range events {
		sb.WriteString(fmt.Sprintf("%-8s %-20s %-10s %s\n",
			e.Action, truncate(e.Tool, 20), e.Manager, e.Detail))
	}
	return sb.String()
}

// shortID abbreviates a run ID for display; any unique prefix is accepted
// back by `restore`.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
