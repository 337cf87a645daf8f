// Package ui holds the terminal styling helpers shared by the CLI.
package ui

import (
	"github.com/fatih/color"

	"github.com/HANSKMIEL/Optura/internal/task"
)

// Sprint color functions for building styled strings.
var (
	Bold       = color.New(color.Bold).SprintFunc()
	Dim        = color.New(color.Faint).SprintFunc()
	Cyan       = color.New(color.FgCyan).SprintFunc()
	Green      = color.New(color.FgGreen).SprintFunc()
	Red        = color.New(color.FgRed).SprintFunc()
	Yellow     = color.New(color.FgYellow).SprintFunc()
	Magenta    = color.New(color.FgMagenta).SprintFunc()
	BoldCyan   = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen  = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed    = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow = color.New(color.Bold, color.FgYellow).SprintFunc()
	BoldWhite  = color.New(color.Bold, color.FgWhite).SprintFunc()
)

// StatusIcon returns a colored icon for compact table display.
func StatusIcon(s task.Status) string {
	switch s {
	case task.StatusCompleted:
		return Green("✓")
	case task.StatusInProgress:
		return Cyan("●")
	case task.StatusFailed:
		return Red("✗")
	case task.StatusBlocked:
		return Yellow("⊘")
	case task.StatusReview:
		return Magenta("◉")
	case task.StatusApproved:
		return BoldGreen("◉")
	default:
		return Dim("◌")
	}
}

// StatusLabel returns the status name in its color.
func StatusLabel(s task.Status) string {
	switch s {
	case task.StatusCompleted:
		return Green(string(s))
	case task.StatusInProgress:
		return Cyan(string(s))
	case task.StatusFailed:
		return Red(string(s))
	case task.StatusBlocked:
		return Yellow(string(s))
	case task.StatusReview:
		return Magenta(string(s))
	case task.StatusApproved:
		return BoldGreen(string(s))
	default:
		return Dim(string(s))
	}
}

// TaskPrefix returns a dimmed [task-id] prefix string.
func TaskPrefix(taskID string) string {
	short := taskID
	if len(short) > 8 {
		short = short[:8]
	}
	return Dim("[") + Cyan(short) + Dim("]")
}
