// Package printer renders observer status lines to the console in color.
// Structured logs go through slog; these are the human-facing progress
// markers.
package printer

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	cyan    = color.New(color.FgCyan)
	magenta = color.New(color.FgMagenta)
	yellow  = color.New(color.FgYellow)
	red     = color.New(color.FgRed, color.Bold)
)

func prefix() string {
	return cyan.Sprint("[sidekick]")
}

// Info prints a plain status line with the observer prefix.
func Info(format string, a ...any) {
	fmt.Printf("%s %s\n", prefix(), fmt.Sprintf(format, a...))
}

// Reflection prints a reflection-cycle marker.
func Reflection(format string, a ...any) {
	fmt.Printf("%s %s %s\n", prefix(), magenta.Sprint("⟳ reflection:"), fmt.Sprintf(format, a...))
}

// Warning prints a warning line in yellow.
func Warning(format string, a ...any) {
	fmt.Printf("%s %s\n", prefix(), yellow.Sprintf(format, a...))
}

// Error prints an error line in red to stderr.
func Error(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", prefix(), red.Sprintf(format, a...))
}
