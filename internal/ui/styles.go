// Package ui holds the terminal styling and control sequences of the CLI.
package ui

import "fmt"

// ANSI256 colors.
const (
	colorAccent  = 74  // blue
	colorMuted   = 245 // medium gray
	colorOK      = 114 // green
	colorWarn    = 179 // amber
	colorFailure = 167 // red
)

var noColor bool

func paint(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color. Tentative records and
// secondary columns use it.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderOK returns s in green.
func RenderOK(s string) string { return paint(colorOK, s) }

// RenderWarn returns s in amber, for transient notices.
func RenderWarn(s string) string { return paint(colorWarn, s) }

// RenderError returns s in red, for session-ending errors.
func RenderError(s string) string { return paint(colorFailure, s) }

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
