package ui

import (
	"encoding/base64"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor returns true when ANSI colors should be used on stdout.
// It respects NO_COLOR, CLICOLOR_FORCE, CLICOLOR, and TTY detection.
func ShouldUseColor() bool {
	// https://no-color.org: any non-empty value disables color.
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ClipboardSequence returns the OSC 52 escape that asks the terminal to put
// text on the system clipboard. Inside tmux the sequence is wrapped in a
// DCS passthrough.
func ClipboardSequence(text string) string {
	seq := "\x1b]52;c;" + base64.StdEncoding.EncodeToString([]byte(text)) + "\a"
	if os.Getenv("TMUX") != "" {
		seq = "\x1bPtmux;" + strings.ReplaceAll(seq, "\x1b", "\x1b\x1b") + "\x1b\\"
	}
	return seq
}

// CopyToClipboard writes the OSC 52 sequence for text to w.
func CopyToClipboard(w io.Writer, text string) error {
	_, err := io.WriteString(w, ClipboardSequence(text))
	return err
}

// Beep rings the terminal bell on w.
func Beep(w io.Writer) {
	_, _ = io.WriteString(w, "\a")
}
