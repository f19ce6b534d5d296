package ui

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func TestClipboardSequence(t *testing.T) {
	t.Setenv("TMUX", "")
	got := ClipboardSequence("4006381333931")
	want := "\x1b]52;c;" + base64.StdEncoding.EncodeToString([]byte("4006381333931")) + "\a"
	if got != want {
		t.Fatalf("ClipboardSequence = %q, want %q", got, want)
	}
}

func TestClipboardSequence_Tmux(t *testing.T) {
	t.Setenv("TMUX", "/tmp/tmux-1000/default,1,0")
	got := ClipboardSequence("x")
	if !strings.HasPrefix(got, "\x1bPtmux;\x1b\x1b]52;c;") || !strings.HasSuffix(got, "\x1b\\") {
		t.Fatalf("expected tmux passthrough, got %q", got)
	}
}

func TestCopyToClipboard(t *testing.T) {
	t.Setenv("TMUX", "")
	var buf bytes.Buffer
	if err := CopyToClipboard(&buf, "https://example.com/x"); err != nil {
		t.Fatalf("CopyToClipboard: %v", err)
	}
	if buf.String() != ClipboardSequence("https://example.com/x") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestBeep(t *testing.T) {
	var buf bytes.Buffer
	Beep(&buf)
	if buf.String() != "\a" {
		t.Fatalf("Beep wrote %q", buf.String())
	}
}

func TestShouldUseColor(t *testing.T) {
	for _, tc := range []struct {
		name  string
		env   map[string]string
		want  bool
		check bool
	}{
		{"NoColor", map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, false, true},
		{"Force", map[string]string{"NO_COLOR": "", "CLICOLOR_FORCE": "1"}, true, true},
		{"Disabled", map[string]string{"NO_COLOR": "", "CLICOLOR_FORCE": "", "CLICOLOR": "0"}, false, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if got := ShouldUseColor(); got != tc.want {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	saved := noColor
	defer func() { noColor = saved }()

	noColor = false
	if got := RenderError("denied"); got != "\x1b[38;5;167mdenied\x1b[0m" {
		t.Errorf("RenderError = %q", got)
	}
	ForceNoColor()
	for _, f := range []func(string) string{RenderAccent, RenderMuted, RenderOK, RenderWarn, RenderError} {
		if got := f("x"); got != "x" {
			t.Errorf("expected plain output with color disabled, got %q", got)
		}
	}
}
