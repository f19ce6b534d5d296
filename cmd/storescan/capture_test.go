package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/storescan/internal/capture"
	"github.com/alfredjeanlab/storescan/internal/config"
	"github.com/alfredjeanlab/storescan/internal/model"
	"github.com/alfredjeanlab/storescan/internal/pipeline"
	"github.com/alfredjeanlab/storescan/internal/scanner"
)

func gateFlagsCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("policy", "", "")
	cmd.Flags().Duration("window", 0, "")
	cmd.Flags().Int("min-length", 0, "")
	return cmd
}

func TestGateSettings(t *testing.T) {
	t.Run("ProfileDefaults", func(t *testing.T) {
		got, err := gateSettings(gateFlagsCmd(), config.GateSettings{})
		if err != nil {
			t.Fatal(err)
		}
		if got != config.DefaultGateSettings() {
			t.Errorf("got %+v, want defaults", got)
		}
	})

	t.Run("FlagsOverrideProfile", func(t *testing.T) {
		cmd := gateFlagsCmd()
		cmd.Flags().Set("policy", "trigger")
		cmd.Flags().Set("window", "1s")
		got, err := gateSettings(cmd, config.GateSettings{Policy: "throttle", Window: 5 * time.Second, MinLength: 6})
		if err != nil {
			t.Fatal(err)
		}
		if got.Policy != config.GatePolicyTrigger || got.Window != time.Second || got.MinLength != 6 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("UnknownPolicy", func(t *testing.T) {
		cmd := gateFlagsCmd()
		cmd.Flags().Set("policy", "sometimes")
		if _, err := gateSettings(cmd, config.GateSettings{}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestCaptureRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := &captureRenderer{w: &buf}

	r.onView(scanner.View{Status: capture.Idle})
	if buf.Len() != 0 {
		t.Fatalf("idle view printed %q", buf.String())
	}

	r.onView(scanner.View{Status: capture.Active})
	if !strings.Contains(buf.String(), "active") {
		t.Errorf("missing status line: %q", buf.String())
	}

	buf.Reset()
	denied := model.NewError(model.KindPermissionDenied, "start", errors.New("camera blocked"))
	r.onView(scanner.View{Status: capture.Error, SessionError: denied})
	if !strings.Contains(buf.String(), "error") || !strings.Contains(buf.String(), "camera blocked") {
		t.Errorf("missing session error: %q", buf.String())
	}

	buf.Reset()
	n := &pipeline.Notice{Op: "add", ID: "tmp-1", Kind: model.KindNetworkFailure, Err: errors.New("connection refused")}
	r.onView(scanner.View{Status: capture.Error, Notice: n})
	r.onView(scanner.View{Status: capture.Error, Notice: n}) // same notice is printed once
	if got := strings.Count(buf.String(), "connection refused"); got != 1 {
		t.Errorf("notice printed %d times: %q", got, buf.String())
	}
	if !strings.Contains(buf.String(), "(retry)") {
		t.Errorf("retryable notice missing hint: %q", buf.String())
	}

	buf.Reset()
	r.onView(scanner.View{Status: capture.Error, Notice: n, Armed: true})
	if !strings.Contains(buf.String(), "armed") {
		t.Errorf("missing armed line: %q", buf.String())
	}
}

func TestOpenInput(t *testing.T) {
	name, rc, err := openInput("-")
	if err != nil || name != "stdin" {
		t.Fatalf("openInput(-) = %q, %v", name, err)
	}
	rc.Close()

	path := filepath.Join(t.TempDir(), "replay.txt")
	if err := os.WriteFile(path, []byte("4006381333931\tean_13\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	name, rc, err = openInput(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	if name != path {
		t.Errorf("name = %q, want %q", name, path)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "4006381333931\tean_13\n" {
		t.Errorf("read %q", data)
	}

	if _, _, err := openInput(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestArmOnEnter(t *testing.T) {
	var armed atomic.Int32
	armOnEnter(context.Background(), strings.NewReader("\n\n\n"), func() bool {
		armed.Add(1)
		return true
	})
	if got := armed.Load(); got != 3 {
		t.Errorf("armed %d times, want 3", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	armed.Store(0)
	armOnEnter(ctx, strings.NewReader("\n"), func() bool {
		armed.Add(1)
		return true
	})
	if got := armed.Load(); got != 0 {
		t.Errorf("armed %d times after cancel, want 0", got)
	}
}
