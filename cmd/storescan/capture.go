package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/storescan/internal/capture"
	"github.com/alfredjeanlab/storescan/internal/config"
	"github.com/alfredjeanlab/storescan/internal/gate"
	"github.com/alfredjeanlab/storescan/internal/model"
	"github.com/alfredjeanlab/storescan/internal/pipeline"
	"github.com/alfredjeanlab/storescan/internal/scanner"
	"github.com/alfredjeanlab/storescan/internal/ui"
)

// gateSettings applies the capture flags on top of the profile's [gate]
// table.
func gateSettings(cmd *cobra.Command, base config.GateSettings) (config.GateSettings, error) {
	g := base
	applyGateFlags(cmd.Flags(), &g)
	if err := g.Validate(); err != nil {
		return config.GateSettings{}, err
	}
	return g.WithDefaults(), nil
}

// captureRenderer prints what changed between two views.
type captureRenderer struct {
	w      io.Writer
	status capture.Status
	armed  bool
	notice *pipeline.Notice
}

func (r *captureRenderer) onView(v scanner.View) {
	if v.Status != r.status {
		r.status = v.Status
		fmt.Fprintf(r.w, "capture %s\n", renderStatus(v.Status))
		if v.SessionError != nil {
			fmt.Fprintf(r.w, "  %s\n", renderError(v.SessionError))
		}
	}
	if v.Armed != r.armed {
		r.armed = v.Armed
		if v.Armed {
			fmt.Fprintln(r.w, ui.RenderAccent("armed"))
		}
	}
	if v.Notice != nil && v.Notice != r.notice {
		r.notice = v.Notice
		msg := v.Notice.Error()
		if v.Notice.Kind.Retryable() {
			msg += " (retry)"
		}
		fmt.Fprintln(r.w, ui.RenderWarn(msg))
	}
}

func openInput(path string) (string, io.ReadCloser, error) {
	if path == "" || path == "-" {
		return "stdin", io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	return path, f, nil
}

// armOnEnter arms the gate each time Enter is pressed on r.
func armOnEnter(ctx context.Context, r io.Reader, arm func() bool) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		arm()
	}
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record scans from a keyboard-wedge scanner, stdin or a replay file",
	Long: `Record scans into a store scope.

Each input line is one decode result: "payload" or "payload<TAB>symbology".
Accepted scans appear at once as tentative entries and are confirmed when
the server has stored them. Repeated reads of the same code within the
gate window are dropped.

With --policy trigger only the first decode after arming is kept. The gate
is armed by SIGUSR1 and, when --input names a file or device and stdin is
a terminal, by pressing Enter.`,
	GroupID: "codes",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := requireScope()
		if err != nil {
			return err
		}
		gs, err := gateSettings(cmd, profiles.Gate)
		if err != nil {
			return err
		}
		inputPath, _ := cmd.Flags().GetString("input")
		via, _ := cmd.Flags().GetString("via")
		bell, _ := cmd.Flags().GetBool("bell")
		verbose, _ := cmd.Flags().GetBool("verbose")

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		stderr := cmd.ErrOrStderr()

		name, input, err := openInput(inputPath)
		if err != nil {
			return err
		}
		defer input.Close()
		device := capture.NewLineDevice(name, input)

		f, release, err := openFeed(via, logger)
		if err != nil {
			return err
		}
		defer release()

		gcfg := gate.FromSettings(gs)
		gcfg.Logger = logger
		r := &captureRenderer{w: stderr}
		ctrl := scanner.New(device, scanClient, f, scanner.Options{
			Gate:     gcfg,
			CameraID: capture.LineCameraID,
			Actor:    actor,
			Origin:   origin,
			Beep: func(ev gate.Event) {
				if bell {
					ui.Beep(stderr)
				}
				fmt.Fprintf(stderr, "%s %s %s\n", ui.RenderOK("+"), ev.Payload, ui.RenderMuted(ev.Symbology.String()))
			},
			OnView: r.onView,
			Logger: logger,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := ctrl.Open(ctx, scope); err != nil {
			if errors.Is(err, model.ErrInvalid) {
				return err
			}
			fmt.Fprintln(stderr, renderError(err))
		}
		if err := ctrl.StartCapture(ctx); err != nil {
			ctrl.Close(context.Background())
			return err
		}

		if gate.Policy(gs.Policy) == gate.Trigger {
			usr1 := make(chan os.Signal, 1)
			signal.Notify(usr1, syscall.SIGUSR1)
			defer signal.Stop(usr1)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-usr1:
						ctrl.Arm()
					}
				}
			}()
			if name != "stdin" && ui.IsTerminal(os.Stdin) {
				go armOnEnter(ctx, os.Stdin, ctrl.Arm)
			}
		}

		select {
		case <-ctx.Done():
		case <-device.Done():
		}

		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ctrl.Close(closeCtx)
		if err := device.Err(); err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}

		view := ctrl.View()
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), view.Records())
		}
		return printEntryTable(cmd.OutOrStdout(), view.Entries)
	},
}

func init() {
	captureCmd.Flags().StringP("input", "i", "-", "decode source: a file, FIFO or serial device (- for stdin)")
	captureCmd.Flags().String("via", "auto", "change feed: auto, nats, sse or none")
	captureCmd.Flags().String("policy", "", "gate policy: throttle or trigger (default from profile)")
	captureCmd.Flags().Duration("window", 0, "duplicate suppression window (default from profile)")
	captureCmd.Flags().Int("min-length", 0, "shortest accepted linear barcode (default from profile)")
	captureCmd.Flags().Bool("bell", true, "ring the terminal bell on every accepted scan")
	captureCmd.Flags().BoolP("verbose", "v", false, "log debug output")
}
