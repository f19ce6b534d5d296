package main

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/storescan/internal/events"
	"github.com/alfredjeanlab/storescan/internal/feed"
	"github.com/alfredjeanlab/storescan/internal/model"
	"github.com/alfredjeanlab/storescan/internal/ui"
)

// openFeed returns the realtime feed selected by via (auto, nats, sse or
// none) and a function releasing it. A nil feed means polling or manual
// refresh.
func openFeed(via string, logger *slog.Logger) (feed.Feed, func(), error) {
	if via == "auto" {
		switch {
		case target.NATSURL != "":
			via = "nats"
		case httpClient != nil:
			via = "sse"
		default:
			via = "none"
		}
	}
	switch via {
	case "nats":
		if target.NATSURL == "" {
			return nil, nil, fmt.Errorf("--via nats needs --nats-url, STORESCAN_NATS_URL or nats_url in the active remote")
		}
		f, err := feed.DialNATS(target.NATSURL, feed.NATSOptions{Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return f, func() { f.Close() }, nil
	case "sse":
		api, err := requireHTTP()
		if err != nil {
			return nil, nil, err
		}
		return feed.NewSSEFeed(api, feed.SSEOptions{Logger: logger}), func() {}, nil
	case "none":
		return nil, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown feed %q (must be auto, nats, sse or none)", via)
}

// codeDiff is what changed in a scope between two listings.
type codeDiff struct {
	Added   []*model.ScannedCode `json:"added,omitempty"`
	Removed []*model.ScannedCode `json:"removed,omitempty"`
}

// diffCodes compares codes against seen and updates seen in place. Added
// codes keep list order; removed codes are sorted by ID.
func diffCodes(codes []*model.ScannedCode, seen map[string]*model.ScannedCode) codeDiff {
	var d codeDiff
	current := make(map[string]bool, len(codes))
	for _, c := range codes {
		current[c.ID] = true
		if _, ok := seen[c.ID]; !ok {
			d.Added = append(d.Added, c)
			seen[c.ID] = c
		}
	}
	for id, c := range seen {
		if !current[id] {
			d.Removed = append(d.Removed, c)
			delete(seen, id)
		}
	}
	slices.SortFunc(d.Removed, func(a, b *model.ScannedCode) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return d
}

func printDiff(w io.Writer, d codeDiff) {
	for _, c := range d.Added {
		fmt.Fprintf(w, "%s %s  %s  %s\n", ui.RenderOK("+"), ui.RenderAccent(c.ID), c.Payload, ui.RenderMuted(c.CreatedBy))
	}
	for _, c := range d.Removed {
		fmt.Fprintf(w, "%s %s  %s\n", ui.RenderError("-"), ui.RenderMuted(c.ID), ui.RenderMuted(c.Payload))
	}
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Follow the scanned codes of a store scope as they change",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := requireScope()
		if err != nil {
			return err
		}
		via, _ := cmd.Flags().GetString("via")
		interval, _ := cmd.Flags().GetDuration("interval")
		once, _ := cmd.Flags().GetBool("once")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		out := cmd.OutOrStdout()
		seen := make(map[string]*model.ScannedCode)

		query := func() error {
			codes, err := scanClient.ListByScope(ctx, scope)
			if err != nil {
				return err
			}
			d := diffCodes(codes, seen)
			if jsonOutput {
				if len(d.Added)+len(d.Removed) > 0 {
					return printJSON(out, d)
				}
				return nil
			}
			printDiff(out, d)
			return nil
		}

		if err := query(); err != nil {
			return fmt.Errorf("listing %s: %w", scope, err)
		}
		if once {
			return nil
		}

		f, release, err := openFeed(via, logger)
		if err != nil {
			return err
		}
		defer release()

		changed := make(chan struct{}, 1)
		notify := func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		}
		var tick <-chan time.Time
		if f != nil {
			sub, err := f.Subscribe(scope, events.CategoryScannedCodes, notify)
			if err != nil {
				return fmt.Errorf("subscribing to %s: %w", scope, err)
			}
			defer sub.Unsubscribe()
		} else {
			t := time.NewTicker(interval)
			defer t.Stop()
			tick = t.C
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
			case <-tick:
			}
			if err := query(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn("resync failed", "scope", scope, "error", err)
			}
		}
	},
}

func init() {
	watchCmd.Flags().String("via", "auto", "change feed: auto, nats, sse or none (poll)")
	watchCmd.Flags().Duration("interval", 5*time.Second, "poll interval when no feed is used")
	watchCmd.Flags().Bool("once", false, "print the current codes and exit")
}
