package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/storescan/internal/client"
	"github.com/alfredjeanlab/storescan/internal/events"
	"github.com/alfredjeanlab/storescan/internal/model"
	"github.com/alfredjeanlab/storescan/internal/ui"
)

// eventAction returns the action part of an event topic.
func eventAction(topic string) string {
	if _, _, action, ok := events.ParseTopic(topic); ok {
		return action
	}
	return topic
}

func printEventTable(w io.Writer, evts []*model.Event) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tACTION\tCODE\tACTOR")
	for _, e := range evts {
		action := eventAction(e.Topic)
		switch action {
		case events.ActionCreated:
			action = ui.RenderOK(action)
		case events.ActionDeleted, events.ActionCleared:
			action = ui.RenderWarn(action)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.CreatedAt.Local().Format(timeLayout), action, ui.RenderAccent(e.CodeID), e.Actor)
	}
	return tw.Flush()
}

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "Show the change history of a store scope",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := requireScope()
		if err != nil {
			return err
		}
		api, err := requireHTTP()
		if err != nil {
			return err
		}
		after, _ := cmd.Flags().GetInt64("after")
		limit, _ := cmd.Flags().GetInt("limit")

		evts, err := api.ListEvents(cmd.Context(), scope, after, limit)
		if err != nil {
			return fmt.Errorf("listing events of %s: %w", scope, err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), evts)
		}
		return printEventTable(cmd.OutOrStdout(), evts)
	},
}

func printClientTable(w io.Writer, clients []client.ClientInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ORIGIN\tACTOR\tLAST ACTION\tIDLE\tSCANS\tSTATE")
	for _, c := range clients {
		state := ui.RenderOK("live")
		switch {
		case c.Reaped:
			state = ui.RenderMuted("gone")
		case c.Watching:
			state = ui.RenderAccent("watching")
		}
		idle := (time.Duration(c.IdleSecs) * time.Second).String()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", c.Origin, c.Actor, c.LastAction, idle, c.Scans, state)
	}
	return tw.Flush()
}

var clientsCmd = &cobra.Command{
	Use:     "clients",
	Short:   "Show the capture clients active in a store scope",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := requireScope()
		if err != nil {
			return err
		}
		api, err := requireHTTP()
		if err != nil {
			return err
		}
		clients, err := api.Clients(cmd.Context(), scope)
		if err != nil {
			return fmt.Errorf("listing clients of %s: %w", scope, err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), clients)
		}
		return printClientTable(cmd.OutOrStdout(), clients)
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the storescan server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := scanClient.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", status)
		}
		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int64("after", 0, "only events with a higher ID")
	historyCmd.Flags().Int("limit", 50, "maximum number of events")
}
