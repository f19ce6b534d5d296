package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/alfredjeanlab/storescan/internal/capture"
	"github.com/alfredjeanlab/storescan/internal/model"
	"github.com/alfredjeanlab/storescan/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printCodeTable(w io.Writer, codes []*model.ScannedCode) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPAYLOAD\tSYMBOLOGY\tCAPTURED\tBY")
	for _, c := range codes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			ui.RenderAccent(c.ID), c.Payload, ui.RenderMuted(c.Symbology.String()),
			c.CapturedAt.Local().Format(timeLayout), c.CreatedBy)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d codes\n", len(codes))
	return nil
}

// printEntryTable prints the capture list. Tentative entries are muted.
func printEntryTable(w io.Writer, entries []model.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPAYLOAD\tSYMBOLOGY\tSTATE")
	for _, e := range entries {
		id, state := ui.RenderAccent(e.ID()), ui.RenderOK(e.State.String())
		if e.IsTentative() {
			id, state = ui.RenderMuted(e.ID()), ui.RenderMuted(e.State.String())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, e.Code.Payload, e.Code.Symbology, state)
	}
	return tw.Flush()
}

func renderStatus(s capture.Status) string {
	switch s {
	case capture.Active:
		return ui.RenderOK(s.String())
	case capture.Error:
		return ui.RenderError(s.String())
	case capture.Initializing, capture.Stopping:
		return ui.RenderWarn(s.String())
	}
	return ui.RenderMuted(s.String())
}

// renderError colors err by how it affects the session.
func renderError(err error) string {
	kind := model.KindOf(err)
	switch {
	case kind.SessionFatal():
		return ui.RenderError(err.Error())
	case kind.Retryable():
		return ui.RenderWarn(err.Error() + " (retry)")
	}
	return ui.RenderWarn(err.Error())
}
