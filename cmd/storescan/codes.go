package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/storescan/internal/client"
	"github.com/alfredjeanlab/storescan/internal/model"
	"github.com/alfredjeanlab/storescan/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List the scanned codes of a store scope",
	GroupID: "codes",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := requireScope()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		var codes []*model.ScannedCode
		if limit > 0 || offset > 0 {
			resp, err := scanClient.ListCodes(cmd.Context(), &client.ListCodesRequest{Scope: scope, Limit: limit, Offset: offset})
			if err != nil {
				return fmt.Errorf("listing %s: %w", scope, err)
			}
			codes = resp.Codes
		} else {
			codes, err = scanClient.ListByScope(cmd.Context(), scope)
			if err != nil {
				return fmt.Errorf("listing %s: %w", scope, err)
			}
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), codes)
		}
		return printCodeTable(cmd.OutOrStdout(), codes)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Short:   "Delete one or more scanned codes",
	GroupID: "codes",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := requireScope()
		if err != nil {
			return err
		}
		for _, id := range args {
			if err := scanClient.Delete(cmd.Context(), scope, id); err != nil {
				if errors.Is(err, model.ErrNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s already gone\n", id)
					continue
				}
				return fmt.Errorf("deleting %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
		}
		return nil
	},
}

// confirm asks a yes/no question on out and reads the answer from in.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

var clearCmd = &cobra.Command{
	Use:     "clear",
	Short:   "Delete every scanned code of a store scope",
	GroupID: "codes",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := requireScope()
		if err != nil {
			return err
		}
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if !ui.IsTerminal(os.Stdin) {
				return errors.New("refusing to clear without --yes when stdin is not a terminal")
			}
			if !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Delete every scanned code in %s?", scope)) {
				fmt.Fprintln(cmd.ErrOrStderr(), "aborted")
				return nil
			}
		}
		n, err := scanClient.ClearScope(cmd.Context(), scope)
		if err != nil {
			return fmt.Errorf("clearing %s: %w", scope, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d codes from %s\n", n, scope)
		return nil
	},
}

// findCode returns the code of scope with the given ID.
func findCode(ctx context.Context, c client.ScanClient, scope, id string) (*model.ScannedCode, error) {
	codes, err := c.ListByScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	for _, code := range codes {
		if code.ID == id {
			return code, nil
		}
	}
	return nil, model.NewError(model.KindNotFound, "copy", fmt.Errorf("no code %s in %s", id, scope))
}

var copyCmd = &cobra.Command{
	Use:     "copy <id>",
	Short:   "Copy the payload of a scanned code to the clipboard",
	GroupID: "codes",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := requireScope()
		if err != nil {
			return err
		}
		code, err := findCode(cmd.Context(), scanClient, scope, args[0])
		if err != nil {
			return err
		}
		if !ui.IsTerminal(os.Stdout) {
			fmt.Fprintln(cmd.OutOrStdout(), code.Payload)
			return nil
		}
		if err := ui.CopyToClipboard(cmd.OutOrStdout(), code.Payload); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Copied %s\n", code.Payload)
		return nil
	},
}

func init() {
	listCmd.Flags().Int("limit", 0, "maximum number of codes to return (0 = all)")
	listCmd.Flags().Int("offset", 0, "offset for pagination")
	clearCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}
