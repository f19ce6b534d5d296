package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/alfredjeanlab/storescan/internal/config"
)

func readProfiles() (string, config.Profiles, error) {
	path, err := config.ProfilesPath()
	if err != nil {
		return "", config.Profiles{}, err
	}
	p, err := config.LoadProfiles(path)
	return path, p, err
}

// editProfiles loads the profiles file, lets edit change it and saves it
// when edit reports a change.
func editProfiles(edit func(p *config.Profiles) (changed bool, err error)) error {
	path, p, err := readProfiles()
	if err != nil {
		return err
	}
	changed, err := edit(&p)
	if err != nil || !changed {
		return err
	}
	return config.SaveProfiles(path, p)
}

func lookupRemote(p *config.Profiles, name string) (config.Profile, error) {
	r, ok := p.Remotes[name]
	if !ok {
		return config.Profile{}, fmt.Errorf("remote %q not found", name)
	}
	return r, nil
}

func maskToken(tok string) string {
	const visible = 8
	if len(tok) <= visible {
		return tok
	}
	return tok[:visible] + strings.Repeat("*", len(tok)-visible)
}

// fields prints label/value pairs as an aligned block, skipping empty
// values.
func fields(out io.Writer, kv ...string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			fmt.Fprintf(w, "%s:\t%s\n", kv[i], kv[i+1])
		}
	}
	return w.Flush()
}

// applyGateFlags copies every gate flag set on the command line into g.
// Commands define only the flags they offer.
func applyGateFlags(flags *pflag.FlagSet, g *config.GateSettings) {
	if flags.Changed("policy") {
		g.Policy, _ = flags.GetString("policy")
	}
	if flags.Changed("window") {
		g.Window, _ = flags.GetDuration("window")
	}
	if flags.Changed("min-length") {
		g.MinLength, _ = flags.GetInt("min-length")
	}
	if flags.Changed("trigger-timeout") {
		g.TriggerTimeout, _ = flags.GetDuration("trigger-timeout")
	}
	if flags.Changed("rate") {
		g.RatePerSecond, _ = flags.GetFloat64("rate")
	}
	if flags.Changed("burst") {
		g.Burst, _ = flags.GetInt("burst")
	}
}

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage server remotes and capture settings",
	GroupID: "system",
	// Local file edits only; no client is needed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a remote or replace an existing one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		r := config.Profile{URL: args[1]}
		r.Token, _ = flags.GetString("token")
		r.GRPCAddr, _ = flags.GetString("grpc")
		r.NATSURL, _ = flags.GetString("nats")
		r.StoreScope, _ = flags.GetString("store-scope")
		r.Description, _ = flags.GetString("description")

		err := editProfiles(func(p *config.Profiles) (bool, error) {
			p.Remotes[args[0]] = r
			return true, nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q added (%s)\n", args[0], r.URL)
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		err := editProfiles(func(p *config.Profiles) (bool, error) {
			if _, err := lookupRemote(p, name); err != nil {
				return false, err
			}
			delete(p.Remotes, name)
			if p.Active == name {
				p.Active = ""
			}
			return true, nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q removed\n", name)
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remotes; the active one is starred",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, p, err := readProfiles()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(p.Remotes) == 0 {
			fmt.Fprintln(out, "no remotes configured")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tURL\tSCOPE\tDESCRIPTION")
		for _, name := range slices.Sorted(maps.Keys(p.Remotes)) {
			r := p.Remotes[name]
			mark := "  "
			if name == p.Active {
				mark = "* "
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n", mark, name, r.URL, r.StoreScope, r.Description)
		}
		return w.Flush()
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Make a remote active; without a name, clear the active remote",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		err := editProfiles(func(p *config.Profiles) (bool, error) {
			if name != "" {
				if _, err := lookupRemote(p, name); err != nil {
					return false, err
				}
			}
			p.Active = name
			return true, nil
		})
		if err != nil {
			return err
		}
		if name == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "active remote cleared")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "active remote set to %q\n", name)
		}
		return nil
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a remote (the active one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, p, err := readProfiles()
		if err != nil {
			return err
		}
		name := p.Active
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			return fmt.Errorf("no active remote; name one or run 'storescan remote use <name>'")
		}
		r, err := lookupRemote(&p, name)
		if err != nil {
			return err
		}
		if name == p.Active {
			name += " (active)"
		}
		return fields(cmd.OutOrStdout(),
			"name", name,
			"description", r.Description,
			"url", r.URL,
			"grpc_addr", r.GRPCAddr,
			"token", maskToken(r.Token),
			"nats_url", r.NATSURL,
			"store_scope", r.StoreScope,
		)
	},
}

// remoteGateCmd edits the [gate] table shared by every remote and prints
// the settings capture will use.
var remoteGateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Show or change the scan gate settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var eff config.GateSettings
		err := editProfiles(func(p *config.Profiles) (bool, error) {
			g := p.Gate
			applyGateFlags(cmd.Flags(), &g)
			if err := g.Validate(); err != nil {
				return false, err
			}
			eff = g.WithDefaults()
			changed := g != p.Gate
			p.Gate = g
			return changed, nil
		})
		if err != nil {
			return err
		}
		return fields(cmd.OutOrStdout(),
			"policy", eff.Policy,
			"window", eff.Window.String(),
			"min_length", fmt.Sprint(eff.MinLength),
			"trigger_timeout", eff.TriggerTimeout.String(),
			"rate_per_second", fmt.Sprint(eff.RatePerSecond),
			"burst", fmt.Sprint(eff.Burst),
		)
	},
}

func init() {
	add := remoteAddCmd.Flags()
	add.String("token", "", "bearer token")
	add.String("grpc", "", "gRPC address of the server")
	add.String("nats", "", "NATS URL for the realtime feed")
	add.String("store-scope", "", "default store scope")
	add.String("description", "", "free-form description")

	gate := remoteGateCmd.Flags()
	gate.String("policy", "", "throttle or trigger")
	gate.Duration("window", 0, "duplicate suppression window")
	gate.Int("min-length", 0, "shortest accepted linear barcode")
	gate.Duration("trigger-timeout", 0, "how long an armed trigger waits for a decode")
	gate.Float64("rate", 0, "accepted scans per second (0 disables the limiter)")
	gate.Int("burst", 0, "scans accepted back to back")

	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteListCmd, remoteUseCmd, remoteShowCmd, remoteGateCmd)
}
