package main

import (
	"errors"
	"fmt"
	"os"
	"os/user"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/storescan/internal/client"
	"github.com/alfredjeanlab/storescan/internal/config"
	"github.com/alfredjeanlab/storescan/internal/ui"
)

var (
	httpURL    string
	serverAddr string
	transport  string
	token      string
	natsURL    string
	scopeFlag  string
	jsonOutput bool
	noColor    bool
	actor      string

	// origin identifies this process to the server. Tentative records are
	// matched to their confirmed copies by it.
	origin = envOrDefault("STORESCAN_ORIGIN", uuid.NewString())

	profiles   config.Profiles
	target     targetSettings
	scanClient client.ScanClient
	httpClient *client.HTTPClient // nil with the grpc transport
)

func defaultActor() string {
	if a := os.Getenv("STORESCAN_ACTOR"); a != "" {
		return a
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// targetSettings is where the CLI talks to, after flags, environment and
// the active profile have been merged.
type targetSettings struct {
	HTTPURL  string
	GRPCAddr string
	Token    string
	NATSURL  string
	Scope    string
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolveTarget merges flag values (empty when unset), STORESCAN_*
// environment variables and the profile, in that order of precedence.
func resolveTarget(flags targetSettings, p config.Profile) targetSettings {
	return targetSettings{
		HTTPURL:  firstNonEmpty(flags.HTTPURL, os.Getenv("STORESCAN_HTTP_URL"), p.URL, "http://localhost:8080"),
		GRPCAddr: firstNonEmpty(flags.GRPCAddr, os.Getenv("STORESCAN_SERVER"), p.GRPCAddr, "localhost:9090"),
		Token:    firstNonEmpty(flags.Token, os.Getenv("STORESCAN_TOKEN"), p.Token),
		NATSURL:  firstNonEmpty(flags.NATSURL, os.Getenv("STORESCAN_NATS_URL"), p.NATSURL),
		Scope:    firstNonEmpty(flags.Scope, os.Getenv("STORESCAN_SCOPE"), p.StoreScope),
	}
}

// requireScope returns the store scope the command operates in.
func requireScope() (string, error) {
	if target.Scope == "" {
		return "", errors.New("no store scope: pass --scope, set STORESCAN_SCOPE or add store_scope to the active remote")
	}
	return target.Scope, nil
}

// requireHTTP returns the HTTP client for commands the gRPC service does
// not cover.
func requireHTTP() (*client.HTTPClient, error) {
	if httpClient == nil {
		return nil, errors.New("this command needs --transport http")
	}
	return httpClient, nil
}

func loadProfiles() error {
	path, err := config.ProfilesPath()
	if err != nil {
		return err
	}
	p, err := config.LoadProfiles(path)
	if err != nil {
		return fmt.Errorf("loading profiles: %w", err)
	}
	profiles = p
	return nil
}

var rootCmd = &cobra.Command{
	Use:          "storescan <command>",
	Short:        "Scan barcodes into a store scope and keep the list in sync",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		if err := loadProfiles(); err != nil {
			return err
		}
		active, _ := profiles.ActiveProfile()
		target = resolveTarget(targetSettings{
			HTTPURL:  httpURL,
			GRPCAddr: serverAddr,
			Token:    token,
			NATSURL:  natsURL,
			Scope:    scopeFlag,
		}, active)

		id := client.Identity{Actor: actor, Origin: origin}
		switch transport {
		case "http":
			httpClient = client.NewHTTPClient(target.HTTPURL, target.Token, id)
			scanClient = httpClient
		case "grpc":
			c, err := client.NewGRPCClient(target.GRPCAddr, target.Token, id)
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			scanClient = c
		default:
			return fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if scanClient != nil {
			scanClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", "", "HTTP server URL (default from profile or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "gRPC server address (default from profile or localhost:9090)")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", "", "NATS URL for realtime updates")
	rootCmd.PersistentFlags().StringVarP(&scopeFlag, "scope", "s", "", "store scope")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor(), "actor name recorded on new codes")

	rootCmd.AddGroup(
		&cobra.Group{ID: "codes", Title: "Scanned codes:"},
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)
	cobra.EnableCommandSorting = false

	// Scanned codes
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(copyCmd)

	// Views
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(clientsCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
