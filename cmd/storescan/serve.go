package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/storescan/internal/backup"
	"github.com/alfredjeanlab/storescan/internal/config"
	"github.com/alfredjeanlab/storescan/internal/events"
	"github.com/alfredjeanlab/storescan/internal/presence"
	"github.com/alfredjeanlab/storescan/internal/server"
	"github.com/alfredjeanlab/storescan/internal/store/postgres"
)

// backupDestinations builds the destinations enabled in cfg. A destination
// that cannot be created is logged and skipped.
func backupDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger) []backup.Destination {
	var dests []backup.Destination
	if cfg.BackupS3Bucket != "" {
		d, err := backup.NewS3Destination(ctx, cfg.BackupS3Bucket, cfg.BackupS3Prefix, cfg.BackupS3Region, cfg.BackupS3Endpoint)
		if err != nil {
			logger.Error("failed to create S3 backup destination", "err", err)
		} else {
			dests = append(dests, d)
			logger.Info("backup destination enabled", "destination", d.Name())
		}
	}
	if cfg.BackupDir != "" {
		d := backup.NewFileDestination(cfg.BackupDir, cfg.BackupKeep)
		dests = append(dests, d)
		logger.Info("backup destination enabled", "destination", d.Name(), "keep", cfg.BackupKeep)
	}
	return dests
}

// openBus connects the event publisher. Embedded NATS takes precedence over
// an external URL; with neither, events are discarded. The returned stop
// function shuts the embedded server down, if any.
func openBus(cfg *config.Config, logger *slog.Logger) (events.Publisher, func(), error) {
	url, stop := cfg.NATSURL, func() {}
	if cfg.NATSEmbedded {
		ns, err := events.StartEmbedded("0.0.0.0", cfg.NATSPort)
		if err != nil {
			return nil, nil, err
		}
		url, stop = ns.ClientURL(), ns.Shutdown
		logger.Info("embedded NATS started", "url", url)
	}
	if url == "" {
		logger.Info("events disabled (STORESCAN_NATS_URL not set)")
		return events.Discard, stop, nil
	}
	pub, err := events.NewNATSPublisher(url)
	if err != nil {
		stop()
		return nil, nil, err
	}
	logger.Info("events enabled", "nats_url", url)
	return pub, stop, nil
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the storescan HTTP and gRPC server",
	GroupID: "system",
	// The server needs no client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, stopSignals := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stopSignals()

		store, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{})
		if err != nil {
			return err
		}
		defer closeLogged(logger, "store", store.Close)

		publisher, stopBus, err := openBus(cfg, logger)
		if err != nil {
			return err
		}
		defer stopBus()
		defer closeLogged(logger, "publisher", publisher.Close)

		scanServer := server.NewScanServer(store, publisher)
		scanServer.Presence.StartReaper(&presence.ReaperConfig{
			OnGone: func(scope, origin string) {
				logger.Info("capture client gone", "scope", scope, "origin", origin)
			},
		})
		defer scanServer.Presence.Stop()

		if cfg.BackupInterval > 0 {
			if dests := backupDestinations(ctx, cfg, logger); len(dests) > 0 {
				scheduler := backup.NewScheduler(store, dests, cfg.BackupInterval, logger)
				scheduler.Start()
				defer scheduler.Stop()
				logger.Info("backup scheduler started", "interval", cfg.BackupInterval)
			}
		}

		auth := server.Auth{Token: cfg.AuthToken, ScopeTokens: cfg.ScopeTokens}
		grpcServer := server.NewGRPCServer(scanServer, auth)
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           scanServer.NewHTTPHandler(auth),
			ReadHeaderTimeout: 10 * time.Second,
		}
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down", "cause", context.Cause(gctx))
			grpcServer.GracefulStop()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})

		logger.Info("storescan server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"auth", cfg.AuthToken != "" || len(cfg.ScopeTokens) > 0,
		)
		err = g.Wait()
		logger.Info("shutdown complete")
		return err
	},
}

func closeLogged(logger *slog.Logger, what string, close func() error) {
	if err := close(); err != nil {
		logger.Error("close failed", "what", what, "err", err)
	}
}
