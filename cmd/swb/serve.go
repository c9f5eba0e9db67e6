package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/switchboard/internal/config"
	"github.com/alfredjeanlab/switchboard/internal/events"
	"github.com/alfredjeanlab/switchboard/internal/lock"
	"github.com/alfredjeanlab/switchboard/internal/metrics"
	"github.com/alfredjeanlab/switchboard/internal/server"
	"github.com/alfredjeanlab/switchboard/internal/store"
	"github.com/alfredjeanlab/switchboard/internal/store/file"
	"github.com/alfredjeanlab/switchboard/internal/store/memory"
	"github.com/alfredjeanlab/switchboard/internal/store/postgres"
	"github.com/alfredjeanlab/switchboard/internal/store/sqlite"
	swsync "github.com/alfredjeanlab/switchboard/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the Switchboard HTTP and gRPC servers",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		logger.Info("store opened", "backend", cfg.Backend)

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (SWITCHBOARD_NATS_URL not set)")
		}

		m := metrics.New(logger)
		opts := []server.Option{
			server.WithDefectsPath(cfg.DefectsPath),
			server.WithMetrics(m),
			server.WithLogger(logger),
		}

		var locker *lock.RedisLocker
		if cfg.RedisURL != "" {
			locker, err = lock.NewRedisLocker(cfg.RedisURL, cfg.LockTTL, logger)
			if err != nil {
				publisher.Close()
				st.Close()
				return err
			}
			opts = append(opts, server.WithLocker(locker))
			logger.Info("distributed locking enabled", "ttl", cfg.LockTTL)
		}

		sbServer := server.NewSwitchboardServer(st, publisher, opts...)
		grpcServer := server.NewGRPCServer(sbServer, cfg.AuthToken)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publisher.Close()
			st.Close()
			return err
		}

		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: sbServer.NewHTTPHandler(cfg.AuthToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		var scheduler *swsync.Scheduler
		if cfg.SyncEnabled() {
			dests := syncDestinations(cfg, logger)
			if len(dests) > 0 {
				scheduler = swsync.NewScheduler(sbServer.Registry(), sbServer.Defects(), dests, cfg.SyncInterval, logger,
					swsync.WithObserver(m))
				scheduler.Start()
				logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
			}
		}

		logger.Info("switchboard server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if locker != nil {
			if err := locker.Close(); err != nil {
				logger.Error("error closing redis locker", "err", err)
			}
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// openStore opens the tree store selected by cfg.Backend.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendFile:
		return file.New(cfg.DataDir)
	case config.BackendPostgres:
		return postgres.New(cfg.DatabaseURL)
	case config.BackendSQLite:
		return sqlite.New(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// syncDestinations builds the configured snapshot destinations. A destination
// that cannot be created is logged and skipped.
func syncDestinations(cfg *config.Config, logger *slog.Logger) []swsync.Destination {
	var dests []swsync.Destination

	if cfg.SyncS3Bucket != "" {
		s3Dest, err := swsync.NewS3Destination(
			context.Background(),
			cfg.SyncS3Bucket,
			cfg.SyncS3Key,
			cfg.SyncS3Region,
			cfg.SyncS3Endpoint,
		)
		if err != nil {
			logger.Error("failed to create S3 sync destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}

	if cfg.SyncGitRepo != "" {
		dests = append(dests, swsync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
		logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
	}

	return dests
}
