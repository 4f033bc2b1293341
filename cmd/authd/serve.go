// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/authd/authd/internal/account"
	accountpg "github.com/authd/authd/internal/account/postgres"
	"github.com/authd/authd/internal/config"
	"github.com/authd/authd/internal/hashwork"
	"github.com/authd/authd/internal/httpapi"
	"github.com/authd/authd/internal/logging"
	"github.com/authd/authd/internal/notify"
	"github.com/authd/authd/internal/observability"
	"github.com/authd/authd/internal/session"
	"github.com/authd/authd/internal/store"
	"github.com/authd/authd/internal/token"
)

const serviceName = "authd"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account API server",
		Long: `Start the account API server which handles registration, login,
account activation, and password recovery.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	// Flag names mirror config keys; flags override file values.
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().String("redis-url", "", "Redis connection URL")
	cmd.Flags().String("listen-addr", "", "API listen address")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", "", "log format (json or text)")
	cmd.Flags().String("frontend-url", "", "base URL for links in account emails")

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = store.NewPool
	}
	if deps.RedisFactory == nil {
		deps.RedisFactory = store.NewRedis
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	apiFactory := deps.APIServerFactory

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.SetDefault(serviceName, version, cfg.LogFormat)
	logger := slog.Default()

	slog.Info("starting authd",
		"listen_addr", cfg.ListenAddr,
		"log_format", cfg.LogFormat,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Backends.
	pool, err := deps.PoolFactory(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	migrator, err := deps.MigratorFactory(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close() //nolint:errcheck // migration error takes precedence
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err := migrator.Close(); err != nil {
		slog.Warn("error closing migrator", "error", err)
	}
	slog.Info("database schema up to date")

	rdb, err := deps.RedisFactory(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() {
		if closeErr := rdb.Close(); closeErr != nil {
			slog.Debug("error closing redis client", "error", closeErr)
		}
	}()

	// Observability first so workflow metrics land on its registry.
	var ready atomic.Bool
	var obsServer ObservabilityServer
	var metrics *account.Metrics

	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, ready.Load)
		if real, ok := obsServer.(*observability.Server); ok {
			metrics = account.NewMetrics(real.Registry())
		}
	}
	if metrics == nil {
		metrics = account.NopMetrics()
	}

	// Account workflows.
	hasher := account.NewArgon2idHasher()
	workers := hashwork.New(cfg.HashWorkers, cfg.HashAcquireTimeout)
	users := accountpg.NewUserRepository(pool)
	db := accountpg.NewDB(pool)
	broker := token.NewBroker(rdb)
	sessions := session.NewStore(rdb, cfg.SessionTTL)
	dispatcher := notify.NewLogDispatcher(logger)

	registration, err := account.NewRegistrationService(
		db, users, hasher, workers, broker, dispatcher,
		cfg.VerificationTTL, metrics, logger)
	if err != nil {
		return fmt.Errorf("failed to create registration service: %w", err)
	}
	auth, err := account.NewAuthService(users, hasher, workers, metrics, logger)
	if err != nil {
		return fmt.Errorf("failed to create auth service: %w", err)
	}
	reset, err := account.NewPasswordResetService(
		users, hasher, workers, broker, dispatcher,
		cfg.ResetTTL, metrics, logger)
	if err != nil {
		return fmt.Errorf("failed to create password reset service: %w", err)
	}

	svc := httpapi.Services{
		Registration: registration,
		Auth:         auth,
		Reset:        reset,
	}

	var apiServer APIServer
	if apiFactory != nil {
		apiServer, err = apiFactory(cfg.ListenAddr, svc, sessions,
			cfg.SessionTTL, cfg.FrontendURL, cfg.SecureCookies, logger)
	} else {
		apiServer, err = httpapi.NewServer(cfg.ListenAddr, svc, sessions,
			cfg.SessionTTL, cfg.FrontendURL, cfg.SecureCookies, logger)
	}
	if err != nil {
		return fmt.Errorf("failed to create api server: %w", err)
	}

	// Start servers.
	apiErrChan, err := apiServer.Start()
	if err != nil {
		return fmt.Errorf("failed to start api server: %w", err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	if obsServer != nil {
		obsErrChan, obsErr := obsServer.Start()
		if obsErr != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if stopErr := apiServer.Stop(shutdownCtx); stopErr != nil {
				slog.Warn("failed to stop api server during cleanup", "error", stopErr)
			}
			return fmt.Errorf("failed to start observability server: %w", obsErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	ready.Store(true)

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("authd started")
	slog.Info("authd ready", "api_addr", apiServer.Addr())

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	// Graceful shutdown
	slog.Info("shutting down...")
	ready.Store(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// This ensures that server failures trigger graceful shutdown of the entire process.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
		// Context cancelled, exit monitoring
	}
}
