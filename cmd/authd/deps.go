package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/authd/authd/internal/httpapi"
	"github.com/authd/authd/internal/observability"
	"github.com/authd/authd/internal/session"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the PostgreSQL connection pool.
	// Default: store.NewPool
	PoolFactory func(ctx context.Context, databaseURL string) (*pgxpool.Pool, error)

	// RedisFactory opens the Redis client.
	// Default: store.NewRedis
	RedisFactory func(ctx context.Context, redisURL string) (*redis.Client, error)

	// MigratorFactory creates the schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// APIServerFactory creates the account API server.
	// Default: httpapi.NewServer
	APIServerFactory func(
		addr string,
		svc httpapi.Services,
		sessions *session.Store,
		sessionTTL time.Duration,
		frontendURL string,
		secureCookies bool,
		logger *slog.Logger,
	) (APIServer, error)
}

// Migrator interface wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// APIServer interface wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
