// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

// Package store provides database and cache connection management plus
// schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

const (
	// pingRetryBase is the initial backoff between readiness pings.
	pingRetryBase = 250 * time.Millisecond
	// pingRetryMax caps total time spent waiting for a backend at startup.
	pingRetryMax = 30 * time.Second
)

// NewPool opens a PostgreSQL connection pool and waits for the database
// to answer a ping. The pool is closed and an error returned if the
// database does not become reachable within the retry window.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_BAD_DATABASE_URL").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_POOL_FAILED").Wrap(err)
	}

	backoff := retry.WithMaxDuration(pingRetryMax, retry.NewExponential(pingRetryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			slog.Debug("database not ready, retrying", "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("STORE_POSTGRES_UNREACHABLE").Wrap(err)
	}

	slog.Info("connected to postgres", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)
	return pool, nil
}
