// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

package store

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// NewRedis opens a Redis client and waits for the server to answer a
// ping, using the same retry window as the database pool. The caller
// owns the returned client and must Close it.
func NewRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, oops.Code("STORE_BAD_REDIS_URL").Wrap(err)
	}

	client := redis.NewClient(opts)

	backoff := retry.WithMaxDuration(pingRetryMax, retry.NewExponential(pingRetryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := client.Ping(ctx).Err(); pingErr != nil {
			slog.Debug("redis not ready, retrying", "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		_ = client.Close() //nolint:errcheck // connect failure takes precedence
		return nil, oops.Code("STORE_REDIS_UNREACHABLE").Wrap(err)
	}

	slog.Info("connected to redis", "addr", opts.Addr)
	return client, nil
}
