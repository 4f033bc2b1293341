// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/authd/authd/internal/account"
)

// beginner is the one pgx operation the adapter needs. Satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB adapts a pgx pool to account.DB so workflows can open
// transactions without importing pgx.
type DB struct {
	pool beginner
}

// NewDB creates a DB over the given pool.
func NewDB(pool beginner) *DB {
	return &DB{pool: pool}
}

// Begin opens a transaction.
func (d *DB) Begin(ctx context.Context) (account.Tx, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, oops.Code("ACCOUNT_TX_BEGIN_FAILED").Wrap(err)
	}
	return tx, nil
}

// Compile-time interface check.
var _ account.DB = (*DB)(nil)
