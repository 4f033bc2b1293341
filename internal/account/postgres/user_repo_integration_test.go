// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/authd/authd/internal/account"
	"github.com/authd/authd/internal/account/postgres"
	"github.com/authd/authd/internal/store"
)

// setupPostgresContainer starts a migrated PostgreSQL container and
// returns a pool connected to it.
func setupPostgresContainer() (*pgxpool.Pool, func(), error) {
	ctx := context.Background()

	container, err := pgcontainer.Run(ctx,
		"postgres:16-alpine",
		pgcontainer.WithDatabase("authd_test"),
		pgcontainer.WithUsername("authd"),
		pgcontainer.WithPassword("authd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		return nil, nil, err
	}
	if err := migrator.Close(); err != nil {
		return nil, nil, err
	}

	pool, err := store.NewPool(ctx, connStr)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}
	return pool, cleanup, nil
}

var _ = Describe("UserRepository", func() {
	var (
		pool    *pgxpool.Pool
		repo    *postgres.UserRepository
		cleanup func()
	)

	newUser := func(email string) account.NewUser {
		return account.NewUser{
			Email:        email,
			PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
			FirstName:    "Ada",
			LastName:     "Lovelace",
		}
	}

	BeforeEach(func() {
		var err error
		pool, cleanup, err = setupPostgresContainer()
		Expect(err).NotTo(HaveOccurred())
		repo = postgres.NewUserRepository(pool)
	})

	AfterEach(func() {
		cleanup()
	})

	Describe("CreateUserWithProfile", func() {
		It("creates the user and its profile atomically", func() {
			ctx := context.Background()

			tx, err := pool.Begin(ctx)
			Expect(err).NotTo(HaveOccurred())

			id, err := repo.CreateUserWithProfile(ctx, tx, newUser("ada@example.com"))
			Expect(err).NotTo(HaveOccurred())
			Expect(tx.Commit(ctx)).To(Succeed())

			user, err := repo.FindActiveByID(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Email).To(Equal("ada@example.com"))
			Expect(user.Profile.UserID).To(Equal(id))
		})

		It("leaves nothing behind when the transaction rolls back", func() {
			ctx := context.Background()

			tx, err := pool.Begin(ctx)
			Expect(err).NotTo(HaveOccurred())

			id, err := repo.CreateUserWithProfile(ctx, tx, newUser("ada@example.com"))
			Expect(err).NotTo(HaveOccurred())
			Expect(tx.Rollback(ctx)).To(Succeed())

			_, err = repo.FindActiveByID(ctx, id)
			Expect(err).To(MatchError(account.ErrNotFound))
		})

		It("rejects a duplicate email", func() {
			ctx := context.Background()

			_, err := repo.CreateUserWithProfile(ctx, pool, newUser("ada@example.com"))
			Expect(err).NotTo(HaveOccurred())

			_, err = repo.CreateUserWithProfile(ctx, pool, newUser("ada@example.com"))
			Expect(err).To(MatchError(account.ErrDuplicateEmail))
		})

		It("lets exactly one of two concurrent registrations win", func() {
			ctx := context.Background()

			// Both transactions race on the users.email unique index;
			// the loser surfaces the duplicate only once the winner
			// commits.
			start := make(chan struct{})
			results := make(chan error, 2)

			for i := 0; i < 2; i++ {
				go func() {
					<-start
					tx, err := pool.Begin(ctx)
					if err != nil {
						results <- err
						return
					}
					if _, err := repo.CreateUserWithProfile(ctx, tx, newUser("ada@example.com")); err != nil {
						_ = tx.Rollback(ctx)
						results <- err
						return
					}
					results <- tx.Commit(ctx)
				}()
			}
			close(start)

			var successes, duplicates int
			for i := 0; i < 2; i++ {
				switch err := <-results; {
				case err == nil:
					successes++
				case errors.Is(err, account.ErrDuplicateEmail):
					duplicates++
				default:
					Fail(fmt.Sprintf("unexpected registration error: %v", err))
				}
			}
			Expect(successes).To(Equal(1))
			Expect(duplicates).To(Equal(1))

			user, err := repo.FindActiveByEmail(ctx, "ada@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Profile.UserID).To(Equal(user.ID))
		})
	})

	Describe("named lookup variants", func() {
		var id ulid.ULID

		BeforeEach(func() {
			var err error
			id, err = repo.CreateUserWithProfile(context.Background(), pool, newUser("ada@example.com"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("finds by id, email, and both", func() {
			ctx := context.Background()

			byID, err := repo.FindActiveByID(ctx, id)
			Expect(err).NotTo(HaveOccurred())

			byEmail, err := repo.FindActiveByEmail(ctx, "ada@example.com")
			Expect(err).NotTo(HaveOccurred())

			byBoth, err := repo.FindActiveByIDAndEmail(ctx, id, "ada@example.com")
			Expect(err).NotTo(HaveOccurred())

			Expect(byEmail.ID).To(Equal(byID.ID))
			Expect(byBoth.ID).To(Equal(byID.ID))
		})

		It("does not match mixed criteria", func() {
			_, err := repo.FindActiveByIDAndEmail(context.Background(), ulid.Make(), "ada@example.com")
			Expect(err).To(MatchError(account.ErrNotFound))
		})

		It("excludes inactive users from every variant", func() {
			ctx := context.Background()

			_, err := pool.Exec(ctx, `UPDATE users SET is_active = FALSE WHERE id = $1`, id.String())
			Expect(err).NotTo(HaveOccurred())

			_, err = repo.FindActiveByID(ctx, id)
			Expect(err).To(MatchError(account.ErrNotFound))

			_, err = repo.FindActiveByEmail(ctx, "ada@example.com")
			Expect(err).To(MatchError(account.ErrNotFound))

			_, err = repo.FindActiveByIDAndEmail(ctx, id, "ada@example.com")
			Expect(err).To(MatchError(account.ErrNotFound))
		})
	})

	Describe("UpdatePassword", func() {
		It("replaces the stored hash", func() {
			ctx := context.Background()

			id, err := repo.CreateUserWithProfile(ctx, pool, newUser("ada@example.com"))
			Expect(err).NotTo(HaveOccurred())

			Expect(repo.UpdatePassword(ctx, id, "new-hash")).To(Succeed())

			user, err := repo.FindActiveByID(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(user.PasswordHash).To(Equal("new-hash"))
		})

		It("reports an unknown user", func() {
			err := repo.UpdatePassword(context.Background(), ulid.Make(), "new-hash")
			Expect(err).To(MatchError(account.ErrNotFound))
		})
	})

	Describe("Activate", func() {
		It("reactivates an inactive user idempotently", func() {
			ctx := context.Background()

			id, err := repo.CreateUserWithProfile(ctx, pool, newUser("ada@example.com"))
			Expect(err).NotTo(HaveOccurred())

			_, err = pool.Exec(ctx, `UPDATE users SET is_active = FALSE WHERE id = $1`, id.String())
			Expect(err).NotTo(HaveOccurred())

			Expect(repo.Activate(ctx, id)).To(Succeed())
			Expect(repo.Activate(ctx, id)).To(Succeed())

			user, err := repo.FindActiveByID(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(user.IsActive).To(BeTrue())
		})
	})
})
