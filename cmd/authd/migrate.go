// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authd/authd/internal/config"
	"github.com/authd/authd/internal/store"
)

// NewMigrateCmd creates the migrate subcommand with its actions.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long:  `Apply, roll back, and inspect schema migrations on the PostgreSQL database.`,
	}

	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	cmd.AddCommand(newMigrateVersionCmd())
	cmd.AddCommand(newMigrateForceCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					cmd.Println("No pending migrations")
					return nil
				}
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Printf("Applied %d migration(s)\n", len(pending))
				return nil
			})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations (destructive)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return oops.Code("CONFIRM_REQUIRED").
					Errorf("migrate down drops all tables; re-run with --yes to confirm")
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the destructive rollback")
	return cmd
}

func newMigrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the current migration version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if version == 0 {
					cmd.Println("No migrations applied")
					return nil
				}
				name, err := store.MigrationName(version)
				if err != nil {
					return err
				}
				if name == "" {
					name = "unknown"
				}
				cmd.Printf("Version: %d (%s)\n", version, name)
				if dirty {
					cmd.Println("State: DIRTY - a migration failed partway; fix the database and use 'migrate force'")
				}
				return nil
			})
		},
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Set the migration version without running migrations",
		Long: `Set the recorded migration version without running any migrations.
Use only to recover from a dirty state after manually fixing the database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil || version < 0 {
				return oops.Code("INVALID_VERSION").Errorf("version must be a non-negative integer, got %q", args[0])
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced version to %d\n", version)
				return nil
			})
		},
	}
}

// withMigrator resolves the database URL, runs fn against a migrator,
// and always closes it.
func withMigrator(cmd *cobra.Command, fn func(*store.Migrator) error) error {
	databaseURL, err := config.DatabaseURL(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("warning: %v\n", closeErr)
		}
	}()

	return fn(m)
}
