package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the authd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authd",
		Short: "Authd - account and credential lifecycle service",
		Long: `Authd manages user registration, authentication, and password
recovery, backed by PostgreSQL for durable accounts and Redis for
sessions and short-lived tokens.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}
