// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/wefix/authgate/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the authgate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authgate",
		Short: "authgate - signed-envelope authentication gateway",
		Long: `authgate authenticates clients by email and password or by a
GitHub or Google access token, carried in HMAC-signed envelopes, and
issues session tokens for the resolved account.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewSignCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// loadConfig reads configuration for cmd from --config, the environment and
// the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.LoadOptions{File: configFile, Flags: cmd.Flags()})
}
