// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the keyhive command-line
// application.
package app

import (
	"github.com/spf13/cobra"

	"github.com/stacklok/keyhive/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "khv",
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	SilenceErrors:     true,
	Short:             "Keyhive (khv) is a multi-user encrypted credential vault server",
	Long: `Keyhive (khv) runs the keyhive API server: a multi-user vault storing
credentials encrypted at rest with per-account keys wrapped by a master key.
It serves a JSON API for accounts, password entries, collections, tags,
one-time shares and the audit trail.

Configuration comes from KEYHIVE_* environment variables; see 'khv serve --help'.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the keyhive CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}
