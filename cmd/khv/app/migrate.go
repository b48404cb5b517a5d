// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/keyhive/pkg/config"
	"github.com/stacklok/keyhive/pkg/storage/sqlite"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Long: `Applies all pending schema migrations to the database named by
KEYHIVE_DATABASE_URL (or --database-url) and exits. The serve command
migrates on startup as well; this command exists for deployments that
migrate as a separate step.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			databaseURL, _ := cmd.Flags().GetString("database-url")
			if databaseURL == "" {
				databaseURL = viper.GetString("database-url")
			}
			if databaseURL == "" {
				return fmt.Errorf("%w: KEYHIVE_DATABASE_URL is required", config.ErrInvalid)
			}

			db, err := sqlite.Open(cmd.Context(), databaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("applying migrations: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}

	cmd.Flags().String("database-url", "", "SQLite database path or DSN")
	return cmd
}
