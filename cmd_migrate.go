package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/database"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations for the postgres storage backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		connStr := cfg.Database.ConnectionString()
		logger.Info("Running migrations",
			zap.String("database", logging.SanitizeConnectionString(connStr)),
			zap.String("path", cfg.Database.MigrationsPath))

		if err := database.Migrate(connStr, cfg.Database.MigrationsPath, logger); err != nil {
			return err
		}

		color.New(color.FgGreen, color.Bold).Fprintln(cmd.OutOrStdout(), "Migrations applied")
		return nil
	},
}
