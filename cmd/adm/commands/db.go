// Package commands provides CLI commands for the admin tool
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"questly/internal/config"
	"questly/internal/database"
	"questly/internal/observability"
	contextutils "questly/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(dbManager *database.Manager, cfg *config.Config, logger *observability.Logger, db *sql.DB) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the questly backend.

Available commands:
  migrate - Apply pending schema migrations
  stats   - Show database statistics`,
	}

	dbCmd.AddCommand(migrateCmd(dbManager, cfg, logger))
	dbCmd.AddCommand(statsCmd(logger, db))

	return dbCmd
}

// migrateCmd returns the migrate command
func migrateCmd(dbManager *database.Manager, cfg *config.Config, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long:  `Apply all pending golang-migrate migrations to the configured database.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			logger.Info(ctx, "Diagnostic info", map[string]interface{}{"config_file": os.Getenv("QUESTLY_CONFIG_FILE"), "database_url": maskDatabaseURL(cfg.Database.URL)})

			if err := dbManager.RunMigrations(cfg.Database); err != nil {
				logger.Error(ctx, "Migrations failed", err, map[string]interface{}{})
				return contextutils.WrapError(err, "migrations failed")
			}

			fmt.Println("Migrations applied")
			return nil
		},
	}
}

// statsCmd returns the stats command
func statsCmd(logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Long:  `Show row counts for the core tables.`,
		RunE:  runStats(logger, db),
	}
}

// runStats returns a function that shows database statistics
func runStats(logger *observability.Logger, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		logger.Info(ctx, "Diagnostic info", map[string]interface{}{"config_file": os.Getenv("QUESTLY_CONFIG_FILE"), "database": getDatabaseInfo(db)})

		tables := []string{"users", "topics", "daily_schedules", "user_progress", "user_points", "leaderboard_entries"}
		for _, table := range tables {
			var count int
			if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count); err != nil {
				logger.Error(ctx, "Failed to count table", err, map[string]interface{}{"table": table})
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to count %s: %v", table, err)
			}
			fmt.Printf("%-20s %d\n", table, count)
		}

		return nil
	}
}
