// Package main provides the main entry point for the questly admin CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"questly/cmd/adm/commands"
	"questly/internal/config"
	"questly/internal/database"
	"questly/internal/observability"
	"questly/internal/services"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()

	// Local development convenience; a missing .env is not an error
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override log level for admin tool
	cfg.Server.LogLevel = "error"

	// Disable all OpenTelemetry features for the admin CLI to avoid connection errors
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	logger := observability.NewLogger(&cfg.OpenTelemetry)

	// Initialize database manager
	dbManager := database.NewManager(logger)

	// Connect without migrations; the migrate subcommand applies them explicitly
	db, err := dbManager.InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err, map[string]interface{}{"db_url": cfg.Database.URL})
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Warning: failed to close database connection", map[string]interface{}{"error": err.Error(), "db_url": cfg.Database.URL})
		}
	}()

	// Initialize services
	userService := services.NewUserService(db, cfg, logger)
	topicService := services.NewTopicService(db, logger)
	scheduleService := services.NewScheduleService(db, cfg, logger, topicService)
	leaderboardService := services.NewLeaderboardService(db, logger)
	progressService := services.NewProgressService(db, cfg, logger)

	// Create the root command
	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Questly Administration Tool",
		Long: `Questly Administration Tool

A CLI tool for administering the questly backend.
Provides commands for user management, topic import, schedule generation,
leaderboard snapshots, and database operations.`,

		Run: func(cmd *cobra.Command, _ []string) {
			// Show help if no subcommand provided
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	// Add subcommands with initialized services
	rootCmd.AddCommand(commands.UserCommands(userService, progressService, logger, cfg.Database.URL))
	rootCmd.AddCommand(commands.DatabaseCommands(dbManager, cfg, logger, db))
	rootCmd.AddCommand(commands.TopicCommands(topicService, logger))
	rootCmd.AddCommand(commands.ScheduleCommands(scheduleService, cfg, logger))
	rootCmd.AddCommand(commands.LeaderboardCommands(leaderboardService, cfg, logger))

	// Execute the command
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
