package commands

import (
	"context"
	"fmt"

	"questly/internal/config"
	"questly/internal/observability"
	"questly/internal/services"
	contextutils "questly/internal/utils"

	"github.com/spf13/cobra"
)

// LeaderboardCommands returns the leaderboard management commands
func LeaderboardCommands(leaderboardService *services.LeaderboardService, cfg *config.Config, logger *observability.Logger) *cobra.Command {
	leaderboardCmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Leaderboard management commands",
		Long: `Leaderboard management commands for the questly backend.

Available commands:
  snapshot - Recompute the denormalized ranking for a date
  show     - Show the daily leaderboard for a date`,
	}

	leaderboardCmd.AddCommand(snapshotCmd(leaderboardService, cfg, logger))
	leaderboardCmd.AddCommand(showLeaderboardCmd(leaderboardService, cfg, logger))

	return leaderboardCmd
}

// snapshotCmd returns the snapshot command
func snapshotCmd(leaderboardService *services.LeaderboardService, cfg *config.Config, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot [date]",
		Short: "Recompute the ranking for a date",
		Long:  `Delete and regenerate the leaderboard entries for a date (YYYY-MM-DD). Defaults to today.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()

			date := contextutils.BusinessDate(cfg.BusinessTimezone())
			if len(args) > 0 {
				date = args[0]
			}
			if _, err := contextutils.ParseBusinessDate(date, cfg.BusinessTimezone()); err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid date %q", date)
			}

			ranked, err := leaderboardService.Snapshot(ctx, date)
			if err != nil {
				logger.Error(ctx, "Snapshot failed", err, map[string]interface{}{"date": date})
				return contextutils.WrapError(err, "snapshot failed")
			}

			fmt.Printf("Snapshot for %s: %d users ranked\n", date, ranked)
			return nil
		},
	}
}

// showLeaderboardCmd returns the show command
func showLeaderboardCmd(leaderboardService *services.LeaderboardService, cfg *config.Config, logger *observability.Logger) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show [date]",
		Short: "Show the daily leaderboard for a date",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()

			date := contextutils.BusinessDate(cfg.BusinessTimezone())
			if len(args) > 0 {
				date = args[0]
			}
			if _, err := contextutils.ParseBusinessDate(date, cfg.BusinessTimezone()); err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid date %q", date)
			}

			entries, err := leaderboardService.GetDaily(ctx, date, limit)
			if err != nil {
				logger.Error(ctx, "Failed to load leaderboard", err, map[string]interface{}{"date": date})
				return contextutils.WrapError(err, "failed to load leaderboard")
			}

			if len(entries) == 0 {
				fmt.Printf("No leaderboard entries for %s\n", date)
				return nil
			}

			fmt.Printf("%-6s %-20s %s\n", "Rank", "Username", "Points")
			for _, entry := range entries {
				fmt.Printf("%-6d %-20s %d\n", entry.Rank, entry.Username, entry.Points)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")

	return cmd
}
