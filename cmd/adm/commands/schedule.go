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

// ScheduleCommands returns the schedule management commands
func ScheduleCommands(scheduleService *services.ScheduleService, cfg *config.Config, logger *observability.Logger) *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Daily schedule management commands",
		Long: `Daily schedule management commands for the questly backend.

Available commands:
  generate - Generate deterministic schedules for a forward range
  rotate   - Rotate today's topics
  show     - Show the schedule for a date`,
	}

	scheduleCmd.AddCommand(generateScheduleCmd(scheduleService, cfg, logger))
	scheduleCmd.AddCommand(rotateCmd(scheduleService, logger))
	scheduleCmd.AddCommand(showScheduleCmd(scheduleService, cfg, logger))

	return scheduleCmd
}

// generateScheduleCmd returns the generate command
func generateScheduleCmd(scheduleService *services.ScheduleService, cfg *config.Config, logger *observability.Logger) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate schedules for the coming days",
		Long:  `Generate deterministic daily schedules starting today. Existing days are left untouched.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			if days <= 0 {
				days = cfg.Quest.ScheduleHorizonDays
			}
			if days <= 0 {
				days = config.DefaultScheduleHorizonDays
			}

			tz := cfg.BusinessTimezone()
			start := contextutils.BusinessDate(tz)
			end, err := contextutils.AddBusinessDays(start, days-1, tz)
			if err != nil {
				return contextutils.WrapError(err, "failed to compute end date")
			}

			generated, err := scheduleService.GenerateSchedule(ctx, start, end)
			if err != nil {
				logger.Error(ctx, "Schedule generation failed", err, map[string]interface{}{"start": start, "end": end})
				return contextutils.WrapError(err, "schedule generation failed")
			}

			fmt.Printf("Generated %d schedules (%s .. %s)\n", generated, start, end)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Number of days to generate (defaults to the configured horizon)")

	return cmd
}

// rotateCmd returns the rotate command
func rotateCmd(scheduleService *services.ScheduleService, logger *observability.Logger) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate today's topics",
		Long: `Rotate today's topics. Without --force the rotation only runs inside the
configured window and keeps an existing schedule; with --force it re-rolls
today unconditionally.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			schedule, err := scheduleService.RotateNow(ctx, force)
			if err != nil {
				logger.Error(ctx, "Rotation failed", err, map[string]interface{}{"force": force})
				return contextutils.WrapError(err, "rotation failed")
			}

			fmt.Printf("Rotated %s: free=%v premium=%v\n", schedule.Date, schedule.FreeTopicIDs(), schedule.PremiumTopicIDs())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-roll even outside the rotation window")

	return cmd
}

// showScheduleCmd returns the show command
func showScheduleCmd(scheduleService *services.ScheduleService, cfg *config.Config, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "show [date]",
		Short: "Show the schedule for a date",
		Long:  `Show the stored schedule for a date (YYYY-MM-DD). Defaults to today.`,
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

			schedule, err := scheduleService.GetSchedule(ctx, date)
			if err != nil {
				logger.Error(ctx, "Failed to load schedule", err, map[string]interface{}{"date": date})
				return contextutils.WrapError(err, "failed to load schedule")
			}

			fmt.Printf("Schedule %s\n", schedule.Date)
			fmt.Printf("  free:    %v\n", schedule.FreeTopicIDs())
			fmt.Printf("  premium: %v\n", schedule.PremiumTopicIDs())
			return nil
		},
	}
}
