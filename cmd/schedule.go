package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"hospital-backup/internal/api"
	"hospital-backup/internal/application"
)

func newScheduleCommand(c *cli) *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage recurring backup schedules",
		Long: `Manage recurring backup schedules.

A schedule runs HOURLY at the minute of its time, DAILY at its time, WEEKLY on its day of the
week (1 is Monday, 7 is Sunday) or MONTHLY on its day of the month, clamped to the last day of
shorter months. Times are local to the machine running the scheduler.

Examples:
  # Nightly complete backup kept for 30 days
  hospital-backup schedule create --tenant CHU-Nord --type COMPLETE --frequency DAILY \
      --time 02:00 --primary nightly --retention-days 30

  # Run whatever is due; meant to be called from cron every few minutes
  hospital-backup schedule run-due --roles SYSTEM`,
	}

	scheduleCmd.AddCommand(
		newScheduleCreateCommand(c),
		newScheduleListCommand(c),
		newScheduleShowCommand(c),
		newScheduleUpdateCommand(c),
		newScheduleDeleteCommand(c),
		newScheduleNextCommand(c),
		newScheduleRunDueCommand(c),
	)
	return scheduleCmd
}

func newScheduleCreateCommand(c *cli) *cobra.Command {
	var (
		req        api.CreateScheduleRequest
		dayOfWeek  int
		dayOfMonth int
		inactive   bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a backup schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("day-of-week") {
				req.DayOfWeek = &dayOfWeek
			}
			if cmd.Flags().Changed("day-of-month") {
				req.DayOfMonth = &dayOfMonth
			}
			if inactive {
				active := false
				req.Active = &active
			}
			return c.run(cmd, "", func(ctx context.Context, app *application.Application) api.Response {
				return app.API().CreateSchedule(ctx, app.Principal(), req)
			})
		},
	}

	cmd.Flags().StringVar(&req.TenantID, "tenant", "", "tenant identifier")
	cmd.Flags().StringVar(&req.Type, "type", "COMPLETE", "backup type")
	cmd.Flags().StringVar(&req.Frequency, "frequency", "DAILY", "HOURLY, DAILY, WEEKLY or MONTHLY")
	cmd.Flags().StringVar(&req.Time, "time", "", "time of day as HH:MM")
	cmd.Flags().StringVar(&req.PrimaryLocation, "primary", "", "primary location of the artifacts")
	cmd.Flags().StringVar(&req.SecondaryLocation, "secondary", "", "off-site location")
	cmd.Flags().IntVar(&req.RetentionDays, "retention-days", 0, "expire backups after this many days (0 keeps them)")
	cmd.Flags().IntVar(&dayOfWeek, "day-of-week", 0, "day of the week for WEEKLY schedules, 1 (Monday) to 7")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 0, "day of the month for MONTHLY schedules, 1 to 31")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the schedule disabled")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("time")
	_ = cmd.MarkFlagRequired("primary")
	return cmd
}

func newScheduleListCommand(c *cli) *cobra.Command {
	var (
		tenantID   string
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, "", func(ctx context.Context, app *application.Application) api.Response {
				return app.API().ListSchedules(ctx, app.Principal(), tenantID, activeOnly)
			})
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "only list schedules of this tenant")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only list active schedules")
	return cmd
}

func newScheduleShowCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|schedule-id>",
		Short: "Show a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, "", func(ctx context.Context, app *application.Application) api.Response {
				return app.API().GetSchedule(ctx, app.Principal(), args[0])
			})
		},
	}
}

func newScheduleUpdateCommand(c *cli) *cobra.Command {
	var (
		backupType        string
		frequency         string
		timeOfDay         string
		primaryLocation   string
		secondaryLocation string
		retentionDays     int
		dayOfWeek         int
		dayOfMonth        int
		active            bool
		req               api.UpdateScheduleRequest
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a schedule; only the given flags are applied",
		Long: `Change a schedule; only the given flags are applied.

Changing the frequency, time or day recomputes the next execution.

Examples:
  hospital-backup schedule update 3 --time 03:30
  hospital-backup schedule update 3 --frequency WEEKLY --day-of-week 7
  hospital-backup schedule update 3 --active=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("type") {
				req.Type = &backupType
			}
			if flags.Changed("frequency") {
				req.Frequency = &frequency
			}
			if flags.Changed("time") {
				req.Time = &timeOfDay
			}
			if flags.Changed("primary") {
				req.PrimaryLocation = &primaryLocation
			}
			if flags.Changed("secondary") {
				req.SecondaryLocation = &secondaryLocation
			}
			if flags.Changed("retention-days") {
				req.RetentionDays = &retentionDays
			}
			if flags.Changed("day-of-week") {
				req.DayOfWeek = &dayOfWeek
			}
			if flags.Changed("day-of-month") {
				req.DayOfMonth = &dayOfMonth
			}
			if flags.Changed("active") {
				req.Active = &active
			}

			return c.run(cmd, "", func(ctx context.Context, app *application.Application) api.Response {
				return app.API().UpdateSchedule(ctx, app.Principal(), id, req)
			})
		},
	}

	cmd.Flags().StringVar(&backupType, "type", "", "backup type")
	cmd.Flags().StringVar(&frequency, "frequency", "", "HOURLY, DAILY, WEEKLY or MONTHLY")
	cmd.Flags().StringVar(&timeOfDay, "time", "", "time of day as HH:MM")
	cmd.Flags().StringVar(&primaryLocation, "primary", "", "primary location")
	cmd.Flags().StringVar(&secondaryLocation, "secondary", "", "off-site location; empty clears it")
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "retention in days")
	cmd.Flags().IntVar(&dayOfWeek, "day-of-week", 0, "day of the week, 1 (Monday) to 7")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 0, "day of the month, 1 to 31")
	cmd.Flags().BoolVar(&req.ClearDayOfWeek, "clear-day-of-week", false, "remove the day of the week")
	cmd.Flags().BoolVar(&req.ClearDayOfMonth, "clear-day-of-month", false, "remove the day of the month")
	cmd.Flags().BoolVar(&active, "active", true, "enable or disable the schedule")
	return cmd
}

func newScheduleDeleteCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a schedule; backups it created are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, "", func(ctx context.Context, app *application.Application) api.Response {
				return app.API().DeleteSchedule(ctx, app.Principal(), id)
			})
		},
	}
}

func newScheduleNextCommand(c *cli) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "next <id|schedule-id>",
		Short: "Preview the next executions of a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, "", func(ctx context.Context, app *application.Application) api.Response {
				return app.API().NextExecutions(ctx, app.Principal(), args[0], time.Now(), count)
			})
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of executions to list")
	return cmd
}

func newScheduleRunDueCommand(c *cli) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "run-due",
		Short: "Run every active schedule whose next execution has passed",
		Long: `Run every active schedule whose next execution has passed, one backup per schedule.

Each schedule records its outcome and moves to its next execution whether or not the backup
succeeded. The command exits with status 2 when some schedules failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return parseError("--at", at, err)
				}
				now = parsed
			}
			return c.run(cmd, "Running due schedules", func(ctx context.Context, app *application.Application) api.Response {
				return app.API().RunDueSchedules(ctx, app.Principal(), now)
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "evaluate schedules as of this RFC 3339 time instead of now")
	return cmd
}
