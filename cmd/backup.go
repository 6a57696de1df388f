package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"hospital-backup/internal/api"
	"hospital-backup/internal/application"
	"hospital-backup/internal/backup"
	"hospital-backup/internal/confirmation"
	"hospital-backup/internal/display"
	apperrors "hospital-backup/internal/errors"
)

func newBackupCommand(c *cli) *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, verify and inspect tenant backups",
		Long: `Create, verify and inspect tenant backups.

Each backup is a plain SQL dump written under the backup root and recorded in the metadata
catalog with its table and row counts, its database fingerprint and the checksum of the
artifact file.

Examples:
  # Create a backup into <root>/CHU-Nord/daily
  hospital-backup backup create --tenant CHU-Nord --type COMPLETE --primary daily

  # Recompute the artifact checksum and mark the backup VERIFIED
  hospital-backup backup verify 42

  # Show the restore chain of an incremental backup
  hospital-backup backup chain 57`,
	}

	backupCmd.AddCommand(
		newBackupCreateCommand(c),
		newBackupStatusCommand(c),
		newBackupVerifyCommand(c),
		newBackupShowCommand(c),
		newBackupLastCommand(c),
		newBackupStatsCommand(c),
		newBackupChainCommand(c),
		newBackupReplicasCommand(c),
	)
	return backupCmd
}

func newBackupCreateCommand(c *cli) *cobra.Command {
	var (
		req       api.CreateBackupRequest
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Dump a tenant database and record the backup",
		Long: `Dump a tenant database and record the backup.

The primary location is a directory relative to the backup root, a path under one of the
accepted roots, or a path carrying the foreign-system prefix. When a secondary location is
given and off-site storage is configured, the artifact is compressed, optionally encrypted
and uploaded there after the dump.

Examples:
  hospital-backup backup create --tenant CHU-Nord --type COMPLETE --primary daily
  hospital-backup backup create --tenant CHU-Nord --type INCREMENTAL --primary hourly \
      --secondary s3://hospital-archive/chu-nord --expires-in 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if expiresIn < 0 {
				return apperrors.NewValidationError("--expires-in cannot be negative", nil)
			}
			if expiresIn > 0 {
				at := time.Now().Add(expiresIn).UTC()
				req.ExpiresAt = &at
			}
			spin := fmt.Sprintf("Backing up %s", req.TenantID)
			return c.run(cmd, spin, func(ctx context.Context, app *application.Application) api.Response {
				return app.API().CreateBackup(ctx, app.Principal(), req)
			})
		},
	}

	cmd.Flags().StringVar(&req.TenantID, "tenant", "", "tenant identifier")
	cmd.Flags().StringVar(&req.Type, "type", "COMPLETE", "backup type (COMPLETE, INCREMENTAL, DIFFERENTIAL, SNAPSHOT)")
	cmd.Flags().StringVar(&req.PrimaryLocation, "primary", "", "primary location of the artifact")
	cmd.Flags().StringVar(&req.SecondaryLocation, "secondary", "", "off-site location (s3://, azure://, gs:// or a directory)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "expire the backup after this duration")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("primary")
	return cmd
}

func newBackupStatusCommand(c *cli) *cobra.Command {
	var (
		status       string
		sizeBytes    int64
		duration     time.Duration
		checksum     string
		fileCount    int
		tableCount   int
		errorMessage string
	)

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Move a backup to a new status",
		Long: `Move a backup to a new status and record integrity fields reported by an external job.

Allowed moves follow the backup lifecycle: PENDING to SUCCESS or FAILED, SUCCESS or RESTORED
to VERIFIED, and RESTORING to RESTORED or FAILED. A FAILED backup never moves again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			req := api.UpdateStatusRequest{Status: status}
			flags := cmd.Flags()
			if flags.Changed("size-bytes") {
				req.SizeBytes = &sizeBytes
			}
			if flags.Changed("duration") {
				secs := int64(duration / time.Second)
				req.DurationSeconds = &secs
			}
			if flags.Changed("checksum") {
				req.Checksum = &checksum
			}
			if flags.Changed("file-count") {
				req.FileCount = &fileCount
			}
			if flags.Changed("table-count") {
				req.TableCount = &tableCount
			}
			if flags.Changed("error") {
				req.ErrorMessage = &errorMessage
			}

			return c.run(cmd, "", func(ctx context.Context, app *application.Application) api.Response {
				return app.API().UpdateBackupStatus(ctx, app.Principal(), id, req)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "new status (SUCCESS, FAILED, VERIFIED, ...)")
	cmd.Flags().Int64Var(&sizeBytes, "size-bytes", 0, "artifact size in bytes")
	cmd.Flags().DurationVar(&duration, "duration", 0, "backup duration")
	cmd.Flags().StringVar(&checksum, "checksum", "", "database fingerprint")
	cmd.Flags().IntVar(&fileCount, "file-count", 0, "number of files in the artifact")
	cmd.Flags().IntVar(&tableCount, "table-count", 0, "number of tables dumped")
	cmd.Flags().StringVar(&errorMessage, "error", "", "error message for a FAILED backup")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func newBackupVerifyCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <id>",
		Short: "Check a backup artifact against its recorded checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, "Verifying backup", func(ctx context.Context, app *application.Application) api.Response {
				return app.API().VerifyBackup(ctx, app.Principal(), id)
			})
		},
	}
}

func newBackupShowCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|backup-id>",
		Short: "Show a backup and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, "", func(ctx context.Context, app *application.Application) api.Response {
				return app.API().GetBackup(ctx, app.Principal(), args[0])
			})
		},
	}
}

func newBackupLastCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "last <tenant>",
		Short: "Show the latest successful backup of a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, "", func(ctx context.Context, app *application.Application) api.Response {
				return app.API().GetLastSuccessfulBackup(ctx, app.Principal(), args[0])
			})
		},
	}
}

func newBackupStatsCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <tenant>",
		Short: "Summarize the backups of a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, "", func(ctx context.Context, app *application.Application) api.Response {
				return app.API().GetBackupStats(ctx, app.Principal(), args[0])
			})
		},
	}
}

func newBackupChainCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "chain <id>",
		Short: "List the backups needed to restore a backup, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, "", func(ctx context.Context, app *application.Application) api.Response {
				return app.API().GetBackupChain(ctx, app.Principal(), id)
			})
		},
	}
}

func newBackupReplicasCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "replicas <location>",
		Short: "List the off-site replicas stored under a location",
		Example: `  hospital-backup backup replicas s3://hospital-archive/chu-nord
  hospital-backup backup replicas /mnt/offsite/chu-nord`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, "Listing replicas", func(ctx context.Context, app *application.Application) api.Response {
				return app.API().ListReplicas(ctx, app.Principal(), args[0])
			})
		},
	}
}

func newRestoreCommand(c *cli) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Replay a backup into its tenant database",
		Long: `Replay a backup into its tenant database, one statement at a time.

Restoring requires the ADMIN, SUPER_ADMIN or SYSTEM role. When validate_on_restore is set the
artifact is checked against its recorded checksum first. The restore is recorded in the backup
history whatever its outcome; statements that fail are counted and the restore continues.

On a terminal the command shows the backup and asks for confirmation unless --yes is given.

Examples:
  hospital-backup restore 42 --roles ADMIN
  hospital-backup restore 42 --roles SYSTEM --yes --format json --timeout 30m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var confirm gate
			if c.interactive && !yes {
				confirm = c.confirmRestore(id)
			}
			return c.runGated(cmd, "Restoring backup", confirm, func(ctx context.Context, app *application.Application) api.Response {
				return app.API().RestoreBackup(ctx, app.Principal(), id)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "restore without asking for confirmation")
	return cmd
}

// confirmRestore shows the backup and its chain on the status writer and waits for the operator
func (c *cli) confirmRestore(id uint) gate {
	return func(ctx context.Context, app *application.Application) *api.Response {
		found := app.API().GetBackup(ctx, app.Principal(), strconv.FormatUint(uint64(id), 10))
		if !found.Success {
			return &found
		}
		rec, ok := found.Data.(*backup.BackupMetadata)
		if !ok {
			resp := api.Fail(apperrors.NewNotFoundError(fmt.Sprintf("backup %d not found", id), nil))
			return &resp
		}
		plan := confirmation.RestorePlan{Backup: rec}
		if chain := app.API().GetBackupChain(ctx, app.Principal(), id); chain.Success {
			if data, ok := chain.Data.(api.ChainData); ok {
				plan.Chain = data.RestoreInstructions
			}
		}

		colors := display.NewColorSystem(c.errOut, display.ColorMode(c.colorMode), display.GetThemeByName(c.theme))
		confirmed, err := confirmation.NewConfirmationService(c.in, c.errOut, colors).ConfirmRestore(ctx, plan, false)
		if err != nil {
			resp := api.Fail(apperrors.NewAppError(apperrors.ErrorTypeInterruption, "restore was not confirmed", err))
			return &resp
		}
		if !confirmed {
			resp := api.Fail(apperrors.NewAppError(apperrors.ErrorTypeInterruption, "restore cancelled by operator", nil))
			return &resp
		}
		return nil
	}
}
