package schedule

import (
	"context"
	"time"

	"hospital-backup/internal/backup"
	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/logging"
)

// BackupCreator starts a backup run; backup.Manager satisfies it
type BackupCreator interface {
	CreateBackup(ctx context.Context, principal backup.Principal, req backup.CreateRequest) (*backup.CreateResult, error)
}

// RunOutcome reports one scheduled run
type RunOutcome struct {
	ScheduleID    string        `json:"schedule_id"`
	TenantID      string        `json:"tenant_id"`
	BackupID      string        `json:"backup_id,omitempty"`
	Status        string        `json:"status"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
	NextExecution *time.Time    `json:"next_execution,omitempty"`
}

// RunnerConfig wires a Runner
type RunnerConfig struct {
	Service *Service
	Backups BackupCreator
	// Principal is the identity scheduled runs act as; defaults to SystemPrincipal("scheduler")
	Principal backup.Principal
	Metrics   *backup.MetricsCollector
	Logger    *logging.Logger
}

// Runner executes due schedules one after another
type Runner struct {
	service   *Service
	backups   BackupCreator
	principal backup.Principal
	metrics   *backup.MetricsCollector
	logger    *logging.Logger
}

// NewRunner creates a schedule runner
func NewRunner(config RunnerConfig) (*Runner, error) {
	if config.Service == nil {
		return nil, apperrors.NewValidationError("schedule service is required", nil)
	}
	if config.Backups == nil {
		return nil, apperrors.NewValidationError("backup creator is required", nil)
	}
	principal := config.Principal
	if principal.ID == "" {
		principal = backup.SystemPrincipal("scheduler")
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Runner{
		service:   config.Service,
		backups:   config.Backups,
		principal: principal,
		metrics:   config.Metrics,
		logger:    logger,
	}, nil
}

// RunDue creates a backup for every active schedule due at now and records each outcome.
// A failed backup is recorded on its schedule and does not stop the batch; only bookkeeping
// errors and cancellation are returned.
func (r *Runner) RunDue(ctx context.Context, now time.Time) ([]RunOutcome, error) {
	due, err := r.service.Due(ctx, now)
	if err != nil {
		return nil, apperrors.WrapError(err, "failed to list due schedules")
	}

	r.logger.WithField("due", len(due)).Info("Running due backup schedules")

	outcomes := make([]RunOutcome, 0, len(due))
	for _, sched := range due {
		if err := ctx.Err(); err != nil {
			return outcomes, apperrors.NewAppError(apperrors.ErrorTypeInterruption, "schedule run interrupted", err)
		}

		outcome, err := r.run(ctx, sched, now)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (r *Runner) run(ctx context.Context, sched *BackupSchedule, now time.Time) (RunOutcome, error) {
	start := time.Now()
	outcome := RunOutcome{ScheduleID: sched.ScheduleID, TenantID: sched.TenantID}

	req := backup.CreateRequest{
		TenantID:          sched.TenantID,
		Type:              sched.Type,
		PrimaryLocation:   sched.PrimaryLocation,
		SecondaryLocation: sched.SecondaryLocation,
	}
	if sched.RetentionDays > 0 {
		expires := now.AddDate(0, 0, sched.RetentionDays).UTC()
		req.ExpiresAt = &expires
	}

	result, runErr := r.backups.CreateBackup(ctx, r.principal, req)
	if result != nil && result.Backup != nil {
		outcome.BackupID = result.Backup.BackupID
	}
	outcome.Duration = time.Since(start)

	updated, err := r.service.RecordRun(context.WithoutCancel(ctx), sched.ID, now, outcome.BackupID, runErr)
	if err != nil {
		return outcome, apperrors.WrapError(err, "failed to record schedule run")
	}
	outcome.Status = updated.LastStatus
	outcome.NextExecution = updated.NextExecution
	if runErr != nil {
		outcome.Error = runErr.Error()
	}

	r.metrics.RecordScheduleRun(sched.TenantID, runErr == nil, outcome.Duration)

	entry := r.logger.WithFields(map[string]interface{}{
		"schedule_id": sched.ScheduleID,
		"tenant_id":   sched.TenantID,
		"backup_id":   outcome.BackupID,
		"duration":    outcome.Duration.String(),
	})
	if runErr != nil {
		entry.WithField("error", runErr.Error()).Error("Scheduled backup failed")
	} else {
		entry.Info("Scheduled backup completed")
	}
	return outcome, nil
}
