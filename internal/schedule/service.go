package schedule

import (
	"context"
	"strconv"
	"strings"
	"time"

	"hospital-backup/internal/backup"
	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/logging"
)

// CreateRequest carries the policy of a new schedule
type CreateRequest struct {
	TenantID          string
	Type              backup.BackupType
	Frequency         Frequency
	TimeOfDay         string
	DayOfWeek         *int
	DayOfMonth        *int
	RetentionDays     int
	PrimaryLocation   string
	SecondaryLocation string
	// Inactive creates the schedule disabled
	Inactive bool
}

// UpdateRequest is a partial policy edit; nil fields are left untouched
type UpdateRequest struct {
	Type              *backup.BackupType
	Frequency         *Frequency
	TimeOfDay         *string
	DayOfWeek         *int
	DayOfMonth        *int
	ClearDayOfWeek    bool
	ClearDayOfMonth   bool
	RetentionDays     *int
	PrimaryLocation   *string
	SecondaryLocation *string
	Active            *bool
}

// ServiceConfig wires a Service
type ServiceConfig struct {
	Repository Repository
	Tenants    backup.TenantResolver
	Logger     *logging.Logger
}

// Service manages backup schedules and their run bookkeeping
type Service struct {
	repo    Repository
	tenants backup.TenantResolver
	logger  *logging.Logger
	now     func() time.Time
}

// NewService creates a schedule service
func NewService(config ServiceConfig) (*Service, error) {
	if config.Repository == nil {
		return nil, apperrors.NewValidationError("schedule repository is required", nil)
	}
	tenants := config.Tenants
	if tenants == nil {
		tenants = backup.AnyTenantResolver{}
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Service{
		repo:    config.Repository,
		tenants: tenants,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Create validates the policy, resolves the tenant and stores an active schedule with its
// first execution computed.
func (s *Service) Create(ctx context.Context, principal backup.Principal, req CreateRequest) (*BackupSchedule, error) {
	if err := backup.RequireElevated(principal); err != nil {
		return nil, err
	}

	sched := &BackupSchedule{
		ScheduleID:        NewScheduleID(),
		TenantID:          strings.TrimSpace(req.TenantID),
		Type:              req.Type,
		Frequency:         req.Frequency,
		TimeOfDay:         strings.TrimSpace(req.TimeOfDay),
		DayOfWeek:         req.DayOfWeek,
		DayOfMonth:        req.DayOfMonth,
		RetentionDays:     req.RetentionDays,
		PrimaryLocation:   strings.TrimSpace(req.PrimaryLocation),
		SecondaryLocation: strings.TrimSpace(req.SecondaryLocation),
		Active:            !req.Inactive,
		CreatedBy:         principal.ID,
	}
	if t, err := backup.ParseBackupType(string(sched.Type)); err == nil {
		sched.Type = t
	}
	if f, err := ParseFrequency(string(sched.Frequency)); err == nil {
		sched.Frequency = f
	}
	if err := sched.Validate(); err != nil {
		return nil, err
	}

	tenant, err := s.tenants.Resolve(ctx, sched.TenantID)
	if err != nil {
		return nil, err
	}
	sched.TenantID = tenant

	if err := s.schedule(sched, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, sched); err != nil {
		return nil, apperrors.WrapError(err, "failed to store backup schedule")
	}

	s.logger.WithFields(map[string]interface{}{
		"schedule_id":    sched.ScheduleID,
		"tenant_id":      sched.TenantID,
		"frequency":      sched.Frequency,
		"next_execution": sched.NextExecution,
		"operator":       principal.ID,
	}).Info("Backup schedule created")

	return sched, nil
}

// Get loads a schedule by numeric id
func (s *Service) Get(ctx context.Context, id uint) (*BackupSchedule, error) {
	return s.repo.FindByID(ctx, id)
}

// Find accepts a numeric id or a schedule token
func (s *Service) Find(ctx context.Context, ref string) (*BackupSchedule, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return s.repo.FindByID(ctx, uint(id))
	}
	return s.repo.FindByScheduleID(ctx, ref)
}

// List returns the schedules of a tenant, or of every tenant when tenantID is empty
func (s *Service) List(ctx context.Context, tenantID string, activeOnly bool) ([]*BackupSchedule, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID != "" {
		resolved, err := s.tenants.Resolve(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		tenantID = resolved
	}
	return s.repo.List(ctx, tenantID, activeOnly)
}

// Update applies a partial edit and recomputes the next execution. Disabling clears the next
// execution but keeps the run history.
func (s *Service) Update(ctx context.Context, principal backup.Principal, id uint, req UpdateRequest) (*BackupSchedule, error) {
	if err := backup.RequireElevated(principal); err != nil {
		return nil, err
	}

	sched, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Type != nil {
		sched.Type = *req.Type
		if t, err := backup.ParseBackupType(string(sched.Type)); err == nil {
			sched.Type = t
		}
	}
	if req.Frequency != nil {
		sched.Frequency = *req.Frequency
		if f, err := ParseFrequency(string(sched.Frequency)); err == nil {
			sched.Frequency = f
		}
	}
	if req.TimeOfDay != nil {
		sched.TimeOfDay = strings.TrimSpace(*req.TimeOfDay)
	}
	if req.ClearDayOfWeek {
		sched.DayOfWeek = nil
	} else if req.DayOfWeek != nil {
		v := *req.DayOfWeek
		sched.DayOfWeek = &v
	}
	if req.ClearDayOfMonth {
		sched.DayOfMonth = nil
	} else if req.DayOfMonth != nil {
		v := *req.DayOfMonth
		sched.DayOfMonth = &v
	}
	if req.RetentionDays != nil {
		sched.RetentionDays = *req.RetentionDays
	}
	if req.PrimaryLocation != nil {
		sched.PrimaryLocation = strings.TrimSpace(*req.PrimaryLocation)
	}
	if req.SecondaryLocation != nil {
		sched.SecondaryLocation = strings.TrimSpace(*req.SecondaryLocation)
	}
	if req.Active != nil {
		sched.Active = *req.Active
	}

	if err := sched.Validate(); err != nil {
		return nil, err
	}
	if err := s.schedule(sched, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, sched); err != nil {
		return nil, apperrors.WrapError(err, "failed to update backup schedule")
	}

	s.logger.WithFields(map[string]interface{}{
		"schedule_id": sched.ScheduleID,
		"active":      sched.Active,
		"operator":    principal.ID,
	}).Info("Backup schedule updated")

	return sched, nil
}

// Delete removes a schedule; backups it produced are kept
func (s *Service) Delete(ctx context.Context, principal backup.Principal, id uint) error {
	if err := backup.RequireElevated(principal); err != nil {
		return err
	}
	sched, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, sched.ID); err != nil {
		return apperrors.WrapError(err, "failed to delete backup schedule")
	}

	s.logger.WithFields(map[string]interface{}{
		"schedule_id": sched.ScheduleID,
		"operator":    principal.ID,
	}).Info("Backup schedule deleted")
	return nil
}

// RecordRun stores the outcome of a run at the given instant and schedules the next one
func (s *Service) RecordRun(ctx context.Context, id uint, at time.Time, backupID string, runErr error) (*BackupSchedule, error) {
	sched, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ran := at
	sched.LastExecution = &ran
	if backupID != "" {
		sched.LastBackupID = backupID
	}
	if runErr != nil {
		sched.LastStatus = RunStatusFailed
		sched.FailureCount++
		sched.LastError = runErr.Error()
	} else {
		sched.LastStatus = RunStatusSuccess
		sched.SuccessCount++
		sched.LastError = ""
	}

	if err := s.schedule(sched, at); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, sched); err != nil {
		return nil, apperrors.WrapError(err, "failed to record schedule run")
	}
	return sched, nil
}

// Due lists the active schedules whose next execution is at or before now
func (s *Service) Due(ctx context.Context, now time.Time) ([]*BackupSchedule, error) {
	return s.repo.ListDue(ctx, now)
}

// schedule sets NextExecution for an active schedule and clears it otherwise
func (s *Service) schedule(sched *BackupSchedule, now time.Time) error {
	if !sched.Active {
		sched.NextExecution = nil
		return nil
	}
	next, err := sched.Next(now)
	if err != nil {
		return err
	}
	sched.NextExecution = &next
	return nil
}
