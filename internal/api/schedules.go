package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hospital-backup/internal/backup"
	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/schedule"
)

// CreateScheduleRequest carries createSchedule inputs
type CreateScheduleRequest struct {
	TenantID          string `json:"tenant_id" validate:"required"`
	Type              string `json:"type" validate:"required,backup_type"`
	Frequency         string `json:"frequency" validate:"required,frequency"`
	Time              string `json:"time" validate:"required,hhmm"`
	PrimaryLocation   string `json:"primary_location" validate:"required"`
	SecondaryLocation string `json:"secondary_location,omitempty"`
	RetentionDays     int    `json:"retention_days" validate:"min=0"`
	DayOfWeek         *int   `json:"day_of_week,omitempty" validate:"omitempty,min=1,max=7"`
	DayOfMonth        *int   `json:"day_of_month,omitempty" validate:"omitempty,min=1,max=31"`
	Active            *bool  `json:"active,omitempty"`
}

// UpdateScheduleRequest carries updateSchedule inputs; nil fields are left untouched
type UpdateScheduleRequest struct {
	Type              *string `json:"type,omitempty" validate:"omitempty,backup_type"`
	Frequency         *string `json:"frequency,omitempty" validate:"omitempty,frequency"`
	Time              *string `json:"time,omitempty" validate:"omitempty,hhmm"`
	PrimaryLocation   *string `json:"primary_location,omitempty" validate:"omitempty,min=1"`
	SecondaryLocation *string `json:"secondary_location,omitempty"`
	RetentionDays     *int    `json:"retention_days,omitempty" validate:"omitempty,min=0"`
	DayOfWeek         *int    `json:"day_of_week,omitempty" validate:"omitempty,min=1,max=7"`
	DayOfMonth        *int    `json:"day_of_month,omitempty" validate:"omitempty,min=1,max=31"`
	ClearDayOfWeek    bool    `json:"clear_day_of_week,omitempty"`
	ClearDayOfMonth   bool    `json:"clear_day_of_month,omitempty"`
	Active            *bool   `json:"active,omitempty"`
}

// CreateSchedule stores a recurring backup policy
func (s *Service) CreateSchedule(ctx context.Context, principal backup.Principal, req CreateScheduleRequest) Response {
	return s.run("create_schedule", principal, func() Response {
		if err := validateRequest(req); err != nil {
			return Fail(err)
		}
		sched, err := s.schedules.Create(ctx, principal, schedule.CreateRequest{
			TenantID:          req.TenantID,
			Type:              backup.BackupType(req.Type),
			Frequency:         schedule.Frequency(req.Frequency),
			TimeOfDay:         req.Time,
			DayOfWeek:         req.DayOfWeek,
			DayOfMonth:        req.DayOfMonth,
			RetentionDays:     req.RetentionDays,
			PrimaryLocation:   req.PrimaryLocation,
			SecondaryLocation: req.SecondaryLocation,
			Inactive:          req.Active != nil && !*req.Active,
		})
		if err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("Schedule %s created", sched.ScheduleID), sched)
	})
}

// ListSchedules lists schedules of a tenant, or of every tenant when tenantID is empty
func (s *Service) ListSchedules(ctx context.Context, principal backup.Principal, tenantID string, activeOnly bool) Response {
	return s.run("list_schedules", principal, func() Response {
		list, err := s.schedules.List(ctx, tenantID, activeOnly)
		if err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("%d schedules", len(list)), list)
	})
}

// GetSchedule loads a schedule by numeric id or token
func (s *Service) GetSchedule(ctx context.Context, principal backup.Principal, ref string) Response {
	return s.run("get_schedule", principal, func() Response {
		if strings.TrimSpace(ref) == "" {
			return Fail(apperrors.NewValidationError("schedule reference is required", nil))
		}
		sched, err := s.schedules.Find(ctx, ref)
		if err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("Schedule %s", sched.ScheduleID), sched)
	})
}

// UpdateSchedule edits a schedule and recomputes its next execution
func (s *Service) UpdateSchedule(ctx context.Context, principal backup.Principal, id uint, req UpdateScheduleRequest) Response {
	return s.run("update_schedule", principal, func() Response {
		if err := validateRequest(req); err != nil {
			return Fail(err)
		}

		update := schedule.UpdateRequest{
			TimeOfDay:         req.Time,
			DayOfWeek:         req.DayOfWeek,
			DayOfMonth:        req.DayOfMonth,
			ClearDayOfWeek:    req.ClearDayOfWeek,
			ClearDayOfMonth:   req.ClearDayOfMonth,
			RetentionDays:     req.RetentionDays,
			PrimaryLocation:   req.PrimaryLocation,
			SecondaryLocation: req.SecondaryLocation,
			Active:            req.Active,
		}
		if req.Type != nil {
			t := backup.BackupType(*req.Type)
			update.Type = &t
		}
		if req.Frequency != nil {
			f := schedule.Frequency(*req.Frequency)
			update.Frequency = &f
		}

		sched, err := s.schedules.Update(ctx, principal, id, update)
		if err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("Schedule %s updated", sched.ScheduleID), sched)
	})
}

// DeleteSchedule removes a schedule
func (s *Service) DeleteSchedule(ctx context.Context, principal backup.Principal, id uint) Response {
	return s.run("delete_schedule", principal, func() Response {
		if err := s.schedules.Delete(ctx, principal, id); err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("Schedule %d deleted", id), nil)
	})
}

// NextExecutions previews the next n runs of a schedule after now
func (s *Service) NextExecutions(ctx context.Context, principal backup.Principal, ref string, now time.Time, n int) Response {
	return s.run("next_executions", principal, func() Response {
		if n < 1 || n > 100 {
			return Fail(apperrors.NewValidationError("count must be between 1 and 100", nil))
		}
		sched, err := s.schedules.Find(ctx, ref)
		if err != nil {
			return Fail(err)
		}
		upcoming, err := sched.Upcoming(now, n)
		if err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("Next %d executions of %s", n, sched.ScheduleID), upcoming)
	})
}

// RunDueSchedules creates a backup for every due schedule
func (s *Service) RunDueSchedules(ctx context.Context, principal backup.Principal, now time.Time) Response {
	return s.run("run_due_schedules", principal, func() Response {
		if s.runner == nil {
			return Fail(apperrors.NewValidationError("schedule runner is not configured", nil))
		}
		outcomes, err := s.runner.RunDue(ctx, now)
		if err != nil {
			return Fail(err)
		}

		var failed []string
		for _, o := range outcomes {
			if o.Status == schedule.RunStatusFailed {
				failed = append(failed, fmt.Sprintf("%s: %s", o.ScheduleID, o.Error))
			}
		}
		if len(failed) > 0 {
			resp := Partial(fmt.Sprintf("%d of %d scheduled backups failed", len(failed), len(outcomes)), outcomes, nil)
			resp.Errors = failed
			return resp
		}
		return OK(fmt.Sprintf("%d scheduled backups completed", len(outcomes)), outcomes)
	})
}
