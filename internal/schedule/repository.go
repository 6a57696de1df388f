package schedule

import (
	"context"
	"time"
)

// Repository persists backup schedules
type Repository interface {
	Create(ctx context.Context, s *BackupSchedule) error
	Save(ctx context.Context, s *BackupSchedule) error
	Delete(ctx context.Context, id uint) error
	FindByID(ctx context.Context, id uint) (*BackupSchedule, error)
	FindByScheduleID(ctx context.Context, scheduleID string) (*BackupSchedule, error)
	// List returns schedules ordered by id; an empty tenant matches every tenant
	List(ctx context.Context, tenantID string, activeOnly bool) ([]*BackupSchedule, error)
	// ListDue returns active schedules whose next execution is at or before now
	ListDue(ctx context.Context, now time.Time) ([]*BackupSchedule, error)
}
