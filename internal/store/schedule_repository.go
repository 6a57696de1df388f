package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/schedule"
)

// ScheduleRepository persists schedule.BackupSchedule with gorm
type ScheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository wraps an open gorm handle
func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

var _ schedule.Repository = (*ScheduleRepository)(nil)

func (r *ScheduleRepository) Create(ctx context.Context, s *schedule.BackupSchedule) error {
	normalizeSchedule(s)
	return translate(r.db.WithContext(ctx).Create(s).Error, "")
}

func (r *ScheduleRepository) Save(ctx context.Context, s *schedule.BackupSchedule) error {
	if s.ID == 0 {
		return apperrors.NewValidationError("schedule has no id", nil)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&schedule.BackupSchedule{}).Where("id = ?", s.ID).Count(&count).Error; err != nil {
			return translate(err, "")
		}
		if count == 0 {
			return apperrors.NewNotFoundError(fmt.Sprintf("schedule %d not found", s.ID), nil)
		}
		normalizeSchedule(s)
		return translate(tx.Save(s).Error, "")
	})
}

func (r *ScheduleRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&schedule.BackupSchedule{}, id)
	if result.Error != nil {
		return translate(result.Error, "")
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("schedule %d not found", id), nil)
	}
	return nil
}

func (r *ScheduleRepository) FindByID(ctx context.Context, id uint) (*schedule.BackupSchedule, error) {
	var s schedule.BackupSchedule
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("schedule %d not found", id))
	}
	return &s, nil
}

func (r *ScheduleRepository) FindByScheduleID(ctx context.Context, scheduleID string) (*schedule.BackupSchedule, error) {
	var s schedule.BackupSchedule
	if err := r.db.WithContext(ctx).Where("schedule_id = ?", scheduleID).First(&s).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("schedule %s not found", scheduleID))
	}
	return &s, nil
}

func (r *ScheduleRepository) List(ctx context.Context, tenantID string, activeOnly bool) ([]*schedule.BackupSchedule, error) {
	q := r.db.WithContext(ctx).Order("id ASC")
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if activeOnly {
		q = q.Where("active = ?", true)
	}

	var out []*schedule.BackupSchedule
	if err := q.Find(&out).Error; err != nil {
		return nil, translate(err, "")
	}
	return out, nil
}

func (r *ScheduleRepository) ListDue(ctx context.Context, now time.Time) ([]*schedule.BackupSchedule, error) {
	var out []*schedule.BackupSchedule
	err := r.db.WithContext(ctx).
		Where("active = ? AND next_execution IS NOT NULL AND next_execution <= ?", true, now.UTC()).
		Order("next_execution ASC").
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, translate(err, "")
	}
	return out, nil
}

// times are stored in UTC so textual comparisons on sqlite stay ordered
func normalizeSchedule(s *schedule.BackupSchedule) {
	s.NextExecution = utcPtr(s.NextExecution)
	s.LastExecution = utcPtr(s.LastExecution)
}
