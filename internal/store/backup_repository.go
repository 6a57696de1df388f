package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"hospital-backup/internal/backup"
	apperrors "hospital-backup/internal/errors"
)

// BackupRepository persists backup.BackupMetadata with gorm
type BackupRepository struct {
	db *gorm.DB
}

// NewBackupRepository wraps an open gorm handle
func NewBackupRepository(db *gorm.DB) *BackupRepository {
	return &BackupRepository{db: db}
}

var _ backup.Repository = (*BackupRepository)(nil)

// Create inserts a new record and assigns its id
func (r *BackupRepository) Create(ctx context.Context, b *backup.BackupMetadata) error {
	normalizeBackup(b)
	return translate(r.db.WithContext(ctx).Create(b).Error, "")
}

// Save overwrites an existing record
func (r *BackupRepository) Save(ctx context.Context, b *backup.BackupMetadata) error {
	if b.ID == 0 {
		return apperrors.NewValidationError("backup record has no id", nil)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&backup.BackupMetadata{}).Where("id = ?", b.ID).Count(&count).Error; err != nil {
			return translate(err, "")
		}
		if count == 0 {
			return apperrors.NewNotFoundError(fmt.Sprintf("backup %d not found", b.ID), nil)
		}
		normalizeBackup(b)
		return translate(tx.Save(b).Error, "")
	})
}

// FindByID loads a record by numeric id
func (r *BackupRepository) FindByID(ctx context.Context, id uint) (*backup.BackupMetadata, error) {
	var b backup.BackupMetadata
	if err := r.db.WithContext(ctx).First(&b, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("backup %d not found", id))
	}
	return &b, nil
}

// FindByBackupID loads a record by its token
func (r *BackupRepository) FindByBackupID(ctx context.Context, backupID string) (*backup.BackupMetadata, error) {
	var b backup.BackupMetadata
	if err := r.db.WithContext(ctx).Where("backup_id = ?", backupID).First(&b).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("backup %s not found", backupID))
	}
	return &b, nil
}

// ListByTenant returns the tenant's records by start time, then sequence
func (r *BackupRepository) ListByTenant(ctx context.Context, tenantID string) ([]*backup.BackupMetadata, error) {
	var out []*backup.BackupMetadata
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("started_at ASC").
		Order("sequence_number ASC").
		Find(&out).Error
	if err != nil {
		return nil, translate(err, "")
	}
	return out, nil
}

// NextSequence returns one more than the tenant's highest sequence number
func (r *BackupRepository) NextSequence(ctx context.Context, tenantID string) (int64, error) {
	var max int64
	err := r.db.WithContext(ctx).
		Model(&backup.BackupMetadata{}).
		Where("tenant_id = ?", tenantID).
		Select("COALESCE(MAX(sequence_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, translate(err, "")
	}
	return max + 1, nil
}

func normalizeBackup(b *backup.BackupMetadata) {
	b.StartedAt = b.StartedAt.UTC()
	b.FinishedAt = utcPtr(b.FinishedAt)
	b.ExpiresAt = utcPtr(b.ExpiresAt)
}
