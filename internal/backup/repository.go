package backup

import "context"

// Repository persists backup metadata records
type Repository interface {
	Create(ctx context.Context, backup *BackupMetadata) error
	Save(ctx context.Context, backup *BackupMetadata) error
	FindByID(ctx context.Context, id uint) (*BackupMetadata, error)
	FindByBackupID(ctx context.Context, backupID string) (*BackupMetadata, error)
	// ListByTenant returns the tenant's records ordered by start time, then sequence, ascending
	ListByTenant(ctx context.Context, tenantID string) ([]*BackupMetadata, error)
	NextSequence(ctx context.Context, tenantID string) (int64, error)
}
