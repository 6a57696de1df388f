package api

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"hospital-backup/internal/backup"
	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/logging"
	"hospital-backup/internal/schedule"
)

// Config wires a Service
type Config struct {
	Backups   backup.Manager
	Schedules *schedule.Service
	// Runner executes due schedules; optional
	Runner *schedule.Runner
	// Replicator lists off-site replicas; optional
	Replicator *backup.Replicator
	Logger     *logging.Logger
}

// Service exposes the backup, restore and schedule operations behind one role check and a
// uniform Response. No operation panics or returns a bare error to its caller.
type Service struct {
	backups    backup.Manager
	schedules  *schedule.Service
	runner     *schedule.Runner
	replicator *backup.Replicator
	logger     *logging.Logger
}

// NewService creates the API facade
func NewService(config Config) (*Service, error) {
	if config.Backups == nil {
		return nil, apperrors.NewValidationError("backup manager is required", nil)
	}
	if config.Schedules == nil {
		return nil, apperrors.NewValidationError("schedule service is required", nil)
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Service{
		backups:    config.Backups,
		schedules:  config.Schedules,
		runner:     config.Runner,
		replicator: config.Replicator,
		logger:     logger,
	}, nil
}

// run checks the principal, then calls fn with panics turned into fatal_execution responses
func (s *Service) run(operation string, principal backup.Principal, fn func() Response) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(map[string]interface{}{
				"operation": operation,
				"panic":     fmt.Sprint(r),
				"stack":     string(debug.Stack()),
			}).Error("Operation panicked")
			resp = Fail(apperrors.NewFatalExecutionError(
				fmt.Sprintf("%s failed unexpectedly", operation), fmt.Errorf("panic: %v", r)))
		}
	}()

	if err := backup.RequireElevated(principal); err != nil {
		s.logger.WithFields(map[string]interface{}{
			"operation": operation,
			"principal": principal.ID,
		}).Warn("Access denied")
		return Fail(err)
	}

	resp = fn()
	if !resp.Success {
		s.logger.WithFields(map[string]interface{}{
			"operation": operation,
			"principal": principal.ID,
			"code":      resp.Code,
		}).Debug(resp.Message)
	}
	return resp
}

// CreateBackupRequest carries createBackup inputs
type CreateBackupRequest struct {
	TenantID          string     `json:"tenant_id" validate:"required"`
	Type              string     `json:"type" validate:"required,backup_type"`
	PrimaryLocation   string     `json:"primary_location" validate:"required"`
	SecondaryLocation string     `json:"secondary_location,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// CreateBackup runs a backup and returns its id, token and statistics
func (s *Service) CreateBackup(ctx context.Context, principal backup.Principal, req CreateBackupRequest) Response {
	return s.run("create_backup", principal, func() Response {
		if err := validateRequest(req); err != nil {
			return Fail(err)
		}
		backupType, _ := backup.ParseBackupType(req.Type)

		result, err := s.backups.CreateBackup(ctx, principal, backup.CreateRequest{
			TenantID:          req.TenantID,
			Type:              backupType,
			PrimaryLocation:   req.PrimaryLocation,
			SecondaryLocation: req.SecondaryLocation,
			ExpiresAt:         req.ExpiresAt,
		})
		if err != nil {
			return Fail(err)
		}

		rec := result.Backup
		data := CreateBackupData{
			ID:           rec.ID,
			BackupID:     rec.BackupID,
			Status:       rec.Status,
			Stats:        result.Stats,
			Path:         result.Dump.Path,
			SizeBytes:    result.Dump.SizeBytes,
			Statements:   result.Dump.InsertCount,
			FailedTables: result.Dump.FailedTables,
		}
		if rec.SecondaryLocation != "" {
			data.Replicated, data.ReplicationError = replication(rec)
		}

		if partial := result.Dump.PartialFailure(); partial != nil {
			return Partial(fmt.Sprintf("Backup %s created with %d failed tables", rec.BackupID, result.Dump.FailedTables), data, partial)
		}
		return OK(fmt.Sprintf("Backup %s created", rec.BackupID), data)
	})
}

// replication reports the outcome of the most recent replicate event
func replication(rec *backup.BackupMetadata) (bool, string) {
	for i := len(rec.Notes.Events) - 1; i >= 0; i-- {
		if e := rec.Notes.Events[i]; e.Action == backup.ActionReplicate {
			if e.Outcome == backup.OutcomeSuccess {
				return true, ""
			}
			return false, e.Message
		}
	}
	return false, ""
}

// UpdateStatusRequest carries updateBackupStatus inputs
type UpdateStatusRequest struct {
	Status          string  `json:"status" validate:"required,backup_status"`
	SizeBytes       *int64  `json:"size_bytes,omitempty" validate:"omitempty,min=0"`
	DurationSeconds *int64  `json:"duration_seconds,omitempty" validate:"omitempty,min=0"`
	Checksum        *string `json:"checksum,omitempty"`
	FileCount       *int    `json:"file_count,omitempty" validate:"omitempty,min=0"`
	TableCount      *int    `json:"table_count,omitempty" validate:"omitempty,min=0"`
	ErrorMessage    *string `json:"error_message,omitempty"`
}

// UpdateBackupStatus applies a status move and integrity fields
func (s *Service) UpdateBackupStatus(ctx context.Context, principal backup.Principal, id uint, req UpdateStatusRequest) Response {
	return s.run("update_backup_status", principal, func() Response {
		if err := validateRequest(req); err != nil {
			return Fail(err)
		}
		status, _ := backup.ParseStatus(req.Status)

		rec, err := s.backups.UpdateStatus(ctx, id, backup.StatusUpdate{
			Status:          status,
			SizeBytes:       req.SizeBytes,
			DurationSeconds: req.DurationSeconds,
			Checksum:        req.Checksum,
			FileCount:       req.FileCount,
			TableCount:      req.TableCount,
			ErrorMessage:    req.ErrorMessage,
		})
		if err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("Backup %s is now %s", rec.BackupID, rec.Status), rec)
	})
}

// VerifyBackup re-checks the dump file against the recorded digest
func (s *Service) VerifyBackup(ctx context.Context, principal backup.Principal, id uint) Response {
	return s.run("verify_backup", principal, func() Response {
		rec, err := s.backups.VerifyBackup(ctx, id)
		if err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("Backup %s verified", rec.BackupID), rec)
	})
}

// GetBackup loads a backup by numeric id or token
func (s *Service) GetBackup(ctx context.Context, principal backup.Principal, ref string) Response {
	return s.run("get_backup", principal, func() Response {
		if strings.TrimSpace(ref) == "" {
			return Fail(apperrors.NewValidationError("backup reference is required", nil))
		}
		rec, err := s.backups.FindBackup(ctx, ref)
		if err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("Backup %s", rec.BackupID), rec)
	})
}

// GetLastSuccessfulBackup returns the newest usable backup of a tenant
func (s *Service) GetLastSuccessfulBackup(ctx context.Context, principal backup.Principal, tenantID string) Response {
	return s.run("get_last_successful_backup", principal, func() Response {
		if strings.TrimSpace(tenantID) == "" {
			return Fail(apperrors.NewValidationError("tenant is required", nil))
		}
		rec, err := s.backups.GetLastSuccessful(ctx, tenantID)
		if err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("Last successful backup of %s is %s", rec.TenantID, rec.BackupID), rec)
	})
}

// GetBackupStats summarizes the backups of a tenant
func (s *Service) GetBackupStats(ctx context.Context, principal backup.Principal, tenantID string) Response {
	return s.run("get_backup_stats", principal, func() Response {
		if strings.TrimSpace(tenantID) == "" {
			return Fail(apperrors.NewValidationError("tenant is required", nil))
		}
		stats, err := s.backups.GetStats(ctx, tenantID)
		if err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("%d backups for %s", stats.Total, stats.TenantID), stats)
	})
}

// RestoreBackup replays a backup into the data source
func (s *Service) RestoreBackup(ctx context.Context, principal backup.Principal, id uint) Response {
	return s.run("restore_backup", principal, func() Response {
		result, err := s.backups.Restore(ctx, principal, id)
		if err != nil {
			return Fail(err)
		}

		data := RestoreData{
			ID:           result.Backup.ID,
			BackupID:     result.Backup.BackupID,
			Status:       result.Backup.Status,
			RestoredAt:   result.RestoredAt.Format(time.RFC3339),
			RestoreCount: result.RestoreCount,
			Executed:     result.Executed,
			Failed:       result.Failed,
			DurationMS:   result.Duration.Milliseconds(),
		}
		if partial := result.PartialFailure(); partial != nil {
			return Partial(fmt.Sprintf("Backup %s restored with %d failed statements", data.BackupID, data.Failed), data, partial)
		}
		return OK(fmt.Sprintf("Backup %s restored", data.BackupID), data)
	})
}

// GetBackupChain lists the backups needed to restore id, oldest first
func (s *Service) GetBackupChain(ctx context.Context, principal backup.Principal, id uint) Response {
	return s.run("get_backup_chain", principal, func() Response {
		chain, err := s.backups.ResolveChain(ctx, id)
		if err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("Chain of %d backups", chain.Length()), ChainData{
			ChainLength:         chain.Length(),
			Chain:               chain.Entries,
			RestoreInstructions: chain.Instructions,
		})
	})
}

// ListReplicas lists the objects stored at an off-site location
func (s *Service) ListReplicas(ctx context.Context, principal backup.Principal, location string) Response {
	return s.run("list_replicas", principal, func() Response {
		if s.replicator == nil {
			return Fail(apperrors.NewValidationError("off-site replication is not configured", nil))
		}
		if strings.TrimSpace(location) == "" {
			return Fail(apperrors.NewValidationError("location is required", nil))
		}
		objects, err := s.replicator.ListReplicas(ctx, location)
		if err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("%d replicas at %s", len(objects), location), objects)
	})
}
