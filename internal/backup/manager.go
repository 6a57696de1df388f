package backup

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"hospital-backup/internal/database"
	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/logging"
)

// Manager orchestrates backup creation, status changes, verification, chain resolution and restores
type Manager interface {
	CreateBackup(ctx context.Context, principal Principal, req CreateRequest) (*CreateResult, error)
	UpdateStatus(ctx context.Context, id uint, update StatusUpdate) (*BackupMetadata, error)
	VerifyBackup(ctx context.Context, id uint) (*BackupMetadata, error)
	GetBackup(ctx context.Context, id uint) (*BackupMetadata, error)
	// FindBackup accepts a numeric id or a backup token
	FindBackup(ctx context.Context, ref string) (*BackupMetadata, error)
	GetLastSuccessful(ctx context.Context, tenantID string) (*BackupMetadata, error)
	GetStats(ctx context.Context, tenantID string) (*TenantStats, error)
	ResolveChain(ctx context.Context, id uint) (*Chain, error)
	Restore(ctx context.Context, principal Principal, id uint) (*RestoreResult, error)
}

// ManagerConfig wires a Manager
type ManagerConfig struct {
	DB         *sql.DB
	Dialect    database.Dialect
	Repository Repository
	Tenants    TenantResolver
	Paths      *PathResolver
	// ExcludeTables are skipped by both the fingerprint and the dump
	ExcludeTables     []string
	ValidateOnRestore bool
	Replicator        *Replicator
	Metrics           *MetricsCollector
	Audit             *BackupLogger
	Logger            *logging.Logger
}

// manager implements the Manager interface
type manager struct {
	db         *sql.DB
	repo       Repository
	tenants    TenantResolver
	paths      *PathResolver
	stats      *StatsCalculator
	dumper     *DumpGenerator
	chains     *ChainResolver
	restorer   *RestoreExecutor
	replicator *Replicator
	metrics    *MetricsCollector
	audit      *BackupLogger
	logger     *logging.Logger
	locks      *tenantLocks
	now        func() time.Time
}

// NewManager creates a new backup manager
func NewManager(config ManagerConfig) (Manager, error) {
	if config.DB == nil {
		return nil, apperrors.NewValidationError("data source connection is required", nil)
	}
	if config.Dialect == nil {
		return nil, apperrors.NewValidationError("database dialect is required", nil)
	}
	if config.Repository == nil {
		return nil, apperrors.NewValidationError("backup repository is required", nil)
	}
	if config.Paths == nil {
		return nil, apperrors.NewValidationError("path resolver is required", nil)
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	tenants := config.Tenants
	if tenants == nil {
		tenants = AnyTenantResolver{}
	}
	audit := config.Audit
	if audit == nil {
		var err error
		audit, err = NewBackupLogger(BackupLoggerConfig{Logger: logger})
		if err != nil {
			return nil, err
		}
	}

	return &manager{
		db:      config.DB,
		repo:    config.Repository,
		tenants: tenants,
		paths:   config.Paths,
		stats:   NewStatsCalculator(config.Dialect, config.ExcludeTables, logger),
		dumper:  NewDumpGenerator(config.Dialect, config.ExcludeTables, logger),
		chains:  NewChainResolver(config.Repository),
		restorer: NewRestoreExecutor(RestoreExecutorConfig{
			DB:               config.DB,
			Dialect:          config.Dialect,
			Repository:       config.Repository,
			Paths:            config.Paths,
			Replicator:       config.Replicator,
			ValidateChecksum: config.ValidateOnRestore,
			Logger:           logger,
		}),
		replicator: config.Replicator,
		metrics:    config.Metrics,
		audit:      audit,
		logger:     logger,
		locks:      newTenantLocks(),
		now:        time.Now,
	}, nil
}

// CreateBackup fingerprints the data source, writes the dump and records the run.
// A failed dump leaves a FAILED record with the error message.
func (m *manager) CreateBackup(ctx context.Context, principal Principal, req CreateRequest) (*CreateResult, error) {
	if err := RequireElevated(principal); err != nil {
		m.audit.LogAccessDenied(principal, "create", req.TenantID)
		return nil, err
	}
	if err := validateCreateRequest(&req); err != nil {
		return nil, err
	}

	tenant, err := m.tenants.Resolve(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	req.TenantID = tenant

	unlock := m.locks.lock(tenant)
	defer unlock()

	done := m.audit.LogBackupStart(ctx, principal, req)

	startedAt := m.now().UTC()
	seq, err := m.repo.NextSequence(ctx, tenant)
	if err != nil {
		done(err, nil)
		return nil, err
	}

	rec := &BackupMetadata{
		BackupID:          GenerateBackupID(startedAt),
		SequenceNumber:    seq,
		Type:              req.Type,
		Status:            StatusPending,
		PrimaryLocation:   req.PrimaryLocation,
		SecondaryLocation: req.SecondaryLocation,
		StartedAt:         startedAt,
		ExpiresAt:         req.ExpiresAt,
		CreatedBy:         principal.ID,
		TenantID:          tenant,
	}
	if err := rec.Validate(); err != nil {
		done(err, nil)
		return nil, err
	}
	if err := m.repo.Create(ctx, rec); err != nil {
		done(err, nil)
		return nil, err
	}

	stats := m.stats.Calculate(ctx, m.db, startedAt)
	path := m.paths.DumpPath(rec.PrimaryLocation, rec.BackupID)

	dumpStart := time.Now()
	dump, err := m.dumper.Generate(ctx, m.db, rec.BackupID, path)
	elapsed := time.Since(dumpStart)
	if err != nil {
		m.failCreate(ctx, principal, rec, err)
		m.metrics.RecordBackupOperation(tenant, false, elapsed, 0)
		done(err, rec)
		return nil, err
	}

	finished := m.now().UTC()
	if err := rec.Transition(StatusSuccess); err != nil {
		done(err, rec)
		return nil, err
	}
	rec.SizeBytes = dump.SizeBytes
	rec.DurationSeconds = int64(math.Round(elapsed.Seconds()))
	rec.Checksum = stats.Checksum
	rec.FileChecksum = dump.Checksum
	rec.FileCount = 1
	rec.RowCount = stats.TotalRows
	rec.TableCount = stats.TotalTables
	rec.FinishedAt = &finished

	event := Event{
		At:       finished,
		Operator: principal.ID,
		Action:   ActionDump,
		Outcome:  OutcomeSuccess,
		Message:  fmt.Sprintf("%d tables, %d rows written", len(dump.Tables), dump.InsertCount),
	}
	if partial := dump.PartialFailure(); partial != nil {
		event.Outcome = OutcomePartial
		event.Message = partial.Error()
	}
	rec.Notes.Append(event)

	if err := m.repo.Save(ctx, rec); err != nil {
		done(err, rec)
		return nil, err
	}

	if rec.SecondaryLocation != "" {
		m.replicate(ctx, principal.ID, rec, path)
	}

	m.metrics.RecordBackupOperation(tenant, true, elapsed, dump.SizeBytes)
	done(nil, rec)

	return &CreateResult{Backup: rec, Stats: stats, Dump: dump}, nil
}

func validateCreateRequest(req *CreateRequest) error {
	var errs apperrors.ValidationErrors

	req.TenantID = strings.TrimSpace(req.TenantID)
	req.PrimaryLocation = strings.TrimSpace(req.PrimaryLocation)
	req.SecondaryLocation = strings.TrimSpace(req.SecondaryLocation)

	if req.TenantID == "" {
		errs.Add("tenant_id", "tenant is required", req.TenantID)
	}
	if req.PrimaryLocation == "" {
		errs.Add("primary_location", "primary location is required", req.PrimaryLocation)
	}
	if req.Type == "" {
		req.Type = BackupTypeComplete
	}
	backupType, err := ParseBackupType(string(req.Type))
	if err != nil {
		errs.Add("type", err.Error(), req.Type)
	}
	req.Type = backupType
	if req.SecondaryLocation != "" {
		if _, err := ParseLocation(req.SecondaryLocation); err != nil {
			errs.Add("secondary_location", err.Error(), req.SecondaryLocation)
		}
	}

	if errs.HasErrors() {
		return apperrors.NewValidationError("invalid backup request", errs)
	}
	return nil
}

// failCreate persists FAILED so no record stays PENDING after a dump error
func (m *manager) failCreate(ctx context.Context, principal Principal, rec *BackupMetadata, cause error) {
	finished := m.now().UTC()
	rec.Status = StatusFailed
	rec.FinishedAt = &finished
	rec.ErrorMessage = cause.Error()
	rec.Notes.Append(Event{
		At:       finished,
		Operator: principal.ID,
		Action:   ActionDump,
		Outcome:  OutcomeFailed,
		Message:  cause.Error(),
	})

	if err := m.repo.Save(context.WithoutCancel(ctx), rec); err != nil {
		m.logger.WithFields(map[string]interface{}{
			"backup_id": rec.BackupID,
			"error":     err.Error(),
		}).Error("Failed to persist backup failure")
	}
}

// replicate copies the dump off-site. Failures are recorded but never fail the backup.
func (m *manager) replicate(ctx context.Context, operator string, rec *BackupMetadata, path string) {
	done := m.audit.LogOperation(ctx, operator, ActionReplicate, rec)

	event := Event{At: m.now().UTC(), Operator: operator, Action: ActionReplicate}

	if m.replicator == nil {
		err := apperrors.NewStorageError("no replicator configured", nil)
		event.Outcome, event.Message = OutcomeFailed, err.Error()
		done(err, nil)
	} else {
		start := time.Now()
		result, err := m.replicator.Replicate(ctx, rec, path)
		if err != nil {
			event.Outcome, event.Message = OutcomeFailed, err.Error()
			m.logger.WithFields(map[string]interface{}{
				"backup_id": rec.BackupID,
				"secondary": rec.SecondaryLocation,
				"error":     err.Error(),
			}).Warn("Off-site replication failed")
			m.metrics.RecordReplication(false, time.Since(start), 0)
			done(err, nil)
		} else {
			event.Outcome, event.Message = OutcomeSuccess, result.Location
			ratio := 0.0
			if result.Compression != nil {
				ratio = result.Compression.CompressionRatio
			}
			m.metrics.RecordReplication(true, result.Duration, ratio)
			done(nil, map[string]interface{}{"location": result.Location, "size": result.SizeBytes})
		}
	}

	rec.Notes.Append(event)
	if err := m.repo.Save(context.WithoutCancel(ctx), rec); err != nil {
		m.logger.WithField("error", err.Error()).Error("Failed to record replication result")
	}
}

// UpdateStatus applies a metadata-only change. Status moves must follow the lifecycle.
func (m *manager) UpdateStatus(ctx context.Context, id uint, update StatusUpdate) (*BackupMetadata, error) {
	var errs apperrors.ValidationErrors
	if update.Status != "" {
		status, err := ParseStatus(string(update.Status))
		if err != nil {
			errs.Add("status", err.Error(), update.Status)
		}
		update.Status = status
	}
	if update.SizeBytes != nil && *update.SizeBytes < 0 {
		errs.Add("size_bytes", "size cannot be negative", *update.SizeBytes)
	}
	if update.DurationSeconds != nil && *update.DurationSeconds < 0 {
		errs.Add("duration_seconds", "duration cannot be negative", *update.DurationSeconds)
	}
	if update.FileCount != nil && *update.FileCount < 0 {
		errs.Add("file_count", "file count cannot be negative", *update.FileCount)
	}
	if update.TableCount != nil && *update.TableCount < 0 {
		errs.Add("table_count", "table count cannot be negative", *update.TableCount)
	}
	if errs.HasErrors() {
		return nil, apperrors.NewValidationError("invalid status update", errs)
	}

	rec, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Status != "" && update.Status != rec.Status {
		if err := rec.Transition(update.Status); err != nil {
			return nil, err
		}
	}
	if update.SizeBytes != nil {
		rec.SizeBytes = *update.SizeBytes
	}
	if update.DurationSeconds != nil {
		rec.DurationSeconds = *update.DurationSeconds
	}
	if update.Checksum != nil {
		rec.Checksum = *update.Checksum
	}
	if update.FileCount != nil {
		rec.FileCount = *update.FileCount
	}
	if update.TableCount != nil {
		rec.TableCount = *update.TableCount
	}
	if update.ErrorMessage != nil {
		rec.ErrorMessage = *update.ErrorMessage
	}
	if rec.Status.IsTerminal() && rec.FinishedAt == nil {
		finished := m.now().UTC()
		rec.FinishedAt = &finished
	}

	if err := m.repo.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// VerifyBackup re-reads the dump and compares its digest and size with the recorded values.
// A mismatch is reported as integrity_mismatch and the status is left unchanged.
func (m *manager) VerifyBackup(ctx context.Context, id uint) (*BackupMetadata, error) {
	rec, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	operator := OperatorFromContext(ctx)
	done := m.audit.LogOperation(ctx, operator, ActionVerify, rec)
	start := time.Now()

	err = m.verify(ctx, operator, rec)
	m.metrics.RecordValidationOperation(err == nil, time.Since(start))
	done(err, map[string]interface{}{"checksum": rec.FileChecksum})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (m *manager) verify(ctx context.Context, operator string, rec *BackupMetadata) error {
	if !rec.Status.IsSuccessful() {
		return apperrors.NewValidationError(
			fmt.Sprintf("backup %s has status %s and cannot be verified", rec.Reference(), rec.Status), nil)
	}
	if rec.FileChecksum == "" {
		return apperrors.NewValidationError(
			fmt.Sprintf("backup %s has no recorded file checksum", rec.Reference()), nil)
	}

	path := m.paths.DumpPath(rec.PrimaryLocation, rec.BackupID)
	sum, size, err := FileDigest(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.NewMissingArtifactError(fmt.Sprintf("dump file %s does not exist", path), err)
		}
		return apperrors.NewStorageError(fmt.Sprintf("failed to read dump file %s", path), err)
	}

	at := m.now().UTC()
	if sum != rec.FileChecksum || size != rec.SizeBytes {
		mismatch := apperrors.NewIntegrityMismatchError(
			fmt.Sprintf("dump file of backup %s does not match the recorded checksum", rec.Reference())).
			WithContext("expected_checksum", rec.FileChecksum).
			WithContext("actual_checksum", sum).
			WithContext("expected_size", rec.SizeBytes).
			WithContext("actual_size", size)

		rec.Notes.Append(Event{At: at, Operator: operator, Action: ActionVerify, Outcome: OutcomeFailed, Message: mismatch.Message})
		if err := m.repo.Save(ctx, rec); err != nil {
			m.logger.WithField("error", err.Error()).Error("Failed to record verification failure")
		}
		return mismatch
	}

	if err := rec.Transition(StatusVerified); err != nil {
		return err
	}
	rec.Notes.Append(Event{At: at, Operator: operator, Action: ActionVerify, Outcome: OutcomeSuccess, Message: sum})
	return m.repo.Save(ctx, rec)
}

// GetBackup returns a record by its numeric id
func (m *manager) GetBackup(ctx context.Context, id uint) (*BackupMetadata, error) {
	return m.repo.FindByID(ctx, id)
}

// FindBackup implements Manager
func (m *manager) FindBackup(ctx context.Context, ref string) (*BackupMetadata, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperrors.NewValidationError("backup reference is required", nil)
	}
	if id, err := strconv.ParseUint(strings.TrimPrefix(ref, "#"), 10, 64); err == nil {
		return m.repo.FindByID(ctx, uint(id))
	}
	return m.repo.FindByBackupID(ctx, ref)
}

// GetLastSuccessful returns the latest SUCCESS, VERIFIED or RESTORED record of the tenant
func (m *manager) GetLastSuccessful(ctx context.Context, tenantID string) (*BackupMetadata, error) {
	tenant, err := m.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	records, err := m.repo.ListByTenant(ctx, tenant)
	if err != nil {
		return nil, err
	}

	var last *BackupMetadata
	for _, rec := range records {
		if !rec.Status.IsSuccessful() {
			continue
		}
		if last == nil || rec.StartedAt.After(last.StartedAt) ||
			(rec.StartedAt.Equal(last.StartedAt) && rec.SequenceNumber > last.SequenceNumber) {
			last = rec
		}
	}
	if last == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("tenant %s has no successful backup", tenant), nil)
	}
	return last, nil
}

// GetStats summarizes every record of the tenant
func (m *manager) GetStats(ctx context.Context, tenantID string) (*TenantStats, error) {
	tenant, err := m.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	records, err := m.repo.ListByTenant(ctx, tenant)
	if err != nil {
		return nil, err
	}

	stats := &TenantStats{
		TenantID: tenant,
		Total:    len(records),
		ByStatus: make(map[Status]int),
		ByType:   make(map[BackupType]int),
	}
	for _, rec := range records {
		stats.ByStatus[rec.Status]++
		stats.ByType[rec.Type]++
		switch {
		case rec.Status.IsSuccessful():
			stats.SuccessCount++
			stats.TotalBytes += rec.SizeBytes
			if stats.LastSuccess == nil || rec.StartedAt.After(*stats.LastSuccess) {
				at := rec.StartedAt
				stats.LastSuccess = &at
			}
		case rec.Status == StatusFailed:
			stats.FailedCount++
		}
	}
	stats.TotalSizeGB = math.Round(float64(stats.TotalBytes)/(1<<30)*100) / 100
	return stats, nil
}

// ResolveChain returns the ordered backups needed to restore id
func (m *manager) ResolveChain(ctx context.Context, id uint) (*Chain, error) {
	rec, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.chains.Resolve(ctx, rec)
}

// Restore replays the dump of id, serialized with other runs of the same tenant
func (m *manager) Restore(ctx context.Context, principal Principal, id uint) (*RestoreResult, error) {
	if err := RequireElevated(principal); err != nil {
		m.audit.LogAccessDenied(principal, "restore", strconv.FormatUint(uint64(id), 10))
		return nil, err
	}

	rec, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.lock(rec.TenantID)
	defer unlock()

	// reload under the lock so a concurrent run's status change is observed
	rec, err = m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	done := m.audit.LogOperation(ctx, principal.ID, ActionRestore, rec)
	start := time.Now()

	result, err := m.restorer.Restore(ctx, principal.ID, rec)
	if err != nil {
		m.metrics.RecordRestoreOperation(false, time.Since(start), 0, 0)
		done(err, nil)
		return nil, err
	}

	m.metrics.RecordRestoreOperation(true, result.Duration, result.Executed, result.Failed)
	done(nil, map[string]interface{}{
		"executed":      result.Executed,
		"failed":        result.Failed,
		"restore_count": result.RestoreCount,
	})
	return result, nil
}

// tenantLocks serializes backup and restore runs per tenant within the process
type tenantLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTenantLocks() *tenantLocks {
	return &tenantLocks{locks: make(map[string]*sync.Mutex)}
}

func (t *tenantLocks) lock(tenant string) func() {
	t.mu.Lock()
	l, ok := t.locks[tenant]
	if !ok {
		l = &sync.Mutex{}
		t.locks[tenant] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}
