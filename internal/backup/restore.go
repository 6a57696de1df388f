package backup

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"hospital-backup/internal/database"
	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/logging"
)

// RestoreResult describes a completed restore
type RestoreResult struct {
	Backup       *BackupMetadata `json:"backup"`
	Executed     int             `json:"executed"`
	Failed       int             `json:"failed"`
	RestoredAt   time.Time       `json:"restored_at"`
	RestoreCount int             `json:"restore_count"`
	Duration     time.Duration   `json:"duration"`
}

// PartialFailure returns a partial_failure error when any statement failed to replay
func (r *RestoreResult) PartialFailure() error {
	if r == nil || r.Failed == 0 {
		return nil
	}
	return apperrors.NewPartialFailureError(
		fmt.Sprintf("%d of %d statements failed during restore", r.Failed, r.Executed+r.Failed),
		r.Executed, r.Failed)
}

// RestoreExecutorConfig wires a RestoreExecutor
type RestoreExecutorConfig struct {
	DB         *sql.DB
	Dialect    database.Dialect
	Repository Repository
	Paths      *PathResolver
	// Replicator fetches the secondary copy when the primary dump is missing; optional
	Replicator *Replicator
	// ValidateChecksum compares the dump digest with the recorded one before replaying
	ValidateChecksum bool
	Logger           *logging.Logger
}

// RestoreExecutor replays a dump into the data source on one dedicated session
type RestoreExecutor struct {
	db               *sql.DB
	dialect          database.Dialect
	repo             Repository
	paths            *PathResolver
	replicator       *Replicator
	validateChecksum bool
	logger           *logging.Logger
	now              func() time.Time
}

// NewRestoreExecutor creates a restore executor
func NewRestoreExecutor(config RestoreExecutorConfig) *RestoreExecutor {
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RestoreExecutor{
		db:               config.DB,
		dialect:          config.Dialect,
		repo:             config.Repository,
		paths:            config.Paths,
		replicator:       config.Replicator,
		validateChecksum: config.ValidateChecksum,
		logger:           logger,
		now:              time.Now,
	}
}

type replayStats struct {
	executed int
	failed   int
}

// Restore checks the preconditions, marks the record RESTORING, replays the dump with
// integrity checks disabled and records RESTORED or FAILED. Precondition failures leave the
// record untouched. A run with failed statements still succeeds; see RestoreResult.PartialFailure.
func (e *RestoreExecutor) Restore(ctx context.Context, operator string, rec *BackupMetadata) (*RestoreResult, error) {
	if rec == nil {
		return nil, apperrors.NewValidationError("backup is required", nil)
	}
	if !rec.Status.IsSuccessful() {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("backup %s has status %s and cannot be restored", rec.Reference(), rec.Status), nil).
			WithContext("backup_id", rec.BackupID)
	}

	path := e.paths.DumpPath(rec.PrimaryLocation, rec.BackupID)
	if err := e.checkArtifact(ctx, rec, path); err != nil {
		return nil, err
	}

	start := time.Now()
	previous := rec.Status
	if err := rec.Transition(StatusRestoring); err != nil {
		return nil, err
	}
	if err := e.repo.Save(ctx, rec); err != nil {
		rec.Status = previous
		return nil, apperrors.WrapError(err, "failed to mark backup as restoring")
	}

	e.logger.WithFields(map[string]interface{}{
		"backup_id": rec.BackupID,
		"tenant_id": rec.TenantID,
		"operator":  operator,
		"path":      path,
	}).Info("Restore started")

	stats, err := e.replay(ctx, path)
	duration := time.Since(start)
	finished := e.now().UTC()

	if err != nil {
		e.logger.LogRestoreExecution(rec.BackupID, stats.executed, stats.failed, duration, err)
		return nil, e.fail(ctx, operator, rec, stats, finished, err)
	}

	if err := rec.Transition(StatusRestored); err != nil {
		return nil, err
	}
	rec.FinishedAt = &finished
	rec.ErrorMessage = ""

	outcome, message := OutcomeSuccess, fmt.Sprintf("%d statements replayed", stats.executed)
	if stats.failed > 0 {
		outcome = OutcomePartial
		message = fmt.Sprintf("%d statements replayed, %d failed", stats.executed, stats.failed)
	}
	rec.Notes.Append(Event{
		At:       finished,
		Operator: operator,
		Action:   ActionRestore,
		Outcome:  outcome,
		Message:  message,
		Executed: stats.executed,
		Failed:   stats.failed,
	})

	if err := e.repo.Save(context.WithoutCancel(ctx), rec); err != nil {
		return nil, apperrors.WrapError(err, "failed to record restore result")
	}

	e.logger.LogRestoreExecution(rec.BackupID, stats.executed, stats.failed, duration, nil)

	return &RestoreResult{
		Backup:       rec,
		Executed:     stats.executed,
		Failed:       stats.failed,
		RestoredAt:   finished,
		RestoreCount: rec.Notes.RestoreCount(),
		Duration:     duration,
	}, nil
}

// checkArtifact makes sure a non-empty dump with schema or data markers exists at path,
// fetching the secondary copy first when the primary is gone.
func (e *RestoreExecutor) checkArtifact(ctx context.Context, rec *BackupMetadata, path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) && rec.SecondaryLocation != "" && e.replicator != nil {
		e.logger.WithFields(map[string]interface{}{
			"backup_id": rec.BackupID,
			"secondary": rec.SecondaryLocation,
		}).Warn("Dump file missing, fetching secondary copy")

		if _, fetchErr := e.replicator.Fetch(ctx, rec, path); fetchErr != nil {
			return apperrors.NewMissingArtifactError(
				fmt.Sprintf("dump file %s is missing and the secondary copy could not be fetched", path), fetchErr)
		}
		info, err = os.Stat(path)
	}
	if err != nil {
		return apperrors.NewMissingArtifactError(fmt.Sprintf("dump file %s is not available", path), err).
			WithContext("backup_id", rec.BackupID)
	}
	if info.IsDir() || info.Size() == 0 {
		return apperrors.NewMissingArtifactError(fmt.Sprintf("dump file %s is empty", path), nil).
			WithContext("backup_id", rec.BackupID)
	}

	ok, err := hasDumpMarkers(path)
	if err != nil {
		return apperrors.NewMissingArtifactError(fmt.Sprintf("dump file %s cannot be read", path), err)
	}
	if !ok {
		return apperrors.NewInvalidArtifactError(
			fmt.Sprintf("dump file %s contains no CREATE TABLE or INSERT INTO statement", path), nil).
			WithContext("backup_id", rec.BackupID)
	}

	if e.validateChecksum && rec.FileChecksum != "" {
		sum, size, err := FileDigest(path)
		if err != nil {
			return apperrors.NewMissingArtifactError(fmt.Sprintf("dump file %s cannot be read", path), err)
		}
		if sum != rec.FileChecksum || size != rec.SizeBytes {
			return apperrors.NewIntegrityMismatchError(
				fmt.Sprintf("dump file %s does not match the recorded checksum", path)).
				WithContext("expected", rec.FileChecksum).
				WithContext("actual", sum)
		}
	}
	return nil
}

func hasDumpMarkers(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if strings.HasPrefix(line, "CREATE TABLE") || strings.HasPrefix(line, "INSERT INTO") {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// replay runs every statement of the dump on one connection. Statement errors are counted;
// only session-level failures are returned.
func (e *RestoreExecutor) replay(ctx context.Context, path string) (stats replayStats, err error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return stats, apperrors.NewFatalExecutionError("failed to acquire a database session", err)
	}
	defer conn.Close()

	guard, err := database.DisableIntegrityChecks(ctx, conn, e.dialect)
	if err != nil {
		return stats, apperrors.NewFatalExecutionError("failed to disable integrity checks", err)
	}
	defer func() {
		if err != nil {
			if releaseErr := guard.Release(ctx); releaseErr != nil {
				e.logger.WithField("error", releaseErr.Error()).Error("Integrity checks could not be re-enabled")
			}
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return stats, apperrors.NewFatalExecutionError("failed to open dump file", err)
	}
	defer f.Close()

	toggles := map[string]bool{
		normalizeStatement(e.dialect.DisableIntegrityChecks()): true,
		normalizeStatement(e.dialect.EnableIntegrityChecks()):  true,
	}

	scanner := database.NewStatementScanner(f, e.dialect.BackslashEscapes())
	for scanner.Scan() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stats, apperrors.NewFatalExecutionError("restore interrupted", ctxErr)
		}

		stmt := scanner.Statement()
		if toggles[normalizeStatement(stmt)] {
			continue
		}

		execStart := time.Now()
		if _, execErr := conn.ExecContext(ctx, stmt); execErr != nil {
			stats.failed++
			e.logger.LogSQLExecution(stmt, time.Since(execStart), 0, execErr)
			continue
		}
		stats.executed++
	}
	if err = scanner.Err(); err != nil {
		return stats, apperrors.NewFatalExecutionError("failed to read dump file", err)
	}

	if err = guard.Release(ctx); err != nil {
		return stats, err
	}

	tables, listErr := e.dialect.ListTables(ctx, conn)
	if listErr != nil {
		err = apperrors.NewFatalExecutionError("failed to enumerate tables after restore", listErr)
		return stats, err
	}
	if len(tables) == 0 {
		err = apperrors.NewFatalExecutionError("no tables exist after restore", nil)
		return stats, err
	}
	return stats, nil
}

// fail persists FAILED with the error and a failed restore event
func (e *RestoreExecutor) fail(ctx context.Context, operator string, rec *BackupMetadata, stats replayStats, at time.Time, cause error) error {
	if !apperrors.IsType(cause, apperrors.ErrorTypeFatalExecution) {
		cause = apperrors.NewFatalExecutionError("restore failed", cause)
	}

	if err := rec.Transition(StatusFailed); err != nil {
		return err
	}
	rec.FinishedAt = &at
	rec.ErrorMessage = cause.Error()
	rec.Notes.Append(Event{
		At:       at,
		Operator: operator,
		Action:   ActionRestore,
		Outcome:  OutcomeFailed,
		Message:  cause.Error(),
		Executed: stats.executed,
		Failed:   stats.failed,
	})

	if err := e.repo.Save(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.WithFields(map[string]interface{}{
			"backup_id": rec.BackupID,
			"error":     err.Error(),
		}).Error("Failed to persist restore failure")
	}
	return cause
}

func normalizeStatement(stmt string) string {
	return strings.ToUpper(strings.Join(strings.Fields(stmt), " "))
}
