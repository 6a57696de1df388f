package backup

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-backup/internal/database"
	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/logging"
)

const miniDump = "-- Hospital backup dump\n" +
	"SET FOREIGN_KEY_CHECKS=0;\n" +
	"CREATE TABLE `wards` (`id` int);\n" +
	"INSERT INTO `wards` (`id`) VALUES (1);\n" +
	"SET FOREIGN_KEY_CHECKS=1;\n"

type restoreFixture struct {
	repo  *MockRepository
	paths *PathResolver
	rec   *BackupMetadata
	path  string
}

func newRestoreFixture(t *testing.T, status Status, content string) *restoreFixture {
	t.Helper()
	repo := NewMockRepository()
	paths := NewPathResolver(t.TempDir(), "")
	rec := repo.seed(&BackupMetadata{
		TenantID:        "CHU-Nord",
		Type:            BackupTypeComplete,
		Status:          status,
		PrimaryLocation: "/backups/2026-01-18",
		StartedAt:       time.Date(2026, 1, 18, 2, 0, 0, 0, time.UTC),
	})

	path := paths.DumpPath(rec.PrimaryLocation, rec.BackupID)
	if content != "" {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return &restoreFixture{repo: repo, paths: paths, rec: rec, path: path}
}

func (f *restoreFixture) executor(db *sql.DB, dialect database.Dialect) *RestoreExecutor {
	return NewRestoreExecutor(RestoreExecutorConfig{
		DB:         db,
		Dialect:    dialect,
		Repository: f.repo,
		Paths:      f.paths,
		Logger:     logging.NewNopLogger(),
	})
}

func TestRestore_RejectsUnsuccessfulStatus(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusFailed, StatusRestoring} {
		t.Run(string(status), func(t *testing.T) {
			f := newRestoreFixture(t, status, miniDump)
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			rec := f.repo.get(t, f.rec.ID)
			_, err = f.executor(db, database.MySQLDialect{}).Restore(context.Background(), "dr.admin", rec)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

			// Verify the stored record was not touched
			stored := f.repo.get(t, f.rec.ID)
			assert.Equal(t, status, stored.Status)
			assert.Empty(t, stored.Notes.Events)
			assert.Len(t, f.repo.saves, 1)
		})
	}
}

func TestRestore_ArtifactChecks(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    apperrors.ErrorType
	}{
		{"missing file", "", apperrors.ErrorTypeMissingArtifact},
		{"no statements", "-- just a comment\nSELECT 1;\n", apperrors.ErrorTypeInvalidArtifact},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRestoreFixture(t, StatusSuccess, tt.content)
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			rec := f.repo.get(t, f.rec.ID)
			_, err = f.executor(db, database.MySQLDialect{}).Restore(context.Background(), "dr.admin", rec)
			require.Error(t, err)
			assert.Equal(t, tt.want, apperrors.GetErrorType(err))
			assert.Equal(t, StatusSuccess, f.repo.get(t, f.rec.ID).Status)
		})
	}
}

func TestRestore_EmptyFile(t *testing.T) {
	f := newRestoreFixture(t, StatusVerified, "")
	require.NoError(t, os.MkdirAll(filepath.Dir(f.path), 0o750))
	require.NoError(t, os.WriteFile(f.path, nil, 0o600))

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = f.executor(db, database.MySQLDialect{}).Restore(context.Background(), "dr.admin", f.repo.get(t, f.rec.ID))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeMissingArtifact))
}

func TestRestore_ChecksumValidation(t *testing.T) {
	f := newRestoreFixture(t, StatusSuccess, miniDump)
	rec := f.repo.get(t, f.rec.ID)
	rec.FileChecksum = "0000"
	rec.SizeBytes = int64(len(miniDump))

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	exec := NewRestoreExecutor(RestoreExecutorConfig{
		DB: db, Dialect: database.MySQLDialect{}, Repository: f.repo, Paths: f.paths, ValidateChecksum: true,
	})
	_, err = exec.Restore(context.Background(), "dr.admin", rec)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeIntegrityMismatch))
	assert.Equal(t, StatusSuccess, f.repo.get(t, f.rec.ID).Status)
}

func TestRestore_StatementErrorsAreCounted(t *testing.T) {
	f := newRestoreFixture(t, StatusSuccess, miniDump)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("SET FOREIGN_KEY_CHECKS=0").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE `wards`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `wards`")).WillReturnError(fmt.Errorf("duplicate entry"))
	mock.ExpectExec("SET FOREIGN_KEY_CHECKS=1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT TABLE_NAME FROM information_schema.TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("wards"))

	result, err := f.executor(db, database.MySQLDialect{}).Restore(context.Background(), "dr.admin", f.repo.get(t, f.rec.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Executed)
	assert.Equal(t, 1, result.Failed)
	assert.True(t, apperrors.IsType(result.PartialFailure(), apperrors.ErrorTypePartialFailure))
	assert.Equal(t, 1, result.RestoreCount)

	stored := f.repo.get(t, f.rec.ID)
	assert.Equal(t, StatusRestored, stored.Status)
	require.Len(t, stored.Notes.Events, 1)
	assert.Equal(t, OutcomePartial, stored.Notes.Events[0].Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestore_ReleaseFailureMarksFailed(t *testing.T) {
	f := newRestoreFixture(t, StatusSuccess, miniDump)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("SET FOREIGN_KEY_CHECKS=0").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE `wards`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `wards`")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET FOREIGN_KEY_CHECKS=1").WillReturnError(fmt.Errorf("connection reset"))
	// the deferred release retries once
	mock.ExpectExec("SET FOREIGN_KEY_CHECKS=1").WillReturnError(fmt.Errorf("connection reset"))

	_, err = f.executor(db, database.MySQLDialect{}).Restore(context.Background(), "dr.admin", f.repo.get(t, f.rec.ID))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeFatalExecution))

	stored := f.repo.get(t, f.rec.ID)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)
	assert.NotNil(t, stored.FinishedAt)
	assert.Equal(t, []Status{StatusSuccess, StatusRestoring, StatusFailed}, f.repo.saves)
	assert.Equal(t, 0, stored.Notes.RestoreCount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestore_NoTablesAfterReplayMarksFailed(t *testing.T) {
	f := newRestoreFixture(t, StatusSuccess, miniDump)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("SET FOREIGN_KEY_CHECKS=0").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE `wards`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `wards`")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET FOREIGN_KEY_CHECKS=1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT TABLE_NAME FROM information_schema.TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}))

	_, err = f.executor(db, database.MySQLDialect{}).Restore(context.Background(), "dr.admin", f.repo.get(t, f.rec.ID))
	require.Error(t, err)

	stored := f.repo.get(t, f.rec.ID)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "no tables")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestore_ListTablesFailureMarksFailed(t *testing.T) {
	f := newRestoreFixture(t, StatusRestored, miniDump)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("SET FOREIGN_KEY_CHECKS=0").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE `wards`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `wards`")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET FOREIGN_KEY_CHECKS=1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT TABLE_NAME FROM information_schema.TABLES").WillReturnError(fmt.Errorf("server has gone away"))

	_, err = f.executor(db, database.MySQLDialect{}).Restore(context.Background(), "dr.admin", f.repo.get(t, f.rec.ID))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeFatalExecution))
	assert.Equal(t, StatusFailed, f.repo.get(t, f.rec.ID).Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestore_CanceledContextMarksFailed(t *testing.T) {
	f := newRestoreFixture(t, StatusSuccess, miniDump)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())

	exec := f.executor(db, database.MySQLDialect{})
	rec := f.repo.get(t, f.rec.ID)

	// cancel as soon as the record is marked RESTORING
	f.repo.mu.Lock()
	f.repo.saveHook = func(b *BackupMetadata) {
		if b.Status == StatusRestoring {
			cancel()
		}
	}
	f.repo.mu.Unlock()

	_, err = exec.Restore(ctx, "dr.admin", rec)
	require.Error(t, err)

	stored := f.repo.get(t, f.rec.ID)
	assert.Equal(t, StatusFailed, stored.Status, "a canceled restore is persisted as FAILED")
	assert.NotEmpty(t, stored.ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestore_FetchesSecondaryCopy(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv("HOSPITAL_BACKUP_TEST_KEY", hex.EncodeToString(key))

	db := openTenantDB(t)
	f := newRestoreFixture(t, StatusSuccess, "")
	offsite := t.TempDir()

	dump, err := NewDumpGenerator(database.SQLiteDialect{}, nil, logging.NewNopLogger()).
		Generate(context.Background(), db, f.rec.BackupID, f.path)
	require.NoError(t, err)

	rec := f.repo.get(t, f.rec.ID)
	rec.FileChecksum = dump.Checksum
	rec.SizeBytes = dump.SizeBytes
	rec.SecondaryLocation = "file://" + offsite

	replicator := NewReplicator(
		NewStorageProviderFactory(OffsiteConfig{}),
		NewEncryptionManager(NewKeyResolver(nil)),
		OffsiteConfig{Compression: "zstd", EncryptionKeyRef: "env:HOSPITAL_BACKUP_TEST_KEY"},
		logging.NewNopLogger())

	_, err = replicator.Replicate(context.Background(), rec, f.path)
	require.NoError(t, err)
	require.NoError(t, f.repo.Save(context.Background(), rec))
	require.NoError(t, os.Remove(f.path))

	exec := NewRestoreExecutor(RestoreExecutorConfig{
		DB:               db,
		Dialect:          database.SQLiteDialect{},
		Repository:       f.repo,
		Paths:            f.paths,
		Replicator:       replicator,
		ValidateChecksum: true,
		Logger:           logging.NewNopLogger(),
	})

	result, err := exec.Restore(context.Background(), "dr.admin", f.repo.get(t, f.rec.ID))
	require.NoError(t, err)
	assert.Equal(t, StatusRestored, result.Backup.Status)
	assert.Zero(t, result.Failed)

	sum, _, err := FileDigest(f.path)
	require.NoError(t, err)
	assert.Equal(t, dump.Checksum, sum)
}
