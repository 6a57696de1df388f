package application

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-backup/internal/api"
	"hospital-backup/internal/backup"
	"hospital-backup/internal/config"
	"hospital-backup/internal/database"
	appErrors "hospital-backup/internal/errors"
	"hospital-backup/internal/logging"
	"hospital-backup/internal/store"
)

// fakeDatabases records how the application uses the connection service
type fakeDatabases struct {
	db       *sql.DB
	err      error
	connects int
	closed   int
}

func (f *fakeDatabases) Connect(_ context.Context, _ database.DatabaseConfig) (*sql.DB, database.Dialect, error) {
	f.connects++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.db, database.SQLiteDialect{}, nil
}

func (f *fakeDatabases) TestConnection(context.Context, *sql.DB) error { return nil }

func (f *fakeDatabases) Close(db *sql.DB) error {
	f.closed++
	return db.Close()
}

func (f *fakeDatabases) GetVersion(context.Context, *sql.DB, database.Dialect) (string, error) {
	return "3", nil
}

func tenantDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenant.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range []string{
		`CREATE TABLE wards (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`INSERT INTO wards (id, name) VALUES (1, 'Cardiology'), (2, 'Maternity')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Database: database.DatabaseConfig{Driver: database.DriverSQLite, Path: tenantDatabase(t)},
		Metadata: store.Config{Driver: store.DriverSQLite, Path: filepath.Join(dir, "meta.db"), AutoMigrate: true},
		Backup:   config.BackupConfig{Root: filepath.Join(dir, "backups"), AuditFile: filepath.Join(dir, "audit", "audit.log")},
		Operator: config.OperatorConfig{ID: "alice", Roles: []string{"ADMIN"}},
		Metrics:  config.MetricsConfig{TextfilePath: filepath.Join(dir, "backup.prom")},
	}
	cfg.SetDefaults()
	return cfg
}

func TestNew_RejectsMissingConfig(t *testing.T) {
	app, err := New(context.Background(), nil, Options{})
	assert.Nil(t, app)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))
}

func TestNew_InvalidConfigNeverConnects(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Level = "loud"
	databases := &fakeDatabases{}

	app, err := New(context.Background(), cfg, Options{Logger: logging.NewNopLogger(), Databases: databases})
	assert.Nil(t, app)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))
	assert.Zero(t, databases.connects)
}

func TestNew_ConnectionFailure(t *testing.T) {
	databases := &fakeDatabases{err: appErrors.NewAppError(appErrors.ErrorTypeConnection, "connection refused", nil)}

	app, err := New(context.Background(), testConfig(t), Options{Logger: logging.NewNopLogger(), Databases: databases})
	assert.Nil(t, app)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeConnection))
	assert.Equal(t, 1, databases.connects)
	assert.Zero(t, databases.closed)
}

func TestNew_StoreFailureClosesTenantDatabase(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	cfg.Metadata.Path = filepath.Join(blocker, "meta.db")

	db, err := sql.Open("sqlite", cfg.Database.Path)
	require.NoError(t, err)
	databases := &fakeDatabases{db: db}

	app, err := New(context.Background(), cfg, Options{Logger: logging.NewNopLogger(), Databases: databases})
	assert.Nil(t, app)
	assert.Error(t, err)
	assert.Equal(t, 1, databases.closed)
}

func TestApplication_EndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	app, err := New(ctx, cfg, Options{Logger: logging.NewNopLogger()})
	require.NoError(t, err)
	assert.NotNil(t, app.GetLogger())
	assert.Equal(t, "alice", app.Principal().ID)

	created := app.API().CreateBackup(ctx, app.Principal(), api.CreateBackupRequest{
		TenantID:        "CHU-Nord",
		Type:            "COMPLETE",
		PrimaryLocation: "daily",
	})
	require.True(t, created.Success, created.Message)
	data, ok := created.Data.(api.CreateBackupData)
	require.True(t, ok)
	assert.Equal(t, backup.StatusSuccess, data.Status)
	assert.FileExists(t, data.Path)

	verified := app.API().VerifyBackup(ctx, app.Principal(), data.ID)
	assert.True(t, verified.Success, verified.Message)

	restored := app.API().RestoreBackup(ctx, app.Principal(), data.ID)
	assert.True(t, restored.Success, restored.Message)

	denied := app.API().RestoreBackup(ctx, backup.Principal{ID: "bob", Roles: []string{"NURSE"}}, data.ID)
	assert.False(t, denied.Success)
	assert.Equal(t, string(appErrors.ErrorTypeAccessDenied), denied.Code)

	require.NoError(t, app.Shutdown())

	metrics, err := os.ReadFile(cfg.Metrics.TextfilePath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "hospital_backup_operations_total")

	audit, err := os.ReadFile(cfg.Backup.AuditFile)
	require.NoError(t, err)
	assert.Contains(t, string(audit), data.BackupID)
}

func TestApplication_HandleSignals(t *testing.T) {
	app := &Application{logger: logging.NewNopLogger()}

	ctx, cancel := app.HandleSignals(context.Background())
	defer cancel()

	process, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, process.Signal(syscall.SIGINT))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not canceled by SIGINT")
	}
}

func TestHandleError(t *testing.T) {
	t.Run("app error with hints", func(t *testing.T) {
		var buf bytes.Buffer
		HandleError(&buf, logging.NewNopLogger(), appErrors.NewAccessDeniedError("principal bob lacks an elevated role"))

		out := buf.String()
		assert.Contains(t, out, "Error: principal bob lacks an elevated role")
		assert.Contains(t, out, "Troubleshooting hints:")
		assert.Contains(t, out, "--roles")
	})

	t.Run("plain error", func(t *testing.T) {
		var buf bytes.Buffer
		HandleError(&buf, nil, errors.New("boom"))
		assert.Equal(t, "Error: boom\n", buf.String())
	})

	t.Run("wrapped plain error keeps the cause", func(t *testing.T) {
		var buf bytes.Buffer
		HandleError(&buf, logging.NewNopLogger(), fmt.Errorf("failed to read config: %w", errors.New("permission denied")))
		assert.Equal(t, "Error: failed to read config: permission denied\n", buf.String())
		assert.NotContains(t, buf.String(), "Troubleshooting")
	})

	t.Run("nil", func(t *testing.T) {
		var buf bytes.Buffer
		HandleError(&buf, nil, nil)
		assert.Empty(t, buf.String())
	})
}

func TestTroubleshootingHints(t *testing.T) {
	for _, errorType := range []appErrors.ErrorType{
		appErrors.ErrorTypeConnection,
		appErrors.ErrorTypeMissingArtifact,
		appErrors.ErrorTypeIntegrityMismatch,
		appErrors.ErrorTypeBrokenChain,
		appErrors.ErrorTypeFatalExecution,
	} {
		assert.NotEmpty(t, TroubleshootingHints(errorType), errorType)
	}
	assert.Empty(t, TroubleshootingHints(appErrors.ErrorTypePartialFailure))
}
