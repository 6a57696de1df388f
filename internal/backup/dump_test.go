package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-backup/internal/database"
	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/logging"
)

func TestDumpGenerator_SQLite(t *testing.T) {
	db := openTenantDB(t)
	path := filepath.Join(t.TempDir(), "2026-01-18", "backup-1.sql")

	result, err := NewDumpGenerator(database.SQLiteDialect{}, nil, logging.NewNopLogger()).
		Generate(context.Background(), db, "backup-1", path)
	require.NoError(t, err)

	assert.Equal(t, path, result.Path)
	assert.Len(t, result.Tables, 3)
	assert.Equal(t, 100, result.InsertCount)
	assert.Zero(t, result.FailedTables)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	script := string(data)

	assert.True(t, strings.HasPrefix(script, "-- Hospital backup dump\n"))
	assert.Contains(t, script, "PRAGMA foreign_keys = OFF;")
	assert.Contains(t, script, `DROP TABLE IF EXISTS "patients";`)
	assert.Contains(t, script, "'Ward 1''s wing'")
	assert.Contains(t, script, "'allergic; penicillin'")
	assert.True(t, strings.HasSuffix(script, "PRAGMA foreign_keys = ON;\n"))

	sum, size, err := FileDigest(path)
	require.NoError(t, err)
	assert.Equal(t, result.Checksum, sum)
	assert.Equal(t, result.SizeBytes, size)

	// no temporary files are left next to the dump
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDumpGenerator_ExcludesTables(t *testing.T) {
	db := openTenantDB(t)
	path := filepath.Join(t.TempDir(), "dump.sql")

	result, err := NewDumpGenerator(database.SQLiteDialect{}, []string{"admissions"}, logging.NewNopLogger()).
		Generate(context.Background(), db, "backup-2", path)
	require.NoError(t, err)
	assert.Len(t, result.Tables, 2)
	assert.Equal(t, 60, result.InsertCount)
}

func TestDumpGenerator_TableFailureIsPartial(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT TABLE_NAME FROM information_schema.TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("audit").AddRow("wards"))
	mock.ExpectQuery(regexp.QuoteMeta("SHOW CREATE TABLE `audit`")).WillReturnError(fmt.Errorf("access denied"))
	mock.ExpectQuery(regexp.QuoteMeta("SHOW CREATE TABLE `wards`")).
		WillReturnRows(sqlmock.NewRows([]string{"Table", "Create Table"}).AddRow("wards", "CREATE TABLE `wards` (`id` int, `name` text)"))
	mock.ExpectQuery("SELECT COLUMN_NAME FROM information_schema.COLUMNS").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id").AddRow("name"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT QUOTE(`id`), QUOTE(`name`) FROM `wards`")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("1", "'North'").AddRow("2", nil))

	path := filepath.Join(t.TempDir(), "dump.sql")
	result, err := NewDumpGenerator(database.MySQLDialect{}, nil, logging.NewNopLogger()).
		Generate(context.Background(), db, "backup-3", path)
	require.NoError(t, err)

	assert.Equal(t, 1, result.FailedTables)
	assert.Equal(t, 2, result.InsertCount)
	assert.True(t, apperrors.IsType(result.PartialFailure(), apperrors.ErrorTypePartialFailure))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- ERROR: could not read schema of audit: access denied")
	assert.Contains(t, string(data), "INSERT INTO `wards` (`id`, `name`) VALUES (2, NULL);")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDumpGenerator_ListTablesFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT TABLE_NAME").WillReturnError(fmt.Errorf("connection refused"))

	path := filepath.Join(t.TempDir(), "dump.sql")
	_, err = NewDumpGenerator(database.MySQLDialect{}, nil, logging.NewNopLogger()).
		Generate(context.Background(), db, "backup-4", path)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeFailedWrite))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
