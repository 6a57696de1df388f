package backup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-backup/internal/database"
	"hospital-backup/internal/logging"
)

func TestStatsCalculator_SQLite(t *testing.T) {
	db := openTenantDB(t)
	at := time.Date(2026, 1, 18, 2, 0, 0, 500, time.UTC)
	calc := NewStatsCalculator(database.SQLiteDialect{}, nil, logging.NewNopLogger())

	stats := calc.Calculate(context.Background(), db, at)
	assert.Equal(t, 3, stats.TotalTables)
	assert.Equal(t, int64(100), stats.TotalRows)
	assert.Empty(t, stats.Err)
	assert.Len(t, stats.Checksum, 64)
	assert.Equal(t, at.Truncate(time.Second), stats.Timestamp)

	again := calc.Calculate(context.Background(), db, at)
	assert.Equal(t, stats.Checksum, again.Checksum, "same data and instant give the same fingerprint")

	later := calc.Calculate(context.Background(), db, at.Add(time.Second))
	assert.NotEqual(t, stats.Checksum, later.Checksum)
}

func TestStatsCalculator_Exclusions(t *testing.T) {
	db := openTenantDB(t)
	stats := NewStatsCalculator(database.SQLiteDialect{}, []string{"patients"}, logging.NewNopLogger()).
		Calculate(context.Background(), db, time.Now())
	assert.Equal(t, 2, stats.TotalTables)
	assert.Equal(t, int64(50), stats.TotalRows)
}

func TestStatsCalculator_EnumerationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT TABLE_NAME").WillReturnError(fmt.Errorf("server has gone away"))

	stats := NewStatsCalculator(database.MySQLDialect{}, nil, logging.NewNopLogger()).
		Calculate(context.Background(), db, time.Now())
	assert.Zero(t, stats.TotalTables)
	assert.Zero(t, stats.TotalRows)
	assert.Equal(t, "server has gone away", stats.Err)
	assert.NotEmpty(t, stats.Checksum)
}

func TestStatsCalculator_TableErrorsCountAsZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT TABLE_NAME").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("wards").AddRow("locked"))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"c"}).AddRow(7))
	mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"s"}).AddRow(4096))
	mock.ExpectQuery("SELECT COUNT").WillReturnError(fmt.Errorf("lock wait timeout"))
	mock.ExpectQuery("SELECT COALESCE").WillReturnError(fmt.Errorf("lock wait timeout"))

	stats := NewStatsCalculator(database.MySQLDialect{}, nil, logging.NewNopLogger()).
		Calculate(context.Background(), db, time.Now())
	assert.Equal(t, 2, stats.TotalTables)
	assert.Equal(t, int64(7), stats.TotalRows)
	assert.Equal(t, int64(4096), stats.TotalBytes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint(fingerprint{Tables: 1, Rows: 2, Bytes: 3, Timestamp: "2026-01-18T02:00:00Z"})
	b := Fingerprint(fingerprint{Tables: 1, Rows: 2, Bytes: 3, Timestamp: "2026-01-18T02:00:00Z"})
	c := Fingerprint(fingerprint{Tables: 1, Rows: 3, Bytes: 3, Timestamp: "2026-01-18T02:00:00Z"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
