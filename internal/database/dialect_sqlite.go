package database

import (
	"context"
	"database/sql"
	"strings"
)

// SQLiteDialect targets SQLite through the pure-Go glebarez driver
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return DriverSQLite }

func (SQLiteDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SQLiteDialect) ListTables(ctx context.Context, q Queryer) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

// TableSizeBytes relies on the dbstat virtual table, which is not compiled into every build
func (SQLiteDialect) TableSizeBytes(ctx context.Context, q Queryer, table string) (int64, error) {
	var size sql.NullInt64
	err := q.QueryRowContext(ctx, "SELECT SUM(pgsize) FROM dbstat WHERE name = ?", table).Scan(&size)
	return size.Int64, err
}

func (SQLiteDialect) CreateTableStatement(ctx context.Context, q Queryer, table string) (string, error) {
	var ddl string
	err := q.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&ddl)
	return ddl, err
}

func (SQLiteDialect) Columns(ctx context.Context, q Queryer, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (SQLiteDialect) DisableIntegrityChecks() string { return "PRAGMA foreign_keys = OFF" }

func (SQLiteDialect) EnableIntegrityChecks() string { return "PRAGMA foreign_keys = ON" }

func (SQLiteDialect) BackslashEscapes() bool { return false }

func (SQLiteDialect) VersionQuery() string { return "SELECT sqlite_version()" }
