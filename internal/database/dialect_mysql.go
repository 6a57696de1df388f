package database

import (
	"context"
	"strings"
)

// MySQLDialect targets MySQL and MariaDB
type MySQLDialect struct{}

func (MySQLDialect) Name() string { return DriverMySQL }

func (MySQLDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySQLDialect) ListTables(ctx context.Context, q Queryer) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME")
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (MySQLDialect) TableSizeBytes(ctx context.Context, q Queryer, table string) (int64, error) {
	var size int64
	err := q.QueryRowContext(ctx,
		"SELECT COALESCE(DATA_LENGTH + INDEX_LENGTH, 0) FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?",
		table).Scan(&size)
	return size, err
}

func (d MySQLDialect) CreateTableStatement(ctx context.Context, q Queryer, table string) (string, error) {
	var name, ddl string
	err := q.QueryRowContext(ctx, "SHOW CREATE TABLE "+d.QuoteIdentifier(table)).Scan(&name, &ddl)
	return ddl, err
}

func (MySQLDialect) Columns(ctx context.Context, q Queryer, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT COLUMN_NAME FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION",
		table)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (MySQLDialect) DisableIntegrityChecks() string { return "SET FOREIGN_KEY_CHECKS=0" }

func (MySQLDialect) EnableIntegrityChecks() string { return "SET FOREIGN_KEY_CHECKS=1" }

func (MySQLDialect) BackslashEscapes() bool { return true }

func (MySQLDialect) VersionQuery() string { return "SELECT VERSION()" }
