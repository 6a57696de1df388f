package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"hospital-backup/internal/errors"
)

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Dialect describes the engine-specific introspection, quoting and session toggles
// needed to dump and replay a database.
type Dialect interface {
	Name() string
	QuoteIdentifier(name string) string
	ListTables(ctx context.Context, q Queryer) ([]string, error)
	TableSizeBytes(ctx context.Context, q Queryer, table string) (int64, error)
	CreateTableStatement(ctx context.Context, q Queryer, table string) (string, error)
	Columns(ctx context.Context, q Queryer, table string) ([]string, error)
	// DisableIntegrityChecks and EnableIntegrityChecks return session-scoped statements
	DisableIntegrityChecks() string
	EnableIntegrityChecks() string
	// BackslashEscapes reports whether string literals treat backslash as an escape
	BackslashEscapes() bool
	VersionQuery() string
}

// NewDialect returns the dialect registered for a driver name
func NewDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case DriverMySQL, "":
		return MySQLDialect{}, nil
	case DriverSQLite, "sqlite3":
		return SQLiteDialect{}, nil
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported database driver %q", driver), nil)
	}
}

// CountRows counts the rows of a table
func CountRows(ctx context.Context, q Queryer, d Dialect, table string) (int64, error) {
	var count int64
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+d.QuoteIdentifier(table)).Scan(&count)
	return count, err
}

// QuotedRowsQuery selects every column of a table through the engine's QUOTE function
// so each value comes back as a ready-to-embed SQL literal.
func QuotedRowsQuery(d Dialect, table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = "QUOTE(" + d.QuoteIdentifier(col) + ")"
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), d.QuoteIdentifier(table))
}

// StreamQuotedRows calls fn once per row with the row's literals joined by ", "
func StreamQuotedRows(ctx context.Context, q Queryer, d Dialect, table string, columns []string, fn func(values string) error) error {
	rows, err := q.QueryContext(ctx, QuotedRowsQuery(d, table, columns))
	if err != nil {
		return err
	}
	defer rows.Close()

	values := make([]sql.NullString, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	literals := make([]string, len(columns))

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		for i, v := range values {
			if v.Valid {
				literals[i] = v.String
			} else {
				literals[i] = "NULL"
			}
		}
		if err := fn(strings.Join(literals, ", ")); err != nil {
			return err
		}
	}

	return rows.Err()
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
