package backup

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hospital-backup/internal/database"
	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/logging"
)

// TableDump records what was written for one table
type TableDump struct {
	Name  string `json:"name"`
	Rows  int    `json:"rows"`
	Error string `json:"error,omitempty"`
}

// DumpResult describes a dump file written to disk
type DumpResult struct {
	Path         string      `json:"path"`
	SizeBytes    int64       `json:"size_bytes"`
	Checksum     string      `json:"checksum"`
	Tables       []TableDump `json:"tables"`
	InsertCount  int         `json:"insert_count"`
	FailedTables int         `json:"failed_tables"`
}

// PartialFailure returns a partial_failure error when any table could not be dumped
func (r *DumpResult) PartialFailure() error {
	if r == nil || r.FailedTables == 0 {
		return nil
	}
	return apperrors.NewPartialFailureError(
		fmt.Sprintf("%d of %d tables could not be dumped", r.FailedTables, len(r.Tables)),
		len(r.Tables)-r.FailedTables, r.FailedTables)
}

// DumpGenerator serializes schema and rows of every table into a replayable SQL script
type DumpGenerator struct {
	dialect database.Dialect
	exclude map[string]bool
	logger  *logging.Logger
	now     func() time.Time
}

// NewDumpGenerator creates a generator that skips the excluded tables
func NewDumpGenerator(dialect database.Dialect, excludeTables []string, logger *logging.Logger) *DumpGenerator {
	return &DumpGenerator{
		dialect: dialect,
		exclude: tableSet(excludeTables),
		logger:  logger,
		now:     time.Now,
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Generate writes the dump to path through a temporary file in the same directory and
// renames it into place only once it is complete and synced.
func (g *DumpGenerator) Generate(ctx context.Context, q database.Queryer, backupID, path string) (*DumpResult, error) {
	startTime := time.Now()
	result := &DumpResult{Path: path}

	tables, err := g.dialect.ListTables(ctx, q)
	if err != nil {
		return nil, apperrors.NewFailedWriteError("failed to enumerate tables for dump", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, apperrors.NewFailedWriteError(fmt.Sprintf("failed to create backup directory %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, apperrors.NewFailedWriteError("failed to create temporary dump file", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	hasher := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(tmp, hasher)}
	w := bufio.NewWriterSize(counter, 256*1024)

	if err := g.writeScript(ctx, q, w, backupID, tables, result); err != nil {
		return nil, err
	}

	if err := w.Flush(); err != nil {
		return nil, apperrors.NewFailedWriteError("failed to flush dump file", err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, apperrors.NewFailedWriteError("failed to sync dump file", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, apperrors.NewFailedWriteError("failed to close dump file", err)
	}
	if counter.n == 0 {
		return nil, apperrors.NewFailedWriteError("dump produced an empty file", nil)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, apperrors.NewFailedWriteError(fmt.Sprintf("failed to move dump into place at %s", path), err)
	}
	committed = true

	result.SizeBytes = counter.n
	result.Checksum = hex.EncodeToString(hasher.Sum(nil))

	g.logger.LogDump(backupID, len(result.Tables), result.InsertCount, result.SizeBytes, time.Since(startTime), nil)
	return result, nil
}

func (g *DumpGenerator) writeScript(ctx context.Context, q database.Queryer, w *bufio.Writer, backupID string, tables []string, result *DumpResult) error {
	var included []string
	for _, t := range tables {
		if !g.exclude[t] {
			included = append(included, t)
		}
	}

	fmt.Fprintf(w, "-- Hospital backup dump\n")
	fmt.Fprintf(w, "-- Backup: %s\n", backupID)
	fmt.Fprintf(w, "-- Dialect: %s\n", g.dialect.Name())
	fmt.Fprintf(w, "-- Generated: %s\n", g.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "-- Tables: %d\n\n", len(included))
	fmt.Fprintf(w, "%s;\n\n", g.dialect.DisableIntegrityChecks())

	for _, table := range included {
		if err := ctx.Err(); err != nil {
			return apperrors.NewAppError(apperrors.ErrorTypeInterruption, "dump interrupted", err)
		}

		td := g.writeTable(ctx, q, w, table)
		result.Tables = append(result.Tables, td)
		result.InsertCount += td.Rows
		if td.Error != "" {
			result.FailedTables++
			g.logger.WithFields(map[string]interface{}{
				"backup_id": backupID,
				"table":     table,
				"error":     td.Error,
			}).Warn("Table skipped in dump")
		}
	}

	fmt.Fprintf(w, "%s;\n", g.dialect.EnableIntegrityChecks())
	return nil
}

// writeTable emits one table block; failures become an inline comment
func (g *DumpGenerator) writeTable(ctx context.Context, q database.Queryer, w *bufio.Writer, table string) TableDump {
	td := TableDump{Name: table}
	quoted := g.dialect.QuoteIdentifier(table)

	fmt.Fprintf(w, "-- Table: %s\n", table)

	ddl, err := g.dialect.CreateTableStatement(ctx, q, table)
	if err == nil && strings.TrimSpace(ddl) == "" {
		err = fmt.Errorf("empty create statement")
	}
	if err != nil {
		td.Error = err.Error()
		fmt.Fprintf(w, "-- ERROR: could not read schema of %s: %s\n\n", table, commentSafe(td.Error))
		return td
	}

	columns, err := g.dialect.Columns(ctx, q, table)
	if err == nil && len(columns) == 0 {
		err = fmt.Errorf("no columns reported")
	}
	if err != nil {
		td.Error = err.Error()
		fmt.Fprintf(w, "-- ERROR: could not read columns of %s: %s\n\n", table, commentSafe(td.Error))
		return td
	}

	fmt.Fprintf(w, "DROP TABLE IF EXISTS %s;\n", quoted)
	fmt.Fprintf(w, "%s;\n", strings.TrimRight(strings.TrimSpace(ddl), ";"))

	quotedCols := make([]string, len(columns))
	for i, c := range columns {
		quotedCols[i] = g.dialect.QuoteIdentifier(c)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES (", quoted, strings.Join(quotedCols, ", "))

	err = database.StreamQuotedRows(ctx, q, g.dialect, table, columns, func(values string) error {
		w.WriteString(prefix)
		w.WriteString(values)
		_, err := w.WriteString(");\n")
		if err == nil {
			td.Rows++
		}
		return err
	})
	if err != nil {
		td.Error = err.Error()
		fmt.Fprintf(w, "-- ERROR: rows of %s stopped after %d: %s\n", table, td.Rows, commentSafe(td.Error))
	}

	w.WriteString("\n")
	return td
}

func commentSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// FileDigest computes the SHA-256 and size of a file
func FileDigest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	return digest(f, sha256.New())
}

func digest(r io.Reader, h hash.Hash) (string, int64, error) {
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
