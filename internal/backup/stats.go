package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"hospital-backup/internal/database"
	"hospital-backup/internal/logging"
)

// Stats summarizes a database at one instant
type Stats struct {
	TotalTables int       `json:"total_tables"`
	TotalRows   int64     `json:"total_rows"`
	TotalBytes  int64     `json:"total_bytes"`
	Checksum    string    `json:"checksum"`
	Timestamp   time.Time `json:"timestamp"`
	// Err is set when the database could not be enumerated at all
	Err string `json:"error,omitempty"`
}

type fingerprint struct {
	Tables    int    `json:"tables"`
	Rows      int64  `json:"rows"`
	Bytes     int64  `json:"bytes"`
	Timestamp string `json:"timestamp"`
}

type errorFingerprint struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// StatsCalculator counts tables, rows and bytes and fingerprints the totals
type StatsCalculator struct {
	dialect database.Dialect
	exclude map[string]bool
	logger  *logging.Logger
}

// NewStatsCalculator creates a calculator that skips the excluded tables
func NewStatsCalculator(dialect database.Dialect, excludeTables []string, logger *logging.Logger) *StatsCalculator {
	return &StatsCalculator{
		dialect: dialect,
		exclude: tableSet(excludeTables),
		logger:  logger,
	}
}

// Calculate never fails: a table that cannot be introspected counts as zero, and a
// database that cannot be enumerated yields zero totals with an error fingerprint.
func (c *StatsCalculator) Calculate(ctx context.Context, q database.Queryer, at time.Time) Stats {
	at = at.UTC().Truncate(time.Second)
	stats := Stats{Timestamp: at}

	tables, err := c.dialect.ListTables(ctx, q)
	if err != nil {
		c.logger.WithField("error", err.Error()).Warn("Could not enumerate tables for stats")
		stats.Err = err.Error()
		stats.Checksum = Fingerprint(errorFingerprint{Error: err.Error(), Timestamp: at.Format(time.RFC3339)})
		return stats
	}

	for _, table := range tables {
		if c.exclude[table] {
			continue
		}
		stats.TotalTables++

		rows, err := database.CountRows(ctx, q, c.dialect, table)
		if err != nil {
			c.logger.WithFields(map[string]interface{}{"table": table, "error": err.Error()}).
				Debug("Row count failed, counting table as empty")
			rows = 0
		}
		size, err := c.dialect.TableSizeBytes(ctx, q, table)
		if err != nil {
			c.logger.WithFields(map[string]interface{}{"table": table, "error": err.Error()}).
				Debug("Table size unavailable, counting as zero bytes")
			size = 0
		}

		stats.TotalRows += rows
		stats.TotalBytes += size
	}

	stats.Checksum = Fingerprint(fingerprint{
		Tables:    stats.TotalTables,
		Rows:      stats.TotalRows,
		Bytes:     stats.TotalBytes,
		Timestamp: at.Format(time.RFC3339),
	})
	return stats
}

// Fingerprint hashes the canonical JSON encoding of v with SHA-256
func Fingerprint(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func tableSet(tables []string) map[string]bool {
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		if t != "" {
			set[t] = true
		}
	}
	return set
}
