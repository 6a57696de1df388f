package store

import (
	"fmt"
	"strings"
	"time"

	apperrors "hospital-backup/internal/errors"
)

// Supported metadata drivers
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Config selects where backup and schedule records live
type Config struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	// DSN is used by mysql and postgres
	DSN string `mapstructure:"dsn" yaml:"dsn"`
	// Path is the sqlite database file
	Path            string        `mapstructure:"path" yaml:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold" yaml:"slow_threshold"`
	AutoMigrate     bool          `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// SetDefaults fills in unset fields
func (c *Config) SetDefaults() {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	c.Driver = strings.ToLower(c.Driver)
	if c.Driver == DriverSQLite && c.Path == "" && c.DSN == "" {
		c.Path = "hospital-backup.db"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 2
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = 500 * time.Millisecond
	}
}

// Validate checks the driver and its connection settings
func (c *Config) Validate() error {
	var errs apperrors.ValidationErrors

	switch c.Driver {
	case DriverSQLite:
		if c.Path == "" && c.DSN == "" {
			errs.Add("metadata.path", "path is required for sqlite", c.Path)
		}
	case DriverMySQL, DriverPostgres:
		if c.DSN == "" {
			errs.Add("metadata.dsn", fmt.Sprintf("dsn is required for %s", c.Driver), c.DSN)
		}
	default:
		errs.Add("metadata.driver", fmt.Sprintf("unsupported driver %q (sqlite, mysql, postgres)", c.Driver), c.Driver)
	}

	if errs.HasErrors() {
		return apperrors.NewValidationError("invalid metadata store configuration", errs)
	}
	return nil
}

// Label identifies the store in logs without exposing credentials
func (c *Config) Label() string {
	if c.Driver == DriverSQLite {
		if c.Path != "" {
			return c.Path
		}
		return c.DSN
	}
	return c.Driver
}
