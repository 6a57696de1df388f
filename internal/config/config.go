package config

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"hospital-backup/internal/backup"
	"hospital-backup/internal/database"
	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/logging"
	"hospital-backup/internal/store"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "HOSPITAL_BACKUP"

// Config is the complete application configuration
type Config struct {
	Database database.DatabaseConfig `mapstructure:"database" yaml:"database"`
	Metadata store.Config            `mapstructure:"metadata" yaml:"metadata"`
	Backup   BackupConfig            `mapstructure:"backup" yaml:"backup"`
	Offsite  backup.OffsiteConfig    `mapstructure:"offsite" yaml:"offsite"`
	Vault    backup.VaultConfig      `mapstructure:"vault" yaml:"vault"`
	Tenants  TenantsConfig           `mapstructure:"tenants" yaml:"tenants"`
	Operator OperatorConfig          `mapstructure:"operator" yaml:"operator"`
	Logging  LoggingConfig           `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig           `mapstructure:"metrics" yaml:"metrics"`
}

// BackupConfig holds dump placement and restore settings
type BackupConfig struct {
	// Root is the server-side directory dumps are written under
	Root string `mapstructure:"root" yaml:"root"`
	// ForeignPrefix is stripped from locations written by the legacy application
	ForeignPrefix string `mapstructure:"foreign_prefix" yaml:"foreign_prefix"`
	// AcceptedRoots are absolute directories used as-is
	AcceptedRoots     []string `mapstructure:"accepted_roots" yaml:"accepted_roots"`
	ExcludeTables     []string `mapstructure:"exclude_tables" yaml:"exclude_tables"`
	ValidateOnRestore bool     `mapstructure:"validate_on_restore" yaml:"validate_on_restore"`
	AuditFile         string   `mapstructure:"audit_file" yaml:"audit_file"`
}

// TenantsConfig selects how tenant identifiers are resolved
type TenantsConfig struct {
	// Allowed is a static allow-list
	Allowed []string `mapstructure:"allowed" yaml:"allowed"`
	// Query is run against the tenant database with the tenant id as its only argument
	Query string `mapstructure:"query" yaml:"query"`
}

// OperatorConfig is the identity used for role checks when no flag overrides it
type OperatorConfig struct {
	ID    string   `mapstructure:"id" yaml:"id"`
	Roles []string `mapstructure:"roles" yaml:"roles"`
}

// LoggingConfig holds console and file logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// MetricsConfig controls the node-exporter textfile export
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for every section
func (c *Config) SetDefaults() {
	c.Database.SetDefaults()
	c.Metadata.SetDefaults()
	c.Backup.SetDefaults()
	if c.Offsite.Compression == "" {
		c.Offsite.Compression = string(backup.CompressionTypeGzip)
	}
	c.Operator.SetDefaults()
	c.Logging.SetDefaults()
}

// LoadFromEnvironment applies HOSPITAL_BACKUP_* overrides
func (c *Config) LoadFromEnvironment() {
	loadDatabaseEnv(&c.Database)
	loadMetadataEnv(&c.Metadata)
	c.Backup.LoadFromEnvironment()
	loadOffsiteEnv(&c.Offsite)

	if val := env("VAULT_ADDRESS"); val != "" {
		c.Vault.Address = val
	}
	if val := env("VAULT_TOKEN"); val != "" {
		c.Vault.Token = val
	}

	c.Tenants.LoadFromEnvironment()
	c.Operator.LoadFromEnvironment()
	c.Logging.LoadFromEnvironment()

	if val := env("METRICS_TEXTFILE"); val != "" {
		c.Metrics.TextfilePath = val
	}
}

// Validate checks every section and returns a validation AppError listing all invalid fields
func (c *Config) Validate() error {
	var errs apperrors.ValidationErrors

	if err := c.Database.Validate(); err != nil {
		errs.Add("database", err.Error(), c.Database.Label())
	}
	merge(&errs, c.Metadata.Validate())
	merge(&errs, c.Backup.Validate())
	merge(&errs, c.Offsite.Validate())
	merge(&errs, c.Tenants.Validate())
	merge(&errs, c.Logging.Validate())

	if errs.HasErrors() {
		return apperrors.NewValidationError("invalid configuration", errs)
	}
	return nil
}

// Principal returns the configured operator identity
func (c *Config) Principal() backup.Principal {
	return backup.Principal{ID: c.Operator.ID, Roles: c.Operator.Roles}
}

// merge folds field errors from a section into errs; other errors become one entry
func merge(errs *apperrors.ValidationErrors, err error) {
	if err == nil {
		return
	}
	var fields apperrors.ValidationErrors
	if errors.As(err, &fields) {
		*errs = append(*errs, fields...)
		return
	}
	errs.Add("config", err.Error(), nil)
}

// SetDefaults sets default values for backup placement
func (bc *BackupConfig) SetDefaults() {
	if bc.Root == "" {
		bc.Root = "./backups"
	}
}

// LoadFromEnvironment loads backup settings from environment variables
func (bc *BackupConfig) LoadFromEnvironment() {
	if val := env("ROOT"); val != "" {
		bc.Root = val
	}
	if val := env("FOREIGN_PREFIX"); val != "" {
		bc.ForeignPrefix = val
	}
	if val := env("ACCEPTED_ROOTS"); val != "" {
		bc.AcceptedRoots = splitList(val)
	}
	if val := env("EXCLUDE_TABLES"); val != "" {
		bc.ExcludeTables = splitList(val)
	}
	if val := env("VALIDATE_ON_RESTORE"); val != "" {
		bc.ValidateOnRestore = parseBool(val, bc.ValidateOnRestore)
	}
	if val := env("AUDIT_FILE"); val != "" {
		bc.AuditFile = val
	}
}

// Validate checks the backup placement settings
func (bc *BackupConfig) Validate() error {
	var errs apperrors.ValidationErrors

	if strings.TrimSpace(bc.Root) == "" {
		errs.Add("backup.root", "backup root directory is required", bc.Root)
	}
	for i, root := range bc.AcceptedRoots {
		if !strings.HasPrefix(root, "/") {
			errs.Add(fmt.Sprintf("backup.accepted_roots[%d]", i), "accepted roots must be absolute paths", root)
		}
	}
	for i, table := range bc.ExcludeTables {
		if strings.TrimSpace(table) == "" {
			errs.Add(fmt.Sprintf("backup.exclude_tables[%d]", i), "table name cannot be empty", table)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// LoadFromEnvironment loads tenant resolution settings from environment variables
func (tc *TenantsConfig) LoadFromEnvironment() {
	if val := env("TENANTS"); val != "" {
		tc.Allowed = splitList(val)
	}
	if val := env("TENANT_QUERY"); val != "" {
		tc.Query = val
	}
}

// Validate rejects configuring both an allow-list and a query
func (tc *TenantsConfig) Validate() error {
	var errs apperrors.ValidationErrors

	if len(tc.Allowed) > 0 && tc.Query != "" {
		errs.Add("tenants", "configure either an allow-list or a lookup query, not both", nil)
	}
	if tc.Query != "" && !strings.Contains(tc.Query, "?") && !strings.Contains(tc.Query, "$1") {
		errs.Add("tenants.query", "lookup query must take the tenant id as a parameter", tc.Query)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Resolver builds the tenant resolver for the configured mode
func (tc *TenantsConfig) Resolver(db *sql.DB) backup.TenantResolver {
	switch {
	case len(tc.Allowed) > 0:
		return backup.NewStaticTenantResolver(tc.Allowed)
	case tc.Query != "":
		return backup.NewQueryTenantResolver(db, tc.Query)
	default:
		return backup.AnyTenantResolver{}
	}
}

// SetDefaults falls back to the local user name
func (oc *OperatorConfig) SetDefaults() {
	if oc.ID == "" {
		oc.ID = os.Getenv("USER")
	}
	if oc.ID == "" {
		oc.ID = "operator"
	}
}

// LoadFromEnvironment loads the operator identity from environment variables
func (oc *OperatorConfig) LoadFromEnvironment() {
	if val := env("OPERATOR"); val != "" {
		oc.ID = val
	}
	if val := env("ROLES"); val != "" {
		oc.Roles = splitList(val)
	}
}

// SetDefaults sets default values for logging
func (lc *LoggingConfig) SetDefaults() {
	if lc.Level == "" {
		lc.Level = string(logging.LogLevelNormal)
	}
	if lc.Format == "" {
		lc.Format = "text"
	}
}

// LoadFromEnvironment loads logging settings from environment variables
func (lc *LoggingConfig) LoadFromEnvironment() {
	if val := env("LOG_LEVEL"); val != "" {
		lc.Level = strings.ToLower(val)
	}
	if val := env("LOG_FORMAT"); val != "" {
		lc.Format = strings.ToLower(val)
	}
	if val := env("LOG_FILE"); val != "" {
		lc.File = val
	}
}

// Validate checks the level and format names
func (lc *LoggingConfig) Validate() error {
	var errs apperrors.ValidationErrors

	switch logging.LogLevel(lc.Level) {
	case logging.LogLevelQuiet, logging.LogLevelNormal, logging.LogLevelVerbose, logging.LogLevelDebug:
	default:
		errs.Add("logging.level", "must be one of quiet, normal, verbose, debug", lc.Level)
	}
	switch lc.Format {
	case "text", "json", "nested":
	default:
		errs.Add("logging.format", "must be one of text, json, nested", lc.Format)
	}
	if lc.MaxSizeMB < 0 || lc.MaxBackups < 0 || lc.MaxAgeDays < 0 {
		errs.Add("logging", "rotation settings cannot be negative", nil)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// LoggerConfig converts the section into a logging.Config
func (lc *LoggingConfig) LoggerConfig() logging.Config {
	return logging.Config{
		Level:      logging.LogLevel(lc.Level),
		Output:     os.Stderr,
		Format:     lc.Format,
		LogFile:    lc.File,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
		Compress:   lc.Compress,
	}
}

func loadDatabaseEnv(dc *database.DatabaseConfig) {
	if val := env("DB_DRIVER"); val != "" {
		dc.Driver = strings.ToLower(val)
	}
	if val := env("DB_HOST"); val != "" {
		dc.Host = val
	}
	if val := env("DB_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			dc.Port = port
		}
	}
	if val := env("DB_USER"); val != "" {
		dc.Username = val
	}
	if val := env("DB_PASSWORD"); val != "" {
		dc.Password = val
	}
	if val := env("DB_NAME"); val != "" {
		dc.Database = val
	}
	if val := env("DB_PATH"); val != "" {
		dc.Path = val
	}
	if val := env("DB_TIMEOUT"); val != "" {
		if timeout, err := time.ParseDuration(val); err == nil {
			dc.Timeout = timeout
		}
	}
}

func loadMetadataEnv(mc *store.Config) {
	if val := env("METADATA_DRIVER"); val != "" {
		mc.Driver = strings.ToLower(val)
	}
	if val := env("METADATA_DSN"); val != "" {
		mc.DSN = val
	}
	if val := env("METADATA_PATH"); val != "" {
		mc.Path = val
	}
	if val := env("METADATA_AUTO_MIGRATE"); val != "" {
		mc.AutoMigrate = parseBool(val, mc.AutoMigrate)
	}
}

func loadOffsiteEnv(oc *backup.OffsiteConfig) {
	if val := env("OFFSITE_COMPRESSION"); val != "" {
		oc.Compression = val
	}
	if val := env("OFFSITE_COMPRESSION_LEVEL"); val != "" {
		if level, err := strconv.Atoi(val); err == nil {
			oc.CompressionLevel = level
		}
	}
	if val := env("OFFSITE_ENCRYPTION_KEY_REF"); val != "" {
		oc.EncryptionKeyRef = val
	}
	if val := env("OFFSITE_BANDWIDTH_LIMIT"); val != "" {
		oc.BandwidthLimit = val
	}
	if val := env("S3_REGION"); val != "" {
		oc.S3.Region = val
	}
	if val := env("S3_ACCESS_KEY"); val != "" {
		oc.S3.AccessKey = val
	}
	if val := env("S3_SECRET_KEY"); val != "" {
		oc.S3.SecretKey = val
	}
	if val := env("S3_ENDPOINT"); val != "" {
		oc.S3.Endpoint = val
	}
	if val := env("AZURE_ACCOUNT_NAME"); val != "" {
		oc.Azure.AccountName = val
	}
	if val := env("AZURE_ACCOUNT_KEY"); val != "" {
		oc.Azure.AccountKey = val
	}
	if val := env("GCS_CREDENTIALS_PATH"); val != "" {
		oc.GCS.CredentialsPath = val
	}
}

func env(name string) string {
	return os.Getenv(EnvPrefix + "_" + name)
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(val string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return fallback
	}
	return b
}
