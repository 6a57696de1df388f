package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	apperrors "hospital-backup/internal/errors"
)

// DefaultFileName is searched for when no config path is given
const DefaultFileName = "hospital-backup"

// Loader reads configuration files through viper and writes them with yaml.v3
type Loader struct {
	viper *viper.Viper
}

// NewLoader creates a loader with environment support enabled
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{viper: v}
}

// Viper exposes the underlying instance so commands can bind flags
func (l *Loader) Viper() *viper.Viper {
	return l.viper
}

// Load reads path, or the first hospital-backup.yaml found in the search paths when path is
// empty, then applies environment overrides and defaults. A missing default file is not an error.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		l.viper.SetConfigFile(path)
	} else {
		l.viper.SetConfigName(DefaultFileName)
		l.viper.SetConfigType("yaml")
		l.viper.AddConfigPath(".")
		l.viper.AddConfigPath("$HOME/.config/hospital-backup")
		l.viper.AddConfigPath("/etc/hospital-backup")
	}

	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, apperrors.NewValidationError(fmt.Sprintf("failed to read configuration %s", path), err)
		}
	}

	cfg := &Config{}
	if err := l.viper.Unmarshal(cfg); err != nil {
		return nil, apperrors.NewValidationError("failed to decode configuration", err)
	}

	cfg.LoadFromEnvironment()
	cfg.SetDefaults()
	return cfg, nil
}

// ConfigFileUsed returns the file Load read, if any
func (l *Loader) ConfigFileUsed() string {
	return l.viper.ConfigFileUsed()
}

// Save writes cfg as YAML, creating the parent directory
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	return writeFile(path, data)
}

// WriteDefault writes the commented template to path; existing files are kept unless force is set
func WriteDefault(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return apperrors.NewValidationError(fmt.Sprintf("configuration file %s already exists", path), nil).
			WithContext("path", path)
	}
	return writeFile(path, []byte(Template()))
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	// The file may carry database and vault credentials
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}

// Template returns a commented configuration file with the defaults filled in
func Template() string {
	return `# hospital-backup configuration
# Every value can be overridden with HOSPITAL_BACKUP_* environment variables.

# Tenant database the dumps are taken from and restored into
database:
  driver: mysql           # mysql or sqlite
  host: localhost
  port: 3306
  username: backup
  password: ""            # prefer HOSPITAL_BACKUP_DB_PASSWORD
  database: hospital
  path: ""                # sqlite file when driver is sqlite
  timeout: 30s

# Where backup and schedule records are kept
metadata:
  driver: sqlite          # sqlite, mysql or postgres
  path: hospital-backup.db
  dsn: ""                 # mysql or postgres DSN
  auto_migrate: true

backup:
  root: ./backups         # server-side directory dumps are written under
  foreign_prefix: ""      # prefix stripped from locations written by other hosts
  accepted_roots: []      # absolute directories used without rebasing
  exclude_tables: []      # skipped by both the fingerprint and the dump
  validate_on_restore: true
  audit_file: ""          # JSON audit trail, rotated

# Secondary copies (s3://bucket/prefix, gs://bucket/prefix, azure://container/prefix or a path)
offsite:
  compression: GZIP       # NONE, GZIP, LZ4 or ZSTD
  compression_level: 0
  encryption_key_ref: ""  # env:NAME, file:/path, passphrase-env:NAME or vault:path#field
  bandwidth_limit: ""     # e.g. 20MB
  s3:
    region: ""
    access_key: ""
    secret_key: ""
  azure:
    account_name: ""
    account_key: ""
  gcs:
    credentials_path: ""

vault:
  address: ""             # falls back to VAULT_ADDR
  token: ""               # falls back to VAULT_TOKEN

# Either a static allow-list or a lookup query taking the tenant id
tenants:
  allowed: []
  query: ""               # e.g. SELECT code FROM hopital WHERE code = ?

operator:
  id: ""
  roles: []               # ADMIN, SUPER_ADMIN or SYSTEM

logging:
  level: normal           # quiet, normal, verbose or debug
  format: text            # text, json or nested
  file: ""
  max_size_mb: 100
  max_backups: 5
  max_age_days: 30
  compress: false

metrics:
  textfile_path: ""       # node-exporter textfile collector output
`
}
