package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hospital-backup/internal/store"
)

// CheckResult is the outcome of a readiness check of the configuration and local storage
type CheckResult struct {
	Success          bool     `json:"success" yaml:"success"`
	ConfigValid      bool     `json:"config_valid" yaml:"config_valid"`
	StorageReady     bool     `json:"storage_ready" yaml:"storage_ready"`
	MetadataReady    bool     `json:"metadata_ready" yaml:"metadata_ready"`
	Warnings         []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Errors           []string `json:"errors,omitempty" yaml:"errors,omitempty"`
	RecommendedFixes []string `json:"recommended_fixes,omitempty" yaml:"recommended_fixes,omitempty"`
}

// Checker verifies a configuration can be used before any backup runs
type Checker struct {
	config *Config
}

// NewChecker creates a checker for cfg
func NewChecker(cfg *Config) *Checker {
	return &Checker{config: cfg}
}

// Run validates the configuration, prepares the backup root and checks write permissions.
// It creates missing directories but never touches a database.
func (c *Checker) Run() *CheckResult {
	result := &CheckResult{
		Success:       true,
		ConfigValid:   true,
		StorageReady:  true,
		MetadataReady: true,
	}

	if err := c.config.Validate(); err != nil {
		result.Success = false
		result.ConfigValid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Configuration validation failed: %v", err))
	}

	if err := checkWritableDir(c.config.Backup.Root); err != nil {
		result.Success = false
		result.StorageReady = false
		result.Errors = append(result.Errors, fmt.Sprintf("Backup root is not usable: %v", err))
	}
	for _, root := range c.config.Backup.AcceptedRoots {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Accepted root %s does not exist", root))
		}
	}

	if c.config.Metadata.Driver == store.DriverSQLite && c.config.Metadata.Path != "" {
		if err := checkWritableDir(filepath.Dir(c.config.Metadata.Path)); err != nil {
			result.Success = false
			result.MetadataReady = false
			result.Errors = append(result.Errors, fmt.Sprintf("Metadata directory is not usable: %v", err))
		}
	}

	c.checkOffsite(result)
	c.generateRecommendations(result)
	return result
}

// checkOffsite reports credentials that are obviously missing; it does not contact providers
func (c *Checker) checkOffsite(result *CheckResult) {
	oc := c.config.Offsite
	if (oc.S3.AccessKey == "") != (oc.S3.SecretKey == "") {
		result.Warnings = append(result.Warnings, "S3 access key and secret key must be set together")
	}
	if oc.Azure.AccountName != "" && oc.Azure.AccountKey == "" {
		result.Warnings = append(result.Warnings, "Azure account key is missing")
	}
	if oc.GCS.CredentialsPath != "" {
		if _, err := os.Stat(oc.GCS.CredentialsPath); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("GCS credentials file %s is not readable", oc.GCS.CredentialsPath))
		}
	}
	if strings.HasPrefix(oc.EncryptionKeyRef, "vault:") && c.config.Vault.Address == "" && os.Getenv("VAULT_ADDR") == "" {
		result.Warnings = append(result.Warnings, "Encryption key is stored in vault but no vault address is configured")
	}
}

func (c *Checker) generateRecommendations(result *CheckResult) {
	if c.config.Offsite.EncryptionKeyRef == "" {
		result.RecommendedFixes = append(result.RecommendedFixes,
			"Configure offsite.encryption_key_ref so secondary copies of patient data are encrypted")
	}
	if !c.config.Backup.ValidateOnRestore {
		result.RecommendedFixes = append(result.RecommendedFixes,
			"Enable backup.validate_on_restore to compare dump checksums before replaying")
	}
	if c.config.Backup.AuditFile == "" {
		result.RecommendedFixes = append(result.RecommendedFixes,
			"Set backup.audit_file to keep an audit trail of backups and restores")
	}
	if len(c.config.Tenants.Allowed) == 0 && c.config.Tenants.Query == "" {
		result.RecommendedFixes = append(result.RecommendedFixes,
			"Configure tenants.allowed or tenants.query so unknown tenant ids are rejected")
	}
}

func checkWritableDir(dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	probe := filepath.Join(dir, ".permission_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("insufficient write permissions for %s: %w", dir, err)
	}
	return os.Remove(probe)
}
