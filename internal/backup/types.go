package backup

import (
	"fmt"
	"strings"
	"time"
)

// BackupType classifies what a backup captures
type BackupType string

const (
	BackupTypeComplete     BackupType = "COMPLETE"
	BackupTypeIncremental  BackupType = "INCREMENTAL"
	BackupTypeDifferential BackupType = "DIFFERENTIAL"
	BackupTypeSnapshot     BackupType = "SNAPSHOT"
)

// BackupTypes lists every backup type in display order
var BackupTypes = []BackupType{BackupTypeComplete, BackupTypeIncremental, BackupTypeDifferential, BackupTypeSnapshot}

// ParseBackupType accepts any letter case
func ParseBackupType(s string) (BackupType, error) {
	t := BackupType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range BackupTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown backup type %q", s)
}

// Status is the lifecycle state of a backup record
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusVerified  Status = "VERIFIED"
	StatusRestoring Status = "RESTORING"
	StatusRestored  Status = "RESTORED"
)

// Statuses lists every status in display order
var Statuses = []Status{StatusPending, StatusSuccess, StatusFailed, StatusVerified, StatusRestoring, StatusRestored}

// ParseStatus accepts any letter case
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown backup status %q", s)
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusSuccess, StatusFailed},
	StatusSuccess:   {StatusVerified, StatusRestoring},
	StatusVerified:  {StatusVerified, StatusRestoring},
	StatusRestoring: {StatusRestored, StatusFailed},
	StatusRestored:  {StatusVerified, StatusRestoring},
	StatusFailed:    {},
}

// CanTransitionTo reports whether a record may move from s to next
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsSuccessful reports whether the dump behind a record is complete and usable
func (s Status) IsSuccessful() bool {
	return s == StatusSuccess || s == StatusVerified || s == StatusRestored
}

// IsTerminal reports whether no automatic transition follows s
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusVerified || s == StatusRestored
}

// CompressionType tags how an off-site replica is compressed
type CompressionType string

const (
	CompressionTypeNone CompressionType = "NONE"
	CompressionTypeGzip CompressionType = "GZIP"
	CompressionTypeLZ4  CompressionType = "LZ4"
	CompressionTypeZstd CompressionType = "ZSTD"
)

// ParseCompressionType accepts any letter case, empty means none
func ParseCompressionType(s string) (CompressionType, error) {
	switch CompressionType(strings.ToUpper(strings.TrimSpace(s))) {
	case "", CompressionTypeNone:
		return CompressionTypeNone, nil
	case CompressionTypeGzip:
		return CompressionTypeGzip, nil
	case CompressionTypeLZ4:
		return CompressionTypeLZ4, nil
	case CompressionTypeZstd:
		return CompressionTypeZstd, nil
	default:
		return "", fmt.Errorf("unknown compression type %q", s)
	}
}

// Extension returns the file suffix used for replicas
func (c CompressionType) Extension() string {
	switch c {
	case CompressionTypeGzip:
		return ".gz"
	case CompressionTypeLZ4:
		return ".lz4"
	case CompressionTypeZstd:
		return ".zst"
	default:
		return ""
	}
}

// StorageProviderType identifies where an artifact store keeps objects
type StorageProviderType string

const (
	StorageProviderLocal StorageProviderType = "LOCAL"
	StorageProviderS3    StorageProviderType = "S3"
	StorageProviderAzure StorageProviderType = "AZURE"
	StorageProviderGCS   StorageProviderType = "GCS"
)

// CreateRequest carries the inputs of a backup run
type CreateRequest struct {
	TenantID          string
	Type              BackupType
	PrimaryLocation   string
	SecondaryLocation string
	ExpiresAt         *time.Time
}

// CreateResult is returned by a successful backup run
type CreateResult struct {
	Backup *BackupMetadata `json:"backup"`
	Stats  Stats           `json:"stats"`
	Dump   *DumpResult     `json:"dump"`
}

// StatusUpdate is a metadata-only mutation; nil fields are left untouched
type StatusUpdate struct {
	Status          Status
	SizeBytes       *int64
	DurationSeconds *int64
	Checksum        *string
	FileCount       *int
	TableCount      *int
	ErrorMessage    *string
}

// TenantStats summarizes every backup of a tenant
type TenantStats struct {
	TenantID     string             `json:"tenant_id"`
	Total        int                `json:"total"`
	ByStatus     map[Status]int     `json:"by_status"`
	ByType       map[BackupType]int `json:"by_type"`
	SuccessCount int                `json:"success_count"`
	FailedCount  int                `json:"failed_count"`
	TotalBytes   int64              `json:"total_bytes"`
	TotalSizeGB  float64            `json:"total_size_gb"`
	LastSuccess  *time.Time         `json:"last_success,omitempty"`
}
