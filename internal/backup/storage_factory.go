package backup

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	apperrors "hospital-backup/internal/errors"
)

// ObjectInfo describes a stored replica
type ObjectInfo struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ArtifactStore keeps replica objects under a bucket or directory
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, meta map[string]string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Location returns the addressable form of key, e.g. s3://bucket/key
	Location(key string) string
}

// S3Config holds credentials for Amazon S3 and compatible endpoints
type S3Config struct {
	Region         string `mapstructure:"region" yaml:"region"`
	AccessKey      string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey      string `mapstructure:"secret_key" yaml:"secret_key"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
}

// AzureConfig holds credentials for Azure Blob Storage
type AzureConfig struct {
	AccountName string `mapstructure:"account_name" yaml:"account_name"`
	AccountKey  string `mapstructure:"account_key" yaml:"account_key"`
}

// GCSConfig holds credentials for Google Cloud Storage
type GCSConfig struct {
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path"`
}

// OffsiteConfig controls how replicas are packed and where credentials come from
type OffsiteConfig struct {
	Compression      string      `mapstructure:"compression" yaml:"compression"`
	CompressionLevel int         `mapstructure:"compression_level" yaml:"compression_level"`
	EncryptionKeyRef string      `mapstructure:"encryption_key_ref" yaml:"encryption_key_ref"`
	BandwidthLimit   string      `mapstructure:"bandwidth_limit" yaml:"bandwidth_limit"`
	S3               S3Config    `mapstructure:"s3" yaml:"s3"`
	Azure            AzureConfig `mapstructure:"azure" yaml:"azure"`
	GCS              GCSConfig   `mapstructure:"gcs" yaml:"gcs"`
}

// Validate checks the replica packing settings
func (oc *OffsiteConfig) Validate() error {
	var errs apperrors.ValidationErrors

	if _, err := ParseCompressionType(oc.Compression); err != nil {
		errs.Add("offsite.compression", err.Error(), oc.Compression)
	}
	if oc.BandwidthLimit != "" {
		if _, err := parseBandwidth(oc.BandwidthLimit); err != nil {
			errs.Add("offsite.bandwidth_limit", err.Error(), oc.BandwidthLimit)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Location is a parsed secondary location
type Location struct {
	Provider StorageProviderType
	// Bucket is the bucket or container; empty for local paths
	Bucket string
	// Prefix is the key prefix, or the directory for local paths
	Prefix string
}

// ParseLocation understands s3://bucket/prefix, gs://bucket/prefix, azure://container/prefix
// and plain filesystem paths.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, apperrors.NewValidationError("secondary location is empty", nil)
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Location{Provider: StorageProviderLocal, Prefix: raw}, nil
	}

	if strings.EqualFold(scheme, "file") {
		if strings.Trim(rest, "/") == "" {
			return Location{}, apperrors.NewValidationError(fmt.Sprintf("location %q has no path", raw), nil)
		}
		return Location{Provider: StorageProviderLocal, Prefix: "/" + strings.TrimPrefix(rest, "/")}, nil
	}

	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, apperrors.NewValidationError(fmt.Sprintf("location %q has no bucket", raw), nil)
	}
	prefix = strings.Trim(prefix, "/")

	switch strings.ToLower(scheme) {
	case "s3":
		return Location{Provider: StorageProviderS3, Bucket: bucket, Prefix: prefix}, nil
	case "gs", "gcs":
		return Location{Provider: StorageProviderGCS, Bucket: bucket, Prefix: prefix}, nil
	case "azure", "az":
		return Location{Provider: StorageProviderAzure, Bucket: bucket, Prefix: prefix}, nil
	default:
		return Location{}, apperrors.NewValidationError(fmt.Sprintf("unsupported location scheme %q", scheme), nil)
	}
}

// ObjectKey joins the location prefix with a name
func (l Location) ObjectKey(name string) string {
	if l.Provider == StorageProviderLocal || l.Prefix == "" {
		return name
	}
	return path.Join(l.Prefix, name)
}

// StoreFactory opens artifact stores for parsed locations
type StoreFactory interface {
	Open(ctx context.Context, loc Location) (ArtifactStore, error)
}

// StorageProviderFactory creates stores from the off-site credentials
type StorageProviderFactory struct {
	config OffsiteConfig
}

// NewStorageProviderFactory creates a new storage provider factory
func NewStorageProviderFactory(config OffsiteConfig) *StorageProviderFactory {
	return &StorageProviderFactory{config: config}
}

// Open implements StoreFactory
func (spf *StorageProviderFactory) Open(ctx context.Context, loc Location) (ArtifactStore, error) {
	switch loc.Provider {
	case StorageProviderLocal:
		return NewLocalStore(loc.Prefix)
	case StorageProviderS3:
		return NewS3Store(spf.config.S3, loc.Bucket)
	case StorageProviderAzure:
		return NewAzureStore(spf.config.Azure, loc.Bucket)
	case StorageProviderGCS:
		return NewGCSStore(ctx, spf.config.GCS, loc.Bucket)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported storage provider: %s", loc.Provider), nil)
	}
}

// GetSupportedProviders returns a list of supported storage provider types
func (spf *StorageProviderFactory) GetSupportedProviders() []StorageProviderType {
	return []StorageProviderType{
		StorageProviderLocal,
		StorageProviderS3,
		StorageProviderAzure,
		StorageProviderGCS,
	}
}
