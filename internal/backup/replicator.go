package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/ratelimit"
	"github.com/machinebox/progress"

	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/logging"
)

const encryptedExtension = ".enc"

// ReplicaResult describes one off-site copy
type ReplicaResult struct {
	Location    string            `json:"location"`
	Key         string            `json:"key"`
	SizeBytes   int64             `json:"size_bytes"`
	Compression *CompressionStats `json:"compression,omitempty"`
	Encryption  *EncryptionStats  `json:"encryption,omitempty"`
	Duration    time.Duration     `json:"duration"`
}

// Replicator copies dump files to a secondary location and fetches them back
type Replicator struct {
	stores      StoreFactory
	compression *CompressionManager
	encryption  *EncryptionManager
	config      OffsiteConfig
	logger      *logging.Logger
	interval    time.Duration
}

// NewReplicator creates a replicator. encryption may be nil when no key reference is configured.
func NewReplicator(stores StoreFactory, encryption *EncryptionManager, config OffsiteConfig, logger *logging.Logger) *Replicator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Replicator{
		stores:      stores,
		compression: NewCompressionManager(),
		encryption:  encryption,
		config:      config,
		logger:      logger,
		interval:    5 * time.Second,
	}
}

// ReplicaKey returns the object name a backup is stored under
func ReplicaKey(backup *BackupMetadata) string {
	name := backup.BackupID + ".sql" + backup.Compression.Extension()
	if backup.EncryptionKeyRef != "" {
		name += encryptedExtension
	}
	return name
}

// Replicate packs the dump at localPath and uploads it to backup.SecondaryLocation.
// On success the packing settings are recorded on backup so Fetch can reverse them.
func (r *Replicator) Replicate(ctx context.Context, backup *BackupMetadata, localPath string) (*ReplicaResult, error) {
	start := time.Now()

	loc, err := ParseLocation(backup.SecondaryLocation)
	if err != nil {
		return nil, err
	}
	algorithm, err := ParseCompressionType(r.config.Compression)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid replica compression", err)
	}
	keyRef := r.config.EncryptionKeyRef
	if keyRef != "" && r.encryption == nil {
		return nil, apperrors.NewEncryptionError("encryption key configured without an encryption manager", nil)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return nil, apperrors.NewMissingArtifactError(fmt.Sprintf("dump file %s cannot be opened", localPath), err)
	}
	defer src.Close()

	result := &ReplicaResult{}

	var packed bytes.Buffer
	if algorithm == CompressionTypeNone {
		if _, err := io.Copy(&packed, src); err != nil {
			return nil, apperrors.NewStorageError("failed to read dump file", err)
		}
	} else {
		stats, err := r.compression.CompressStream(&packed, src, algorithm, r.config.CompressionLevel)
		if err != nil {
			return nil, err
		}
		result.Compression = stats
	}

	payload := packed.Bytes()
	if keyRef != "" {
		sealed, stats, err := r.encryption.Encrypt(ctx, payload, keyRef)
		if err != nil {
			return nil, err
		}
		payload = sealed
		result.Encryption = stats
	}

	store, err := r.stores.Open(ctx, loc)
	if err != nil {
		return nil, err
	}

	packedView := *backup
	packedView.Compression = algorithm
	packedView.EncryptionKeyRef = keyRef
	key := loc.ObjectKey(ReplicaKey(&packedView))

	reader, err := r.limit(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	reader = r.track(ctx, reader, "upload "+backup.BackupID, int64(len(payload)))

	meta := map[string]string{
		"backup-id": backup.BackupID,
		"tenant-id": backup.TenantID,
		"checksum":  backup.FileChecksum,
	}
	if err := store.Put(ctx, key, reader, meta); err != nil {
		return nil, err
	}

	backup.Compression = algorithm
	backup.EncryptionKeyRef = keyRef

	result.Key = key
	result.Location = store.Location(key)
	result.SizeBytes = int64(len(payload))
	result.Duration = time.Since(start)

	r.logger.WithFields(map[string]interface{}{
		"backup_id": backup.BackupID,
		"location":  result.Location,
		"size":      humanize.Bytes(uint64(result.SizeBytes)),
		"duration":  result.Duration.String(),
	}).Info("Replica uploaded")

	return result, nil
}

// Fetch downloads the replica of backup and writes the unpacked dump to dst
func (r *Replicator) Fetch(ctx context.Context, backup *BackupMetadata, dst string) (int64, error) {
	if backup.SecondaryLocation == "" {
		return 0, apperrors.NewMissingArtifactError(
			fmt.Sprintf("backup %s has no secondary copy", backup.BackupID), nil)
	}
	loc, err := ParseLocation(backup.SecondaryLocation)
	if err != nil {
		return 0, err
	}
	store, err := r.stores.Open(ctx, loc)
	if err != nil {
		return 0, err
	}

	key := loc.ObjectKey(ReplicaKey(backup))
	body, err := store.Get(ctx, key)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return 0, apperrors.NewMissingArtifactError(fmt.Sprintf("replica %s not found", store.Location(key)), err)
		}
		return 0, err
	}
	defer body.Close()

	limited, err := r.limit(body)
	if err != nil {
		return 0, err
	}

	payload, err := io.ReadAll(r.track(ctx, limited, "download "+backup.BackupID, -1))
	if err != nil {
		return 0, apperrors.NewStorageError(fmt.Sprintf("failed to download %s", store.Location(key)), err)
	}

	if backup.EncryptionKeyRef != "" {
		if r.encryption == nil {
			return 0, apperrors.NewEncryptionError("replica is encrypted but no encryption manager is configured", nil)
		}
		payload, err = r.encryption.Decrypt(ctx, payload, backup.EncryptionKeyRef)
		if err != nil {
			return 0, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return 0, apperrors.NewFailedWriteError("failed to create restore directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, apperrors.NewFailedWriteError("failed to create temporary dump file", err)
	}
	defer os.Remove(tmp.Name())

	var written int64
	if backup.Compression == CompressionTypeNone || backup.Compression == "" {
		written, err = io.Copy(tmp, bytes.NewReader(payload))
	} else {
		written, err = r.compression.DecompressStream(tmp, bytes.NewReader(payload), backup.Compression)
	}
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, apperrors.NewFailedWriteError("failed to close dump file", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, apperrors.NewFailedWriteError("failed to move dump file into place", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"backup_id": backup.BackupID,
		"location":  store.Location(key),
		"path":      dst,
		"size":      humanize.Bytes(uint64(written)),
	}).Info("Replica fetched")

	return written, nil
}

// ListReplicas lists the objects stored under a secondary location
func (r *Replicator) ListReplicas(ctx context.Context, secondaryLocation string) ([]ObjectInfo, error) {
	loc, err := ParseLocation(secondaryLocation)
	if err != nil {
		return nil, err
	}
	store, err := r.stores.Open(ctx, loc)
	if err != nil {
		return nil, err
	}
	prefix := ""
	if loc.Provider != StorageProviderLocal && loc.Prefix != "" {
		prefix = loc.Prefix + "/"
	}
	return store.List(ctx, prefix)
}

func (r *Replicator) limit(src io.Reader) (io.Reader, error) {
	if r.config.BandwidthLimit == "" {
		return src, nil
	}
	rate, err := parseBandwidth(r.config.BandwidthLimit)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid bandwidth limit", err)
	}
	bucket := ratelimit.NewBucketWithRate(float64(rate), int64(rate))
	return ratelimit.Reader(src, bucket), nil
}

func (r *Replicator) track(ctx context.Context, src io.Reader, label string, size int64) io.Reader {
	if !r.logger.IsLevelEnabled(logging.LogLevelVerbose) {
		return src
	}

	pr := progress.NewReader(src)
	go func() {
		for p := range progress.NewTicker(ctx, pr, size, r.interval) {
			if size > 0 {
				r.logger.Debugf("(%s) %s/%s, %.2f pct, %v remaining",
					label,
					humanize.Bytes(uint64(p.N())),
					humanize.Bytes(uint64(p.Size())),
					p.Percent(),
					p.Remaining().Round(time.Second))
			} else {
				r.logger.Debugf("(%s) %s transferred", label, humanize.Bytes(uint64(p.N())))
			}
		}
	}()
	return pr
}

// parseBandwidth reads limits such as "10MB" or "512 KiB" as bytes per second
func parseBandwidth(s string) (uint64, error) {
	rate, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parse bandwidth limit %q: %w", s, err)
	}
	if rate == 0 {
		return 0, fmt.Errorf("bandwidth limit %q must be greater than zero", s)
	}
	return rate, nil
}
