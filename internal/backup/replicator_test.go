package backup

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/logging"
)

func writeDump(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backup.sql")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReplicaKey(t *testing.T) {
	rec := &BackupMetadata{BackupID: "backup-20260118-020000-abcdef12"}
	assert.Equal(t, "backup-20260118-020000-abcdef12.sql", ReplicaKey(rec))

	rec.Compression = CompressionTypeGzip
	rec.EncryptionKeyRef = "env:KEY"
	assert.Equal(t, "backup-20260118-020000-abcdef12.sql.gz.enc", ReplicaKey(rec))
}

func TestReplicator_RoundTrip(t *testing.T) {
	key := make([]byte, 32)
	t.Setenv("HOSPITAL_BACKUP_REPLICA_KEY", hex.EncodeToString(key))

	content := strings.Repeat("INSERT INTO `wards` (`id`) VALUES (1);\n", 200)
	src := writeDump(t, content)
	offsite := t.TempDir()

	tests := []struct {
		name   string
		config OffsiteConfig
		suffix string
	}{
		{"plain", OffsiteConfig{}, ".sql"},
		{"gzip", OffsiteConfig{Compression: "gzip"}, ".sql.gz"},
		{"lz4 encrypted", OffsiteConfig{Compression: "lz4", EncryptionKeyRef: "env:HOSPITAL_BACKUP_REPLICA_KEY"}, ".sql.lz4.enc"},
		{"zstd throttled", OffsiteConfig{Compression: "zstd", BandwidthLimit: "10MB"}, ".sql.zst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReplicator(NewStorageProviderFactory(tt.config),
				NewEncryptionManager(NewKeyResolver(nil)), tt.config, logging.NewNopLogger())

			rec := &BackupMetadata{
				BackupID:          GenerateBackupID(testTime),
				TenantID:          "CHU-Nord",
				SecondaryLocation: offsite,
			}

			result, err := r.Replicate(context.Background(), rec, src)
			require.NoError(t, err)
			assert.Equal(t, rec.BackupID+tt.suffix, result.Key)
			assert.Equal(t, filepath.Join(offsite, result.Key), result.Location)
			assert.Equal(t, tt.config.EncryptionKeyRef, rec.EncryptionKeyRef)

			dst := filepath.Join(t.TempDir(), "restored.sql")
			n, err := r.Fetch(context.Background(), rec, dst)
			require.NoError(t, err)
			assert.Equal(t, int64(len(content)), n)

			data, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.Equal(t, content, string(data))
		})
	}

	r := NewReplicator(NewStorageProviderFactory(OffsiteConfig{}), nil, OffsiteConfig{}, nil)
	objects, err := r.ListReplicas(context.Background(), offsite)
	require.NoError(t, err)
	assert.Len(t, objects, len(tests))
}

func TestReplicator_Errors(t *testing.T) {
	src := writeDump(t, "CREATE TABLE x (id int);\n")
	factory := NewStorageProviderFactory(OffsiteConfig{})

	r := NewReplicator(factory, nil, OffsiteConfig{Compression: "rar"}, nil)
	_, err := r.Replicate(context.Background(), &BackupMetadata{BackupID: "b", SecondaryLocation: t.TempDir()}, src)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	r = NewReplicator(factory, nil, OffsiteConfig{}, nil)
	_, err = r.Replicate(context.Background(), &BackupMetadata{BackupID: "b", SecondaryLocation: t.TempDir()}, filepath.Join(t.TempDir(), "nope.sql"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeMissingArtifact))

	r = NewReplicator(factory, nil, OffsiteConfig{BandwidthLimit: "0"}, nil)
	_, err = r.Replicate(context.Background(), &BackupMetadata{BackupID: "b", SecondaryLocation: t.TempDir()}, src)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = r.Fetch(context.Background(), &BackupMetadata{BackupID: "b"}, filepath.Join(t.TempDir(), "x.sql"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeMissingArtifact))

	r = NewReplicator(factory, nil, OffsiteConfig{}, nil)
	_, err = r.Fetch(context.Background(), &BackupMetadata{BackupID: "absent", SecondaryLocation: t.TempDir()}, filepath.Join(t.TempDir(), "x.sql"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeMissingArtifact))
}

func TestParseBandwidth(t *testing.T) {
	rate, err := parseBandwidth("10MB")
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), rate)

	rate, err = parseBandwidth("512 KiB")
	require.NoError(t, err)
	assert.Equal(t, uint64(512*1024), rate)

	_, err = parseBandwidth("0")
	assert.Error(t, err)
	_, err = parseBandwidth("fast")
	assert.Error(t, err)
}
