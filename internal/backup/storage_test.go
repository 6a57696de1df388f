package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hospital-backup/internal/errors"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw     string
		want    Location
		wantErr bool
	}{
		{raw: "s3://hospital-dr/nightly/", want: Location{Provider: StorageProviderS3, Bucket: "hospital-dr", Prefix: "nightly"}},
		{raw: "gs://hospital-dr", want: Location{Provider: StorageProviderGCS, Bucket: "hospital-dr"}},
		{raw: "gcs://hospital-dr/a/b", want: Location{Provider: StorageProviderGCS, Bucket: "hospital-dr", Prefix: "a/b"}},
		{raw: "azure://backups/chu", want: Location{Provider: StorageProviderAzure, Bucket: "backups", Prefix: "chu"}},
		{raw: "AZ://backups", want: Location{Provider: StorageProviderAzure, Bucket: "backups"}},
		{raw: "file:///mnt/offsite", want: Location{Provider: StorageProviderLocal, Prefix: "/mnt/offsite"}},
		{raw: " /mnt/offsite ", want: Location{Provider: StorageProviderLocal, Prefix: "/mnt/offsite"}},
		{raw: "", wantErr: true},
		{raw: "s3:///nightly", wantErr: true},
		{raw: "file://", wantErr: true},
		{raw: "ftp://host/dir", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLocation(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocation_ObjectKey(t *testing.T) {
	assert.Equal(t, "nightly/b.sql", Location{Provider: StorageProviderS3, Bucket: "x", Prefix: "nightly"}.ObjectKey("b.sql"))
	assert.Equal(t, "b.sql", Location{Provider: StorageProviderS3, Bucket: "x"}.ObjectKey("b.sql"))
	assert.Equal(t, "b.sql", Location{Provider: StorageProviderLocal, Prefix: "/mnt"}.ObjectKey("b.sql"))
}

func TestOffsiteConfig_Validate(t *testing.T) {
	ok := OffsiteConfig{Compression: "zstd", BandwidthLimit: "10MB"}
	assert.NoError(t, ok.Validate())

	bad := OffsiteConfig{Compression: "rar", BandwidthLimit: "fast"}
	err := bad.Validate()
	require.Error(t, err)
	errs, isList := err.(apperrors.ValidationErrors)
	require.True(t, isList)
	assert.Len(t, errs, 2)
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	base := filepath.Join(t.TempDir(), "offsite")
	store, err := NewLocalStore(base)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "chu-nord/a.sql.gz", strings.NewReader("alpha"), nil))
	require.NoError(t, store.Put(ctx, "chu-sud/b.sql", strings.NewReader("bravo!"), nil))

	exists, err := store.Exists(ctx, "chu-nord/a.sql.gz")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(ctx, "chu-nord/missing")
	require.NoError(t, err)
	assert.False(t, exists)

	body, err := store.Get(ctx, "chu-sud/b.sql")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "bravo!", string(data))

	_, err = store.Get(ctx, "nope")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	// leftover temp files are not objects
	require.NoError(t, os.WriteFile(filepath.Join(base, ".partial.tmp"), []byte("x"), 0o600))

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	nord, err := store.List(ctx, "chu-nord/")
	require.NoError(t, err)
	require.Len(t, nord, 1)
	assert.Equal(t, "chu-nord/a.sql.gz", nord[0].Key)
	assert.Equal(t, int64(5), nord[0].Size)

	assert.Equal(t, filepath.Join(base, "chu-sud", "b.sql"), store.Location("chu-sud/b.sql"))
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = store.Put(context.Background(), "../outside", strings.NewReader("x"), nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = NewLocalStore("  ")
	assert.Error(t, err)
}

func TestStorageProviderFactory(t *testing.T) {
	spf := NewStorageProviderFactory(OffsiteConfig{})
	assert.Len(t, spf.GetSupportedProviders(), 4)

	store, err := spf.Open(context.Background(), Location{Provider: StorageProviderLocal, Prefix: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)

	_, err = spf.Open(context.Background(), Location{Provider: "FTP"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}
