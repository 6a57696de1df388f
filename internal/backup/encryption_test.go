package backup

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hospital-backup/internal/errors"
)

func TestEncryptionManager_RawKeyRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	t.Setenv("HOSPITAL_BACKUP_RAW_KEY", hex.EncodeToString(key))

	em := NewEncryptionManager(NewKeyResolver(nil))
	data := []byte("CREATE TABLE wards (id INTEGER);")

	sealed, stats, err := em.Encrypt(context.Background(), data, "env:HOSPITAL_BACKUP_RAW_KEY")
	require.NoError(t, err)
	assert.Equal(t, "AES-256-GCM", stats.Algorithm)
	assert.Equal(t, "raw", stats.KeyDerivation)
	assert.NotContains(t, string(sealed), "CREATE TABLE")

	opened, err := em.Decrypt(context.Background(), sealed, "env:HOSPITAL_BACKUP_RAW_KEY")
	require.NoError(t, err)
	assert.Equal(t, data, opened)
}

func TestEncryptionManager_PassphraseRoundTrip(t *testing.T) {
	t.Setenv("HOSPITAL_BACKUP_PASSPHRASE", "correct horse battery staple")

	em := NewEncryptionManager(NewKeyResolver(nil))
	data := []byte("INSERT INTO patients VALUES (1);")

	first, stats, err := em.Encrypt(context.Background(), data, "passphrase-env:HOSPITAL_BACKUP_PASSPHRASE")
	require.NoError(t, err)
	assert.Equal(t, "pbkdf2-sha256", stats.KeyDerivation)

	second, _, err := em.Encrypt(context.Background(), data, "passphrase-env:HOSPITAL_BACKUP_PASSPHRASE")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "salt and nonce are random per call")

	opened, err := em.Decrypt(context.Background(), second, "passphrase-env:HOSPITAL_BACKUP_PASSPHRASE")
	require.NoError(t, err)
	assert.Equal(t, data, opened)
}

func TestEncryptionManager_Tampering(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	t.Setenv("HOSPITAL_BACKUP_RAW_KEY", hex.EncodeToString(key))
	em := NewEncryptionManager(NewKeyResolver(nil))

	sealed, _, err := em.Encrypt(context.Background(), []byte("payload"), "env:HOSPITAL_BACKUP_RAW_KEY")
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = em.Decrypt(context.Background(), sealed, "env:HOSPITAL_BACKUP_RAW_KEY")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeEncryption))

	_, err = em.Decrypt(context.Background(), []byte{0x7f, 1, 2}, "env:HOSPITAL_BACKUP_RAW_KEY")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeEncryption))
}

func TestEncryptionManager_EnvelopeMismatch(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	t.Setenv("HOSPITAL_BACKUP_RAW_KEY", hex.EncodeToString(key))
	t.Setenv("HOSPITAL_BACKUP_PASSPHRASE", "secret")
	em := NewEncryptionManager(NewKeyResolver(nil))

	sealed, _, err := em.Encrypt(context.Background(), []byte("payload"), "env:HOSPITAL_BACKUP_RAW_KEY")
	require.NoError(t, err)

	_, err = em.Decrypt(context.Background(), sealed, "passphrase-env:HOSPITAL_BACKUP_PASSPHRASE")
	assert.Error(t, err)
}
