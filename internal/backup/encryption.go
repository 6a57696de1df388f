package backup

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"time"

	"golang.org/x/crypto/pbkdf2"

	apperrors "hospital-backup/internal/errors"
)

const (
	// envelope header bytes
	envelopeRawKey     byte = 0x01
	envelopePassphrase byte = 0x02

	saltSize         = 16
	pbkdf2Iterations = 100000
)

// EncryptionStats contains statistics about encryption operations
type EncryptionStats struct {
	OriginalSize  int64         `json:"original_size"`
	EncryptedSize int64         `json:"encrypted_size"`
	Algorithm     string        `json:"algorithm"`
	KeyDerivation string        `json:"key_derivation"`
	Duration      time.Duration `json:"duration"`
}

// EncryptionManager seals replicas with AES-256-GCM using keys named by opaque references
type EncryptionManager struct {
	keys KeyResolver
}

// NewEncryptionManager creates a new encryption manager
func NewEncryptionManager(keys KeyResolver) *EncryptionManager {
	return &EncryptionManager{keys: keys}
}

// Encrypt seals data. The output is header byte, optional salt, nonce, then ciphertext.
func (em *EncryptionManager) Encrypt(ctx context.Context, data []byte, keyRef string) ([]byte, *EncryptionStats, error) {
	start := time.Now()

	material, err := em.keys.Resolve(ctx, keyRef)
	if err != nil {
		return nil, nil, err
	}

	header := []byte{envelopeRawKey}
	key := material.Key
	derivation := "raw"
	if material.Passphrase != "" {
		salt := make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, nil, apperrors.NewEncryptionError("failed to generate salt", err)
		}
		key = deriveKey(material.Passphrase, salt)
		header = append([]byte{envelopePassphrase}, salt...)
		derivation = "pbkdf2-sha256"
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, apperrors.NewEncryptionError("failed to generate nonce", err)
	}

	out := make([]byte, 0, len(header)+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, data, header)

	return out, &EncryptionStats{
		OriginalSize:  int64(len(data)),
		EncryptedSize: int64(len(out)),
		Algorithm:     "AES-256-GCM",
		KeyDerivation: derivation,
		Duration:      time.Since(start),
	}, nil
}

// Decrypt opens data produced by Encrypt
func (em *EncryptionManager) Decrypt(ctx context.Context, data []byte, keyRef string) ([]byte, error) {
	if len(data) < 1 {
		return nil, apperrors.NewEncryptionError("encrypted data too short", nil)
	}

	material, err := em.keys.Resolve(ctx, keyRef)
	if err != nil {
		return nil, err
	}

	var key, header []byte
	switch data[0] {
	case envelopeRawKey:
		if len(material.Key) == 0 {
			return nil, apperrors.NewEncryptionError("replica was sealed with a raw key but the reference resolves to a passphrase", nil)
		}
		key, header = material.Key, data[:1]
	case envelopePassphrase:
		if material.Passphrase == "" {
			return nil, apperrors.NewEncryptionError("replica was sealed with a passphrase but the reference resolves to a raw key", nil)
		}
		if len(data) < 1+saltSize {
			return nil, apperrors.NewEncryptionError("encrypted data too short", nil)
		}
		header = data[:1+saltSize]
		key = deriveKey(material.Passphrase, header[1:])
	default:
		return nil, apperrors.NewEncryptionError("unknown encryption envelope", nil)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	body := data[len(header):]
	if len(body) < gcm.NonceSize() {
		return nil, apperrors.NewEncryptionError("encrypted data too short", nil)
	}
	nonce, ciphertext := body[:gcm.NonceSize()], body[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, header)
	if err != nil {
		return nil, apperrors.NewEncryptionError("failed to decrypt data", err)
	}
	return plaintext, nil
}

// GenerateKey generates a new 256-bit encryption key
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, apperrors.NewEncryptionError("failed to generate encryption key", err)
	}
	return key, nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, apperrors.NewEncryptionError("key must be 32 bytes for AES-256", nil)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.NewEncryptionError("failed to create AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.NewEncryptionError("failed to create GCM cipher", err)
	}
	return gcm, nil
}
