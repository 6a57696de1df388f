package backup

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"

	apperrors "hospital-backup/internal/errors"
)

// KeyMaterial is either a raw 32-byte key or a passphrase to derive one from
type KeyMaterial struct {
	Key        []byte
	Passphrase string
}

// KeyResolver turns an opaque key reference into key material. References are stored on
// backup records; the key itself never is.
type KeyResolver interface {
	Resolve(ctx context.Context, ref string) (*KeyMaterial, error)
}

// SecretReader reads a secret at a vault path
type SecretReader interface {
	ReadSecret(ctx context.Context, path string) (map[string]interface{}, error)
}

// RefKeyResolver understands env:, file:, passphrase-env: and vault: references
type RefKeyResolver struct {
	vault SecretReader
}

// NewKeyResolver creates a resolver; vault may be nil when no vault is configured
func NewKeyResolver(vault SecretReader) *RefKeyResolver {
	return &RefKeyResolver{vault: vault}
}

// Resolve implements KeyResolver
func (r *RefKeyResolver) Resolve(ctx context.Context, ref string) (*KeyMaterial, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(ref), ":")
	if !ok || rest == "" {
		return nil, apperrors.NewEncryptionError(fmt.Sprintf("malformed key reference %q", ref), nil)
	}

	switch scheme {
	case "env":
		value := os.Getenv(rest)
		if value == "" {
			return nil, apperrors.NewEncryptionError(fmt.Sprintf("environment variable %s not set", rest), nil)
		}
		key, err := decodeKey(value)
		if err != nil {
			return nil, err
		}
		return &KeyMaterial{Key: key}, nil

	case "passphrase-env":
		value := os.Getenv(rest)
		if value == "" {
			return nil, apperrors.NewEncryptionError(fmt.Sprintf("environment variable %s not set", rest), nil)
		}
		return &KeyMaterial{Passphrase: value}, nil

	case "file":
		data, err := os.ReadFile(rest)
		if err != nil {
			return nil, apperrors.NewEncryptionError("failed to read key from file", err)
		}
		if len(data) == 32 {
			return &KeyMaterial{Key: data}, nil
		}
		key, err := decodeKey(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, err
		}
		return &KeyMaterial{Key: key}, nil

	case "vault":
		return r.resolveVault(ctx, rest)

	default:
		return nil, apperrors.NewEncryptionError(fmt.Sprintf("unsupported key reference scheme %q", scheme), nil)
	}
}

// resolveVault reads "path#field"; a field that decodes to 32 bytes is a key, anything else a passphrase
func (r *RefKeyResolver) resolveVault(ctx context.Context, ref string) (*KeyMaterial, error) {
	if r.vault == nil {
		return nil, apperrors.NewEncryptionError("vault key reference used but no vault is configured", nil)
	}

	path, field, _ := strings.Cut(ref, "#")
	if field == "" {
		field = "key"
	}

	data, err := r.vault.ReadSecret(ctx, path)
	if err != nil {
		return nil, apperrors.NewEncryptionError(fmt.Sprintf("failed to read vault secret %s", path), err)
	}

	value, ok := data[field].(string)
	if !ok || value == "" {
		return nil, apperrors.NewEncryptionError(fmt.Sprintf("vault secret %s has no field %q", path, field), nil)
	}

	if key, err := decodeKey(value); err == nil {
		return &KeyMaterial{Key: key}, nil
	}
	return &KeyMaterial{Passphrase: value}, nil
}

func decodeKey(value string) ([]byte, error) {
	if key, err := hex.DecodeString(value); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(value); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, apperrors.NewEncryptionError("key must be 32 bytes encoded as hex or base64", nil)
}

// VaultConfig holds connection settings for the vault secret reader
type VaultConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	Token   string `mapstructure:"token" yaml:"token"`
}

// VaultSecretReader reads KV secrets through the vault API client
type VaultSecretReader struct {
	api *vault.Client
}

// NewVaultSecretReader falls back to VAULT_ADDR and VAULT_TOKEN for empty settings
func NewVaultSecretReader(cfg VaultConfig) (*VaultSecretReader, error) {
	apiCfg := vault.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}

	client, err := vault.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault API client: %w", err)
	}

	token := cfg.Token
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	if token != "" {
		client.SetToken(token)
	}

	return &VaultSecretReader{api: client}, nil
}

// ReadSecret implements SecretReader. KV v2 responses are unwrapped from their "data" envelope.
func (v *VaultSecretReader) ReadSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	secret, err := v.api.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, err
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no data found at path: %s", path)
	}

	if inner, ok := secret.Data["data"].(map[string]interface{}); ok {
		return inner, nil
	}
	return secret.Data, nil
}
