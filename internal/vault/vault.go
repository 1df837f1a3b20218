package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/faxretriever/broker/internal/apperrors"
	"github.com/faxretriever/broker/internal/models"
)

const (
	saltLen       = 16
	nonceLen      = 12
	keyLen        = 32
	kdfIterations = 100_000
)

// Recorder is the audit hook the vault reports credential access through.
// Recording must never block or fail the caller.
type Recorder interface {
	RecordAccess(ctx context.Context, eventType string, tenantID string, note string)
}

// Config for the vault. MasterKey is loaded once at process start and never
// mutated afterwards.
type Config struct {
	// Process-wide master secret, required
	MasterKey string
}

// Vault seals and opens tenant-scoped payloads with AES-256-GCM. Per-tenant
// keys are derived from the master secret and the tenant id, so a blob
// sealed for one tenant can never open under another tenant's key.
type Vault struct {
	masterKey []byte
	audit     Recorder
}

func New(cfg Config, audit Recorder) (*Vault, error) {
	if len(cfg.MasterKey) < 16 {
		return nil, errors.New("vault master key must be at least 16 bytes")
	}
	return &Vault{
		masterKey: []byte(cfg.MasterKey),
		audit:     audit,
	}, nil
}

// deriveKey binds the key to the tenant: PBKDF2-HMAC-SHA256 over the master
// secret concatenated with the tenant id.
func (v *Vault) deriveKey(tenantID string, salt []byte) []byte {
	secret := make([]byte, 0, len(v.masterKey)+len(tenantID))
	secret = append(secret, v.masterKey...)
	secret = append(secret, tenantID...)
	return pbkdf2.Key(secret, salt, kdfIterations, keyLen, sha256.New)
}

// Encrypt seals plaintext for the given tenant with a fresh salt and nonce.
func (v *Vault) Encrypt(tenantID string, plaintext []byte) (models.SealedBlob, error) {
	var blob models.SealedBlob

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return blob, fmt.Errorf("error while generating salt: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return blob, fmt.Errorf("error while generating nonce: %w", err)
	}

	aead, err := v.aead(tenantID, salt)
	if err != nil {
		return blob, err
	}

	return models.SealedBlob{
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
		Nonce:      nonce,
		Salt:       salt,
	}, nil
}

// Decrypt opens a blob sealed for the given tenant. Tampered ciphertext or a
// tenant mismatch fails with apperrors.ErrIntegrity. Every call is recorded
// in the audit trail; the returned plaintext itself is never logged.
func (v *Vault) Decrypt(ctx context.Context, tenantID string, blob models.SealedBlob) ([]byte, error) {
	if len(blob.Ciphertext) == 0 || len(blob.Nonce) != nonceLen || len(blob.Salt) != saltLen {
		v.recordAccess(ctx, "vault_integrity_failure", tenantID, "sealed blob is malformed")
		return nil, fmt.Errorf("malformed sealed blob: %w", apperrors.ErrIntegrity)
	}

	aead, err := v.aead(tenantID, blob.Salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, blob.Nonce, blob.Ciphertext, nil)
	if err != nil {
		v.recordAccess(ctx, "vault_integrity_failure", tenantID, "ciphertext failed authentication")
		return nil, fmt.Errorf("open sealed blob: %w", apperrors.ErrIntegrity)
	}

	v.recordAccess(ctx, "vault_decrypt", tenantID, "sealed blob opened")
	return plaintext, nil
}

// EncryptCredentials seals a provider credential payload for the tenant.
func (v *Vault) EncryptCredentials(tenantID string, creds models.ProviderCredentials) (models.SealedBlob, error) {
	payload, err := json.Marshal(creds)
	if err != nil {
		return models.SealedBlob{}, fmt.Errorf("error while marshaling credentials: %w", err)
	}
	return v.Encrypt(tenantID, payload)
}

// DecryptCredentials opens and decodes a provider credential payload.
func (v *Vault) DecryptCredentials(ctx context.Context, tenantID string, blob models.SealedBlob) (models.ProviderCredentials, error) {
	var creds models.ProviderCredentials

	payload, err := v.Decrypt(ctx, tenantID, blob)
	if err != nil {
		return creds, err
	}

	if err := json.Unmarshal(payload, &creds); err != nil {
		return creds, fmt.Errorf("decode credential payload: %w", apperrors.ErrIntegrity)
	}
	return creds, nil
}

func (v *Vault) aead(tenantID string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.deriveKey(tenantID, salt))
	if err != nil {
		return nil, fmt.Errorf("error while initializing cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func (v *Vault) recordAccess(ctx context.Context, eventType, tenantID, note string) {
	if v.audit != nil {
		v.audit.RecordAccess(ctx, eventType, tenantID, note)
	}
}
