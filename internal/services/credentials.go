package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"sync-engine/internal/apperrors"
	"sync-engine/internal/models"
)

// CredentialCodec encrypts connection credential maps with AES-GCM. The
// key is derived from the configured secret with SHA-256, so any secret
// length works.
type CredentialCodec struct {
	key []byte
}

// NewCredentialCodec derives the AES key from the encryption secret.
func NewCredentialCodec(secret string) (*CredentialCodec, error) {
	if secret == "" {
		return nil, apperrors.New(apperrors.KindInternal, "encryption secret is empty")
	}
	sum := sha256.Sum256([]byte(secret))
	return &CredentialCodec{key: sum[:]}, nil
}

// Encrypt serializes and seals a credential map. Output is
// base64(nonce || ciphertext).
func (c *CredentialCodec) Encrypt(creds map[string]string) (string, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered or foreign blobs fail
// authentication and surface as auth errors.
func (c *CredentialCodec) Decrypt(blob string) (map[string]string, error) {
	sealed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuth, "credential blob is not base64", err)
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, apperrors.New(apperrors.KindAuth, "credential blob is truncated")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuth, "credential blob failed authentication", err)
	}
	var creds map[string]string
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuth, "credential blob is not a credential map", err)
	}
	return creds, nil
}

// DecryptConnection is the adapters.CredentialsFn bound to this codec.
func (c *CredentialCodec) DecryptConnection(conn *models.PlatformConnection) (map[string]string, error) {
	if conn.Credentials == "" {
		return nil, apperrors.New(apperrors.KindAuth, "connection has no stored credentials")
	}
	return c.Decrypt(conn.Credentials)
}
