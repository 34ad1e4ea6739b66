package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sync-engine/internal/apperrors"
	"sync-engine/internal/models"
)

func TestCredentialCodecRoundTrip(t *testing.T) {
	codec, err := NewCredentialCodec("unit-test-secret")
	require.NoError(t, err)

	creds := map[string]string{
		"accessToken": "shpat_abc123",
		"shop":        "demo.myshopify.com",
	}
	blob, err := codec.Encrypt(creds)
	require.NoError(t, err)
	assert.NotContains(t, blob, "shpat_abc123")

	got, err := codec.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, creds, got)
}

func TestCredentialCodecNoncesDiffer(t *testing.T) {
	codec, err := NewCredentialCodec("unit-test-secret")
	require.NoError(t, err)

	a, err := codec.Encrypt(map[string]string{"k": "v"})
	require.NoError(t, err)
	b, err := codec.Encrypt(map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCredentialCodecRejectsTamperedBlob(t *testing.T) {
	codec, err := NewCredentialCodec("unit-test-secret")
	require.NoError(t, err)

	blob, err := codec.Encrypt(map[string]string{"k": "v"})
	require.NoError(t, err)

	tampered := "A" + blob[1:]
	_, err = codec.Decrypt(tampered)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAuth))
}

func TestCredentialCodecRejectsForeignKey(t *testing.T) {
	codec1, err := NewCredentialCodec("secret-one")
	require.NoError(t, err)
	codec2, err := NewCredentialCodec("secret-two")
	require.NoError(t, err)

	blob, err := codec1.Encrypt(map[string]string{"k": "v"})
	require.NoError(t, err)

	_, err = codec2.Decrypt(blob)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAuth))
}

func TestDecryptConnectionWithoutCredentials(t *testing.T) {
	codec, err := NewCredentialCodec("unit-test-secret")
	require.NoError(t, err)

	_, err = codec.DecryptConnection(&models.PlatformConnection{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAuth))
}

func TestNewCredentialCodecRejectsEmptySecret(t *testing.T) {
	_, err := NewCredentialCodec("")
	require.Error(t, err)
}
