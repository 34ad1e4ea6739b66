package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sync-engine/internal/adapters"
	"sync-engine/internal/apperrors"
	"sync-engine/internal/models"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignatureAcceptsValidHmac(t *testing.T) {
	a := NewAdapter(adapters.Base{})
	body := []byte(`{"id":123,"title":"Widget"}`)

	headers := http.Header{}
	headers.Set("X-Shopify-Hmac-Sha256", signBody("hush", body))

	require.NoError(t, a.VerifyWebhookSignature(body, headers, "hush"))
}

func TestVerifyWebhookSignatureRejectsWrongSecret(t *testing.T) {
	a := NewAdapter(adapters.Base{})
	body := []byte(`{"id":123}`)

	headers := http.Header{}
	headers.Set("X-Shopify-Hmac-Sha256", signBody("attacker", body))

	err := a.VerifyWebhookSignature(body, headers, "hush")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAuth))
}

func TestVerifyWebhookSignatureRejectsTamperedBody(t *testing.T) {
	a := NewAdapter(adapters.Base{})
	body := []byte(`{"id":123,"price":"10.00"}`)

	headers := http.Header{}
	headers.Set("X-Shopify-Hmac-Sha256", signBody("hush", body))

	tampered := []byte(`{"id":123,"price":"0.01"}`)
	err := a.VerifyWebhookSignature(tampered, headers, "hush")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAuth))
}

func TestVerifyWebhookSignatureRequiresHeader(t *testing.T) {
	a := NewAdapter(adapters.Base{})

	err := a.VerifyWebhookSignature([]byte(`{}`), http.Header{}, "hush")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAuth))
}

func TestVerifyWebhookSignatureRequiresConfiguredSecret(t *testing.T) {
	a := NewAdapter(adapters.Base{})
	body := []byte(`{}`)

	headers := http.Header{}
	headers.Set("X-Shopify-Hmac-Sha256", signBody("hush", body))

	err := a.VerifyWebhookSignature(body, headers, "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAuth))
}

func TestAdapterKind(t *testing.T) {
	a := NewAdapter(adapters.Base{})
	assert.Equal(t, models.PlatformShopify, a.Kind())
}
