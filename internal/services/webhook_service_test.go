package services

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sync-engine/internal/adapters"
	"sync-engine/internal/apperrors"
	"sync-engine/internal/models"
)

// fakeWebhookAdapter accepts or rejects signatures per test and records
// every ProcessWebhook call on a channel so tests can wait for the
// background task.
type fakeWebhookAdapter struct {
	*adapters.Placeholder
	verifyErr error
	processed chan processedCall
}

type processedCall struct {
	ConnectionID uuid.UUID
	WebhookID    string
}

func newFakeWebhookAdapter(kind models.PlatformKind, verifyErr error) *fakeWebhookAdapter {
	return &fakeWebhookAdapter{
		Placeholder: adapters.NewPlaceholder(kind),
		verifyErr:   verifyErr,
		processed:   make(chan processedCall, 8),
	}
}

func (a *fakeWebhookAdapter) VerifyWebhookSignature(payload []byte, headers http.Header, secret string) error {
	return a.verifyErr
}

func (a *fakeWebhookAdapter) ProcessWebhook(ctx context.Context, conn *models.PlatformConnection, payload []byte, headers http.Header, webhookID string) error {
	a.processed <- processedCall{ConnectionID: conn.ID, WebhookID: webhookID}
	return nil
}

func (a *fakeWebhookAdapter) waitForCall(t *testing.T) processedCall {
	t.Helper()
	select {
	case call := <-a.processed:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was never processed")
		return processedCall{}
	}
}

func webhookFixture(adapter adapters.Adapter) (*WebhookService, *MockConnectionStore, *RecordingActivityStore) {
	registry := adapters.NewRegistry()
	registry.Register(adapter)
	connections := new(MockConnectionStore)
	activity := new(RecordingActivityStore)
	svc := NewWebhookService(connections, activity, registry, NewMemoryDeduper(), nil, zap.NewNop())
	return svc, connections, activity
}

func enabledConnection(kind models.PlatformKind) *models.PlatformConnection {
	return &models.PlatformConnection{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		PlatformKind: kind,
		Status:       models.ConnectionActive,
		IsEnabled:    true,
	}
}

func TestReceiveRejectsUnsupportedPlatform(t *testing.T) {
	svc, _, _ := webhookFixture(newFakeWebhookAdapter(models.PlatformShopify, nil))

	result, err := svc.Receive("etsy", nil, []byte(`{}`), http.Header{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
	require.NotNil(t, result, "error responses still need the webhook id")
	assert.NotEmpty(t, result.WebhookID)
}

func TestReceiveRejectsEmptyBody(t *testing.T) {
	svc, _, _ := webhookFixture(newFakeWebhookAdapter(models.PlatformShopify, nil))

	_, err := svc.Receive("shopify", nil, nil, http.Header{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	verifyErr := apperrors.New(apperrors.KindAuth, "invalid signature")
	adapter := newFakeWebhookAdapter(models.PlatformShopify, verifyErr)
	svc, _, _ := webhookFixture(adapter)

	result, err := svc.Receive("shopify", nil, []byte(`{}`), http.Header{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAuth))
	assert.NotEmpty(t, result.WebhookID)

	select {
	case <-adapter.processed:
		t.Fatal("rejected webhook must not be processed")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReceiveResolvesConnectionByShopDomain(t *testing.T) {
	adapter := newFakeWebhookAdapter(models.PlatformShopify, nil)
	svc, connections, activity := webhookFixture(adapter)

	conn := enabledConnection(models.PlatformShopify)
	connections.On("FindByIdentifier", mock.Anything, models.PlatformShopify, models.MetaShop, "demo.myshopify.com").
		Return([]models.PlatformConnection{*conn}, nil)

	headers := http.Header{}
	headers.Set("X-Shopify-Shop-Domain", "demo.myshopify.com")

	result, err := svc.Receive("shopify", nil, []byte(`{"id":1}`), headers)
	require.NoError(t, err)

	call := adapter.waitForCall(t)
	assert.Equal(t, conn.ID, call.ConnectionID)
	assert.Equal(t, result.WebhookID, call.WebhookID)

	require.Eventually(t, func() bool {
		types := activity.EventTypes()
		return contains(types, models.EventWebhookReceived) && contains(types, models.EventWebhookProcessed)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReceivePrefersExplicitConnectionID(t *testing.T) {
	adapter := newFakeWebhookAdapter(models.PlatformShopify, nil)
	svc, connections, _ := webhookFixture(adapter)

	conn := enabledConnection(models.PlatformShopify)
	connections.On("GetByID", mock.Anything, conn.ID).Return(conn, nil)

	_, err := svc.Receive("shopify", &conn.ID, []byte(`{"id":1}`), http.Header{})
	require.NoError(t, err)

	call := adapter.waitForCall(t)
	assert.Equal(t, conn.ID, call.ConnectionID)
	connections.AssertNotCalled(t, "FindByIdentifier", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReceiveDropsMismatchedExplicitConnection(t *testing.T) {
	adapter := newFakeWebhookAdapter(models.PlatformShopify, nil)
	svc, connections, _ := webhookFixture(adapter)

	conn := enabledConnection(models.PlatformSquare) // wrong platform for the path
	connections.On("GetByID", mock.Anything, conn.ID).Return(conn, nil)

	_, err := svc.Receive("shopify", &conn.ID, []byte(`{"id":1}`), http.Header{})
	require.NoError(t, err)

	select {
	case <-adapter.processed:
		t.Fatal("mismatched connection must not be processed")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestReceiveSkipsDuplicateDeliveries(t *testing.T) {
	adapter := newFakeWebhookAdapter(models.PlatformShopify, nil)
	svc, connections, activity := webhookFixture(adapter)

	conn := enabledConnection(models.PlatformShopify)
	connections.On("FindByIdentifier", mock.Anything, models.PlatformShopify, models.MetaShop, "demo.myshopify.com").
		Return([]models.PlatformConnection{*conn}, nil)

	headers := http.Header{}
	headers.Set("X-Shopify-Shop-Domain", "demo.myshopify.com")
	headers.Set("X-Shopify-Webhook-Id", "delivery-42")

	_, err := svc.Receive("shopify", nil, []byte(`{"id":1}`), headers)
	require.NoError(t, err)
	adapter.waitForCall(t)

	_, err = svc.Receive("shopify", nil, []byte(`{"id":1}`), headers)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return contains(activity.EventTypes(), models.EventWebhookDuplicate)
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case <-adapter.processed:
		t.Fatal("duplicate delivery must not be processed again")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestReceiveResolvesSquareMerchantFromPayload(t *testing.T) {
	adapter := newFakeWebhookAdapter(models.PlatformSquare, nil)
	svc, connections, _ := webhookFixture(adapter)

	conn := enabledConnection(models.PlatformSquare)
	connections.On("FindByIdentifier", mock.Anything, models.PlatformSquare, models.MetaMerchantID, "M-123").
		Return([]models.PlatformConnection{*conn}, nil)

	_, err := svc.Receive("square", nil, []byte(`{"merchant_id":"M-123","event_id":"e-1"}`), http.Header{})
	require.NoError(t, err)

	call := adapter.waitForCall(t)
	assert.Equal(t, conn.ID, call.ConnectionID)
}

func TestNewWebhookIDFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{13}-[a-z0-9]{9}$`)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id := newWebhookID()
		assert.Regexp(t, pattern, id)
		assert.False(t, seen[id], "webhook ids must not repeat")
		seen[id] = true
	}
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
