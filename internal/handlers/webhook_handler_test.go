package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sync-engine/internal/adapters"
	"sync-engine/internal/apperrors"
	"sync-engine/internal/models"
	"sync-engine/internal/repository"
	"sync-engine/internal/services"
)

// stubAdapter accepts or rejects signatures per test; processing is a
// no-op so handler tests never touch canonical state.
type stubAdapter struct {
	*adapters.Placeholder
	verifyErr error
}

func (a *stubAdapter) VerifyWebhookSignature(payload []byte, headers http.Header, secret string) error {
	return a.verifyErr
}

func (a *stubAdapter) ProcessWebhook(ctx context.Context, conn *models.PlatformConnection, payload []byte, headers http.Header, webhookID string) error {
	return nil
}

// emptyConnectionStore resolves no connections, so background processing
// drops every event without side effects.
type emptyConnectionStore struct{}

var _ repository.ConnectionStore = (*emptyConnectionStore)(nil)

func (s *emptyConnectionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.PlatformConnection, error) {
	return nil, apperrors.Newf(apperrors.KindNotFound, "connection %s not found", id)
}

func (s *emptyConnectionStore) GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.PlatformConnection, error) {
	return nil, apperrors.Newf(apperrors.KindNotFound, "connection %s not found", id)
}

func (s *emptyConnectionStore) FindByIdentifier(ctx context.Context, kind models.PlatformKind, metaKey, identifier string) ([]models.PlatformConnection, error) {
	return nil, nil
}

func (s *emptyConnectionStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PlatformConnection, error) {
	return nil, nil
}

func (s *emptyConnectionStore) ListActive(ctx context.Context) ([]models.PlatformConnection, error) {
	return nil, nil
}

func (s *emptyConnectionStore) Upsert(ctx context.Context, conn *models.PlatformConnection) error {
	return nil
}

func (s *emptyConnectionStore) Save(ctx context.Context, conn *models.PlatformConnection) error {
	return nil
}

func (s *emptyConnectionStore) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.ConnectionStatus, to models.ConnectionStatus) error {
	return nil
}

func (s *emptyConnectionStore) MergeMetadata(ctx context.Context, id uuid.UUID, patch map[string]interface{}) error {
	return nil
}

func (s *emptyConnectionStore) SetSyncTimes(ctx context.Context, id uuid.UUID, attemptAt, successAt *time.Time) error {
	return nil
}

func (s *emptyConnectionStore) Disable(ctx context.Context, id uuid.UUID) error {
	return nil
}

// nopActivityStore discards audit entries.
type nopActivityStore struct{}

var _ repository.ActivityStore = (*nopActivityStore)(nil)

func (s *nopActivityStore) LogActivity(ctx context.Context, entry *models.ActivityLog) {}

func (s *nopActivityStore) List(ctx context.Context, userID uuid.UUID, connectionID *uuid.UUID, limit int) ([]models.ActivityLog, error) {
	return nil, nil
}

func webhookRouter(verifyErr error) *gin.Engine {
	gin.SetMode(gin.TestMode)

	registry := adapters.NewRegistry()
	registry.Register(&stubAdapter{
		Placeholder: adapters.NewPlaceholder(models.PlatformShopify),
		verifyErr:   verifyErr,
	})

	svc := services.NewWebhookService(
		&emptyConnectionStore{},
		&nopActivityStore{},
		registry,
		services.NewMemoryDeduper(),
		nil,
		zap.NewNop(),
	)
	handler := NewWebhookHandler(svc)

	router := gin.New()
	router.POST("/webhook/:platform", handler.Receive)
	router.POST("/webhook/:platform/:connectionId", handler.Receive)
	return router
}

func postWebhook(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookReceiveAcksValidEvent(t *testing.T) {
	router := webhookRouter(nil)

	rec := postWebhook(router, "/webhook/shopify", `{"id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Received  bool   `json:"received"`
		WebhookID string `json:"webhookId"`
		Platform  string `json:"platform"`
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Received)
	assert.NotEmpty(t, body.WebhookID)
	assert.Equal(t, "shopify", body.Platform)
	assert.NotEmpty(t, body.Timestamp)
}

func TestWebhookReceiveRejectsEmptyBody(t *testing.T) {
	router := webhookRouter(nil)

	rec := postWebhook(router, "/webhook/shopify", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation")
}

func TestWebhookReceiveRejectsUnsupportedPlatform(t *testing.T) {
	router := webhookRouter(nil)

	rec := postWebhook(router, "/webhook/etsy", `{"id":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error     string `json:"error"`
		WebhookID string `json:"webhookId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation", body.Error)
	assert.NotEmpty(t, body.WebhookID, "error bodies still echo the webhook id")
}

func TestWebhookReceiveRejectsBadSignature(t *testing.T) {
	router := webhookRouter(apperrors.New(apperrors.KindAuth, "invalid signature"))

	rec := postWebhook(router, "/webhook/shopify", `{"id":1}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body struct {
		Error     string `json:"error"`
		WebhookID string `json:"webhookId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "auth_error", body.Error)
	assert.NotEmpty(t, body.WebhookID)
}

func TestWebhookReceiveRejectsMalformedConnectionID(t *testing.T) {
	router := webhookRouter(nil)

	rec := postWebhook(router, "/webhook/shopify/not-a-uuid", `{"id":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid connection id")
}
