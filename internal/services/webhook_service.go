package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sync-engine/internal/adapters"
	"sync-engine/internal/apperrors"
	"sync-engine/internal/models"
	"sync-engine/internal/repository"
)

const (
	webhookDedupeTTL   = 24 * time.Hour
	webhookProcessWait = 60 * time.Second
)

// WebhookResult is the acknowledgment returned to the platform before
// any processing happens.
type WebhookResult struct {
	WebhookID string    `json:"webhookId"`
	Platform  string    `json:"platform"`
	Timestamp time.Time `json:"timestamp"`
}

// WebhookService authenticates inbound platform events, acks them, and
// routes them to the owning adapter on a background task. Verification
// failures surface synchronously; processing failures only get logged
// because the 200 has already gone out.
type WebhookService struct {
	connections repository.ConnectionStore
	activity    repository.ActivityStore
	registry    *adapters.Registry
	deduper     Deduper
	secrets     map[models.PlatformKind]string
	logger      *zap.Logger
}

// NewWebhookService wires the webhook dispatcher
func NewWebhookService(
	connections repository.ConnectionStore,
	activity repository.ActivityStore,
	registry *adapters.Registry,
	deduper Deduper,
	secrets map[models.PlatformKind]string,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		connections: connections,
		activity:    activity,
		registry:    registry,
		deduper:     deduper,
		secrets:     secrets,
		logger:      logger,
	}
}

// Receive validates an inbound webhook and kicks off background
// processing. The result carries the webhookId even on failure so the
// HTTP layer can echo it in error bodies.
func (s *WebhookService) Receive(platform string, connectionID *uuid.UUID, payload []byte, headers http.Header) (*WebhookResult, error) {
	result := &WebhookResult{
		WebhookID: newWebhookID(),
		Platform:  platform,
		Timestamp: time.Now().UTC(),
	}
	kind := models.PlatformKind(platform)

	adapter, err := s.registry.Get(kind)
	if err != nil {
		return result, apperrors.Newf(apperrors.KindValidation, "unsupported platform %q", platform)
	}
	if len(payload) == 0 {
		return result, apperrors.New(apperrors.KindValidation, "webhook body is required")
	}
	if err := adapter.VerifyWebhookSignature(payload, headers, s.secrets[kind]); err != nil {
		s.logger.Warn("webhook signature verification failed",
			zap.String("platform", platform),
			zap.String("webhookId", result.WebhookID),
			zap.Error(err))
		return result, apperrors.Wrap(apperrors.KindAuth, "webhook signature verification failed", err)
	}

	go s.process(adapter, kind, connectionID, payload, headers.Clone(), result.WebhookID)
	return result, nil
}

func (s *WebhookService) process(adapter adapters.Adapter, kind models.PlatformKind, connectionID *uuid.UUID, payload []byte, headers http.Header, webhookID string) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessWait)
	defer cancel()

	conns, err := s.resolveConnections(ctx, kind, connectionID, headers, payload)
	if err != nil {
		s.logger.Warn("failed to resolve webhook target connection",
			zap.String("platform", string(kind)),
			zap.String("webhookId", webhookID),
			zap.Error(err))
		return
	}
	if len(conns) == 0 {
		s.logger.Info("webhook matched no enabled connection, dropping",
			zap.String("platform", string(kind)),
			zap.String("webhookId", webhookID))
		return
	}

	duplicate := false
	if extID := externalEventID(kind, headers, payload); extID != "" {
		seen, derr := s.deduper.Seen(ctx, string(kind)+":"+extID, webhookDedupeTTL)
		if derr != nil {
			s.logger.Warn("webhook dedupe check failed, processing anyway",
				zap.String("webhookId", webhookID), zap.Error(derr))
		}
		duplicate = derr == nil && seen
	}

	for i := range conns {
		conn := &conns[i]
		s.logEvent(ctx, conn, models.EventWebhookReceived, models.ActivityInfo, webhookID, "webhook received")

		if duplicate {
			s.logEvent(ctx, conn, models.EventWebhookDuplicate, models.ActivityInfo, webhookID, "duplicate webhook delivery, skipped")
			continue
		}
		if err := adapter.ProcessWebhook(ctx, conn, payload, headers, webhookID); err != nil {
			s.logger.Error("webhook processing failed",
				zap.String("connectionId", conn.ID.String()),
				zap.String("webhookId", webhookID),
				zap.Error(err))
			s.logEvent(ctx, conn, models.EventWebhookFailed, models.ActivityFailed, webhookID, err.Error())
			continue
		}
		s.logEvent(ctx, conn, models.EventWebhookProcessed, models.ActivitySuccess, webhookID, "webhook processed")
	}
}

// resolveConnections prefers the explicit path-param connection; without
// one it falls back to the platform identity carried in headers or body.
func (s *WebhookService) resolveConnections(ctx context.Context, kind models.PlatformKind, connectionID *uuid.UUID, headers http.Header, payload []byte) ([]models.PlatformConnection, error) {
	if connectionID != nil {
		conn, err := s.connections.GetByID(ctx, *connectionID)
		if err != nil {
			return nil, err
		}
		if !conn.IsEnabled || conn.PlatformKind != kind {
			return nil, nil
		}
		return []models.PlatformConnection{*conn}, nil
	}

	metaKey, identifier := platformIdentity(kind, headers, payload)
	if identifier == "" {
		return nil, apperrors.Newf(apperrors.KindValidation, "webhook carries no %s identity", kind)
	}
	return s.connections.FindByIdentifier(ctx, kind, metaKey, identifier)
}

func (s *WebhookService) logEvent(ctx context.Context, conn *models.PlatformConnection, eventType, status, webhookID, message string) {
	s.activity.LogActivity(ctx, &models.ActivityLog{
		UserID:       conn.UserID,
		ConnectionID: &conn.ID,
		EntityType:   "Webhook",
		EntityID:     webhookID,
		EventType:    eventType,
		Status:       status,
		Message:      message,
		Details:      models.JSONB{"platform": string(conn.PlatformKind)},
	})
}

// platformIdentity extracts the (metadata key, identifier) pair that
// locates the owning connection when no explicit id is on the path.
func platformIdentity(kind models.PlatformKind, headers http.Header, payload []byte) (string, string) {
	switch kind {
	case models.PlatformShopify:
		return models.MetaShop, headers.Get("X-Shopify-Shop-Domain")
	case models.PlatformSquare:
		if merchant := headers.Get("X-Square-Merchant-Id"); merchant != "" {
			return models.MetaMerchantID, merchant
		}
		var body struct {
			MerchantID string `json:"merchant_id"`
		}
		if err := json.Unmarshal(payload, &body); err == nil && body.MerchantID != "" {
			return models.MetaMerchantID, body.MerchantID
		}
		return models.MetaMerchantID, ""
	case models.PlatformClover:
		if merchant := headers.Get("X-Clover-Merchant-Id"); merchant != "" {
			return models.MetaMerchantID, merchant
		}
		var body struct {
			Merchants map[string]json.RawMessage `json:"merchants"`
		}
		if err := json.Unmarshal(payload, &body); err == nil {
			for merchant := range body.Merchants {
				return models.MetaMerchantID, merchant
			}
		}
		return models.MetaMerchantID, ""
	default:
		return "", ""
	}
}

// externalEventID returns the platform's own delivery id when one
// exists; dedupe is skipped for platforms that never send one.
func externalEventID(kind models.PlatformKind, headers http.Header, payload []byte) string {
	switch kind {
	case models.PlatformShopify:
		return headers.Get("X-Shopify-Webhook-Id")
	case models.PlatformSquare:
		var body struct {
			EventID string `json:"event_id"`
		}
		if err := json.Unmarshal(payload, &body); err == nil {
			return body.EventID
		}
	}
	return ""
}

const webhookIDCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

// newWebhookID builds the idempotency key threaded through logs and
// adapter calls: millisecond timestamp plus 9 random characters.
func newWebhookID() string {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d-fallback0", time.Now().UnixMilli())
	}
	for i := range buf {
		buf[i] = webhookIDCharset[int(buf[i])%len(webhookIDCharset)]
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), buf)
}
