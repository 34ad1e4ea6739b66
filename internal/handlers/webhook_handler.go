package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sync-engine/internal/apperrors"
	"sync-engine/internal/services"
)

// WebhookHandler receives platform event callbacks. It is the only
// unauthenticated surface; each platform signs its own payloads.
type WebhookHandler struct {
	service *services.WebhookService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(service *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// Receive acks a platform event and hands it to background processing.
// The 200 goes out before any canonical state changes.
func (h *WebhookHandler) Receive(c *gin.Context) {
	platform := c.Param("platform")

	var connectionID *uuid.UUID
	if raw := c.Param("connectionId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation",
				"message": "invalid connection id",
			})
			return
		}
		connectionID = &id
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation",
			"message": "webhook body is required",
		})
		return
	}

	result, err := h.service.Receive(platform, connectionID, payload, c.Request.Header)
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"error":     string(apperrors.KindOf(err)),
			"message":   err.Error(),
			"webhookId": result.WebhookID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"webhookId": result.WebhookID,
		"platform":  result.Platform,
		"timestamp": result.Timestamp,
	})
}
