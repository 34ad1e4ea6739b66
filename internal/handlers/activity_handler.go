package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sync-engine/internal/repository"
)

// ActivityHandler exposes the audit trail
type ActivityHandler struct {
	activity repository.ActivityStore
}

// NewActivityHandler creates a new activity handler
func NewActivityHandler(activity repository.ActivityStore) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// List returns recent activity for the user, optionally filtered by
// connection
func (h *ActivityHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var connectionID *uuid.UUID
	if raw := c.Query("connectionId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "invalid connectionId"})
			return
		}
		connectionID = &id
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	logs, err := h.activity.List(c.Request.Context(), userID, connectionID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs, "total": len(logs)})
}
