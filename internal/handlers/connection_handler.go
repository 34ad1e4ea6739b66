package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sync-engine/internal/models"
	"sync-engine/internal/repository"
	"sync-engine/internal/services"
)

// ConnectionHandler handles platform connection endpoints
type ConnectionHandler struct {
	coordinator *services.Coordinator
	connections repository.ConnectionStore
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(coordinator *services.Coordinator, connections repository.ConnectionStore) *ConnectionHandler {
	return &ConnectionHandler{coordinator: coordinator, connections: connections}
}

// connectionView is the non-secret projection returned to clients. The
// credential blob never leaves the model's json:"-" tag, but the
// metadata bag can hold large scan artifacts the list view trims.
type connectionView struct {
	ID                string                  `json:"id"`
	PlatformKind      models.PlatformKind     `json:"platformKind"`
	DisplayName       string                  `json:"displayName"`
	Status            models.ConnectionStatus `json:"status"`
	IsEnabled         bool                    `json:"isEnabled"`
	SyncRules         models.SyncRules        `json:"syncRules"`
	LastSyncAttemptAt interface{}             `json:"lastSyncAttemptAt,omitempty"`
	LastSyncSuccessAt interface{}             `json:"lastSyncSuccessAt,omitempty"`
	CreatedAt         interface{}             `json:"createdAt"`
}

func viewOf(conn *models.PlatformConnection) connectionView {
	return connectionView{
		ID:                conn.ID.String(),
		PlatformKind:      conn.PlatformKind,
		DisplayName:       conn.DisplayName,
		Status:            conn.Status,
		IsEnabled:         conn.IsEnabled,
		SyncRules:         conn.SyncRules,
		LastSyncAttemptAt: conn.LastSyncAttemptAt,
		LastSyncSuccessAt: conn.LastSyncSuccessAt,
		CreatedAt:         conn.CreatedAt,
	}
}

// List returns all connections for the authenticated user
func (h *ConnectionHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	conns, err := h.connections.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]connectionView, 0, len(conns))
	for i := range conns {
		views = append(views, viewOf(&conns[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": views, "total": len(views)})
}

// Create registers a new platform connection from an OAuth callback
func (h *ConnectionHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		PlatformKind string                 `json:"platformKind" binding:"required"`
		DisplayName  string                 `json:"displayName"`
		Credentials  map[string]string      `json:"credentials" binding:"required"`
		Metadata     map[string]interface{} `json:"metadata"`
		SyncRules    *models.SyncRules      `json:"syncRules"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}

	conn, err := h.coordinator.CreateConnection(c.Request.Context(), services.CreateConnectionInput{
		UserID:       userID,
		PlatformKind: models.PlatformKind(req.PlatformKind),
		DisplayName:  req.DisplayName,
		Credentials:  req.Credentials,
		Metadata:     req.Metadata,
		SyncRules:    req.SyncRules,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": viewOf(conn)})
}

// Get returns a single connection
func (h *ConnectionHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	conn, err := h.connections.GetForUser(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": viewOf(conn)})
}

// Delete disconnects a platform connection
func (h *ConnectionHandler) Delete(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.coordinator.Disconnect(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
