package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sync-engine/internal/models"
	"sync-engine/internal/queue"
	"sync-engine/internal/services"
)

// SyncHandler handles the onboarding and sync lifecycle endpoints
type SyncHandler struct {
	coordinator *services.Coordinator
	dispatcher  *queue.Dispatcher
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(coordinator *services.Coordinator, dispatcher *queue.Dispatcher) *SyncHandler {
	return &SyncHandler{coordinator: coordinator, dispatcher: dispatcher}
}

// StartScan kicks off the initial platform scan
func (h *SyncHandler) StartScan(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	jobID, err := h.coordinator.StartScan(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobId": jobID})
}

// ScanSummary returns the counts from the last completed scan
func (h *SyncHandler) ScanSummary(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	summary, err := h.coordinator.GetScanSummary(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// MappingSuggestions returns the engine's proposed matches
func (h *SyncHandler) MappingSuggestions(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	suggestions, err := h.coordinator.GetMappingSuggestions(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, suggestions)
}

// GetDraftMappings returns in-progress review decisions
func (h *SyncHandler) GetDraftMappings(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	drafts, err := h.coordinator.GetDraftMappings(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if drafts == nil {
		c.JSON(http.StatusOK, gin.H{"confirmedMatches": []models.ConfirmedMatch{}})
		return
	}
	c.JSON(http.StatusOK, drafts)
}

// PutDraftMappings persists review decisions without side effects
func (h *SyncHandler) PutDraftMappings(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var drafts models.MappingConfirmations
	if err := c.ShouldBindJSON(&drafts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}
	if err := h.coordinator.SaveDraftMappings(c.Request.Context(), userID, id, drafts); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ConfirmMappings persists the user's final decisions
func (h *SyncHandler) ConfirmMappings(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var confirmations models.MappingConfirmations
	if err := c.ShouldBindJSON(&confirmations); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}
	if err := h.coordinator.ConfirmMappings(c.Request.Context(), userID, id, confirmations); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SyncPreview returns the planned sync actions
func (h *SyncHandler) SyncPreview(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	preview, err := h.coordinator.GetSyncPreview(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// ActivateSync starts executing the confirmed mappings
func (h *SyncHandler) ActivateSync(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	jobID, err := h.coordinator.ActivateSync(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobId": jobID})
}

// Reconcile triggers an on-demand reconciliation
func (h *SyncHandler) Reconcile(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	jobID, err := h.coordinator.RequestReconcile(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
}

// JobProgress reports a job's state, inferring from the connection
// status when the job is no longer in memory
func (h *SyncHandler) JobProgress(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	jobID := c.Param("jobId")
	progress, err := h.dispatcher.GetJobProgress(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobId":       progress.JobID,
		"isActive":    progress.Status == queue.StatusActive || progress.Status == queue.StatusQueued,
		"isCompleted": progress.Status == queue.StatusCompleted,
		"isFailed":    progress.Status == queue.StatusFailed,
		"progress":    progress.Progress,
		"description": progress.Description,
	})
}
