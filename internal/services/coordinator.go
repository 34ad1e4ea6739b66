package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sync-engine/internal/apperrors"
	"sync-engine/internal/models"
	"sync-engine/internal/queue"
	"sync-engine/internal/repository"
)

// Coordinator drives the connection onboarding state machine. All
// transitions go through compare-and-set on the connection row, so two
// racing requests cannot both start a job.
type Coordinator struct {
	connections repository.ConnectionStore
	activity    repository.ActivityStore
	dispatcher  *queue.Dispatcher
	codec       *CredentialCodec
	logger      *zap.Logger
}

// NewCoordinator wires the coordinator
func NewCoordinator(
	connections repository.ConnectionStore,
	activity repository.ActivityStore,
	dispatcher *queue.Dispatcher,
	codec *CredentialCodec,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		connections: connections,
		activity:    activity,
		dispatcher:  dispatcher,
		codec:       codec,
		logger:      logger,
	}
}

// CreateConnectionInput is the OAuth-callback style payload for a new
// platform connection.
type CreateConnectionInput struct {
	UserID       uuid.UUID
	PlatformKind models.PlatformKind
	DisplayName  string
	Credentials  map[string]string
	Metadata     map[string]interface{}
	SyncRules    *models.SyncRules
}

// CreateConnection encrypts credentials and upserts the connection on
// its platform identity, so reconnecting the same shop reuses the row.
func (c *Coordinator) CreateConnection(ctx context.Context, input CreateConnectionInput) (*models.PlatformConnection, error) {
	if input.PlatformKind == "" {
		return nil, apperrors.New(apperrors.KindValidation, "platformKind is required")
	}
	blob, err := c.codec.Encrypt(input.Credentials)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to encrypt credentials", err)
	}

	rules := models.DefaultSyncRules()
	if input.SyncRules != nil {
		rules = *input.SyncRules
	}
	bag := models.JSONB{}
	for k, v := range input.Metadata {
		bag[k] = v
	}
	conn := &models.PlatformConnection{
		UserID:               input.UserID,
		PlatformKind:         input.PlatformKind,
		DisplayName:          input.DisplayName,
		Credentials:          blob,
		Status:               models.ConnectionPending,
		IsEnabled:            true,
		PlatformSpecificData: bag,
		SyncRules:            rules,
	}
	if err := c.connections.Upsert(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// StartScan moves the connection into scanning and enqueues the
// initial-scan job. Calling it while a scan is already running returns
// the running job's id instead of starting another.
func (c *Coordinator) StartScan(ctx context.Context, userID, connectionID uuid.UUID) (string, error) {
	conn, err := c.connections.GetForUser(ctx, userID, connectionID)
	if err != nil {
		return "", err
	}
	if !conn.IsEnabled {
		return "", apperrors.New(apperrors.KindValidation, "connection is disabled")
	}
	if conn.Status == models.ConnectionScanning {
		if jobID := conn.CurrentJobID(); jobID != "" {
			return jobID, nil
		}
	}

	from := []models.ConnectionStatus{
		models.ConnectionPending,
		models.ConnectionNeedsReview,
		models.ConnectionError,
		models.ConnectionActive,
	}
	if err := c.connections.TransitionStatus(ctx, connectionID, from, models.ConnectionScanning); err != nil {
		return "", err
	}
	return c.enqueueConnectionJob(ctx, conn, queue.JobInitialScan)
}

// ActivateSync moves needs_review into syncing and enqueues the
// initial-sync job. Idempotent while syncing.
func (c *Coordinator) ActivateSync(ctx context.Context, userID, connectionID uuid.UUID) (string, error) {
	conn, err := c.connections.GetForUser(ctx, userID, connectionID)
	if err != nil {
		return "", err
	}
	if conn.Status == models.ConnectionSyncing {
		if jobID := conn.CurrentJobID(); jobID != "" {
			return jobID, nil
		}
	}
	if _, ok := conn.PlatformSpecificData[models.MetaMappingConfirmations]; !ok {
		return "", apperrors.New(apperrors.KindValidation, "mappings must be confirmed before activating sync")
	}

	from := []models.ConnectionStatus{models.ConnectionNeedsReview}
	if err := c.connections.TransitionStatus(ctx, connectionID, from, models.ConnectionSyncing); err != nil {
		return "", err
	}
	return c.enqueueConnectionJob(ctx, conn, queue.JobInitialSync)
}

// RequestReconcile moves active into reconciling and enqueues the
// reconciliation job.
func (c *Coordinator) RequestReconcile(ctx context.Context, userID, connectionID uuid.UUID) (string, error) {
	conn, err := c.connections.GetForUser(ctx, userID, connectionID)
	if err != nil {
		return "", err
	}
	from := []models.ConnectionStatus{models.ConnectionActive}
	if err := c.connections.TransitionStatus(ctx, connectionID, from, models.ConnectionReconciling); err != nil {
		return "", err
	}
	return c.enqueueConnectionJob(ctx, conn, queue.JobReconcile)
}

func (c *Coordinator) enqueueConnectionJob(ctx context.Context, conn *models.PlatformConnection, jobType queue.JobType) (string, error) {
	connID := conn.ID
	job := &queue.Job{
		Type:         jobType,
		ConnectionID: &connID,
		UserID:       conn.UserID,
		Payload: map[string]interface{}{
			"platformKind": string(conn.PlatformKind),
		},
	}
	jobID, err := c.dispatcher.Enqueue(ctx, job)
	if err != nil {
		// Leave the connection recoverable rather than stuck in a
		// transitional status.
		if terr := c.connections.TransitionStatus(ctx, connID,
			[]models.ConnectionStatus{models.ConnectionScanning, models.ConnectionSyncing, models.ConnectionReconciling},
			models.ConnectionError); terr != nil {
			c.logger.Error("failed to mark connection error after enqueue failure",
				zap.String("connectionId", connID.String()), zap.Error(terr))
		}
		return "", apperrors.Wrap(apperrors.KindInternal, "failed to enqueue job", err)
	}

	meta := map[string]interface{}{
		models.MetaCurrentJobID: jobID,
		models.MetaJobStartedAt: time.Now().UTC().Format(time.RFC3339),
		models.MetaJobType:      string(jobType),
	}
	if err := c.connections.MergeMetadata(ctx, connID, meta); err != nil {
		c.logger.Warn("failed to persist job metadata",
			zap.String("connectionId", connID.String()), zap.Error(err))
	}
	return jobID, nil
}

// GetScanSummary returns the last scan's counts, or not_found before
// any scan completed.
func (c *Coordinator) GetScanSummary(ctx context.Context, userID, connectionID uuid.UUID) (*models.ScanSummary, error) {
	conn, err := c.connections.GetForUser(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	raw, ok := conn.PlatformSpecificData[models.MetaScanSummary]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "no scan has completed for this connection")
	}
	var summary models.ScanSummary
	if err := reencode(raw, &summary); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDataIntegrity, "stored scan summary is unreadable", err)
	}
	return &summary, nil
}

// GetMappingSuggestions returns the engine's proposed matches from the
// last scan.
func (c *Coordinator) GetMappingSuggestions(ctx context.Context, userID, connectionID uuid.UUID) ([]models.MappingSuggestion, error) {
	conn, err := c.connections.GetForUser(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	raw, ok := conn.PlatformSpecificData[models.MetaMappingSuggestions]
	if !ok {
		return []models.MappingSuggestion{}, nil
	}
	var suggestions []models.MappingSuggestion
	if err := reencode(raw, &suggestions); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDataIntegrity, "stored suggestions are unreadable", err)
	}
	return suggestions, nil
}

// SaveDraftMappings stores in-progress review decisions without
// advancing the state machine.
func (c *Coordinator) SaveDraftMappings(ctx context.Context, userID, connectionID uuid.UUID, confirmations models.MappingConfirmations) error {
	conn, err := c.connections.GetForUser(ctx, userID, connectionID)
	if err != nil {
		return err
	}
	if conn.Status != models.ConnectionNeedsReview {
		return apperrors.Newf(apperrors.KindConflict, "connection is %s, drafts require needs_review", conn.Status)
	}
	return c.connections.MergeMetadata(ctx, connectionID, map[string]interface{}{
		models.MetaMappingDrafts: confirmations,
	})
}

// GetDraftMappings returns previously saved drafts, or nil.
func (c *Coordinator) GetDraftMappings(ctx context.Context, userID, connectionID uuid.UUID) (*models.MappingConfirmations, error) {
	conn, err := c.connections.GetForUser(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	raw, ok := conn.PlatformSpecificData[models.MetaMappingDrafts]
	if !ok {
		return nil, nil
	}
	var drafts models.MappingConfirmations
	if err := reencode(raw, &drafts); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDataIntegrity, "stored drafts are unreadable", err)
	}
	return &drafts, nil
}

// ConfirmMappings persists final user decisions. The connection stays in
// needs_review; ActivateSync consumes the confirmations.
func (c *Coordinator) ConfirmMappings(ctx context.Context, userID, connectionID uuid.UUID, confirmations models.MappingConfirmations) error {
	conn, err := c.connections.GetForUser(ctx, userID, connectionID)
	if err != nil {
		return err
	}
	if conn.Status != models.ConnectionNeedsReview {
		return apperrors.Newf(apperrors.KindConflict, "connection is %s, confirmation requires needs_review", conn.Status)
	}
	for _, m := range confirmations.ConfirmedMatches {
		switch m.Action {
		case models.ActionLink:
			if m.SssyncVariantID == nil {
				return apperrors.Newf(apperrors.KindValidation, "link decision for %s has no variant id", m.PlatformProductID)
			}
		case models.ActionCreate, models.ActionIgnore:
		default:
			return apperrors.Newf(apperrors.KindValidation, "unknown action %q", m.Action)
		}
	}
	confirmations.ConfirmedAt = time.Now().UTC()
	return c.connections.MergeMetadata(ctx, connectionID, map[string]interface{}{
		models.MetaMappingConfirmations: confirmations,
		models.MetaMappingDrafts:        nil,
	})
}

// PreviewAction is one planned item in the sync preview.
type PreviewAction struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// SyncPreview exposes what activating sync would do: the user's
// confirmed decisions when present, otherwise the engine's suggestions.
type SyncPreview struct {
	Status      models.ConnectionStatus `json:"status"`
	ScanSummary *models.ScanSummary     `json:"scanSummary,omitempty"`
	Actions     []PreviewAction         `json:"actions"`
}

// GetSyncPreview returns the planned actions for review.
func (c *Coordinator) GetSyncPreview(ctx context.Context, userID, connectionID uuid.UUID) (*SyncPreview, error) {
	conn, err := c.connections.GetForUser(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	preview := &SyncPreview{Status: conn.Status, Actions: []PreviewAction{}}
	if raw, ok := conn.PlatformSpecificData[models.MetaScanSummary]; ok {
		var summary models.ScanSummary
		if err := reencode(raw, &summary); err == nil {
			preview.ScanSummary = &summary
		}
	}

	if raw, ok := conn.PlatformSpecificData[models.MetaMappingConfirmations]; ok {
		var confirmations models.MappingConfirmations
		if err := reencode(raw, &confirmations); err != nil {
			return nil, apperrors.Wrap(apperrors.KindDataIntegrity, "stored confirmations are unreadable", err)
		}
		for _, m := range confirmations.ConfirmedMatches {
			preview.Actions = append(preview.Actions, PreviewAction{
				Type:        m.Action,
				Description: previewDescription(m.Action, m.PlatformTitle, m.PlatformProductID),
			})
		}
		return preview, nil
	}

	if raw, ok := conn.PlatformSpecificData[models.MetaMappingSuggestions]; ok {
		var suggestions []models.MappingSuggestion
		if err := reencode(raw, &suggestions); err != nil {
			return nil, apperrors.Wrap(apperrors.KindDataIntegrity, "stored suggestions are unreadable", err)
		}
		for _, s := range suggestions {
			action := models.ActionCreate
			if s.SuggestedVariantID != nil {
				action = models.ActionLink
			}
			preview.Actions = append(preview.Actions, PreviewAction{
				Type:        action,
				Description: previewDescription(action, s.PlatformProduct.Title, s.PlatformProduct.PlatformProductID),
			})
		}
	}
	return preview, nil
}

func previewDescription(action, title, platformProductID string) string {
	name := title
	if name == "" {
		name = platformProductID
	}
	switch action {
	case models.ActionLink:
		return "link " + name + " to existing variant"
	case models.ActionCreate:
		return "create new product for " + name
	case models.ActionIgnore:
		return "ignore " + name
	default:
		return action + " " + name
	}
}

// Disconnect soft-deletes the connection: disabled, inactive, audit
// logged. Jobs in flight observe the flag and abort.
func (c *Coordinator) Disconnect(ctx context.Context, userID, connectionID uuid.UUID) error {
	conn, err := c.connections.GetForUser(ctx, userID, connectionID)
	if err != nil {
		return err
	}
	if err := c.connections.Disable(ctx, connectionID); err != nil {
		return err
	}
	c.activity.LogActivity(ctx, &models.ActivityLog{
		UserID:       userID,
		ConnectionID: &connectionID,
		EntityType:   "Connection",
		EntityID:     connectionID.String(),
		EventType:    models.EventConnectionDisabled,
		Status:       models.ActivityInfo,
		Message:      "connection disconnected by user",
		Details:      models.JSONB{"platformKind": string(conn.PlatformKind)},
	})
	return nil
}

// ConnectionStatus is the queue.ConnectionStatusFn for progress fallback.
func (c *Coordinator) ConnectionStatus(ctx context.Context, connectionID uuid.UUID) (string, error) {
	conn, err := c.connections.GetByID(ctx, connectionID)
	if err != nil {
		return "", err
	}
	return string(conn.Status), nil
}

// reencode converts a decoded JSONB value into a typed struct via a JSON
// round trip, the price of the schemaless metadata bag.
func reencode(raw interface{}, out interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
