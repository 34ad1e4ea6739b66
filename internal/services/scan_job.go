package services

import (
	"context"

	"go.uber.org/zap"

	"sync-engine/internal/adapters"
	"sync-engine/internal/apperrors"
	"sync-engine/internal/events"
	"sync-engine/internal/models"
	"sync-engine/internal/queue"
)

// ScanJob pulls a connection's full platform catalog, persists canonical
// drafts and produces mapping suggestions for review.
type ScanJob struct {
	base     adapters.Base
	registry *adapters.Registry
	matcher  *Matcher
	events   *events.Publisher
	logger   *zap.Logger
}

// NewScanJob wires the initial-scan processor
func NewScanJob(base adapters.Base, registry *adapters.Registry, matcher *Matcher, publisher *events.Publisher, logger *zap.Logger) *ScanJob {
	return &ScanJob{base: base, registry: registry, matcher: matcher, events: publisher, logger: logger}
}

var _ queue.JobProcessor = (*ScanJob)(nil)

func (j *ScanJob) Type() queue.JobType {
	return queue.JobInitialScan
}

func (j *ScanJob) Process(ctx context.Context, job *queue.Job) error {
	if job.ConnectionID == nil {
		return apperrors.New(apperrors.KindValidation, "scan job has no connection id")
	}
	connID := *job.ConnectionID

	conn, err := j.base.Stores.Connections.GetByID(ctx, connID)
	if err != nil {
		return err
	}
	if !conn.IsEnabled {
		j.logger.Info("skipping scan for disabled connection", zap.String("connectionId", connID.String()))
		return nil
	}

	err = j.run(ctx, conn)
	if err != nil {
		j.fail(ctx, conn, err)
		return err
	}
	return nil
}

func (j *ScanJob) run(ctx context.Context, conn *models.PlatformConnection) error {
	adapter, err := j.registry.Get(conn.PlatformKind)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "unsupported platform", err)
	}

	// Snapshot the canonical catalog before persisting drafts, so the
	// platform's own items never match themselves.
	existing, err := j.base.Stores.Catalog.FindVariantsByUser(ctx, conn.UserID)
	if err != nil {
		return err
	}

	client, err := adapter.GetApiClient(ctx, conn)
	if err != nil {
		return err
	}
	raw, err := client.FetchAll(ctx)
	if err != nil {
		return err
	}

	// Re-check before mutating: a disconnect during the pull aborts.
	fresh, err := j.base.Stores.Connections.GetByID(ctx, conn.ID)
	if err != nil {
		return err
	}
	if !fresh.IsEnabled || fresh.Status == models.ConnectionInactive {
		j.logger.Info("aborting scan, connection disabled mid-pull", zap.String("connectionId", conn.ID.String()))
		return nil
	}

	batch, err := adapter.GetMapper().MapPlatformDataToCanonical(raw, conn.UserID, conn.ID)
	if err != nil {
		return err
	}
	result, err := j.base.PersistCanonicalBatch(ctx, conn, batch)
	if err != nil {
		return err
	}

	suggestions := j.matcher.Suggest(raw, existing)
	summary := models.ScanSummary{
		CountProducts:  result.CountProducts,
		CountVariants:  result.CountVariants,
		CountLocations: result.CountLocations,
	}
	if err := j.base.Stores.Connections.MergeMetadata(ctx, conn.ID, map[string]interface{}{
		models.MetaScanSummary:        summary,
		models.MetaMappingSuggestions: suggestions,
	}); err != nil {
		return err
	}

	if err := j.base.Stores.Connections.TransitionStatus(ctx, conn.ID,
		[]models.ConnectionStatus{models.ConnectionScanning}, models.ConnectionNeedsReview); err != nil {
		return err
	}

	j.base.Stores.Activity.LogActivity(ctx, &models.ActivityLog{
		UserID:       conn.UserID,
		ConnectionID: &conn.ID,
		EntityType:   "Connection",
		EntityID:     conn.ID.String(),
		EventType:    models.EventScanCompleted,
		Status:       models.ActivitySuccess,
		Message:      "initial scan completed",
		Details: models.JSONB{
			"countProducts":  summary.CountProducts,
			"countVariants":  summary.CountVariants,
			"countLocations": summary.CountLocations,
		},
	})
	j.events.SyncCompleted(events.SyncEvent{
		ConnectionID: conn.ID,
		UserID:       conn.UserID,
		JobType:      string(queue.JobInitialScan),
		Processed:    summary.CountVariants,
		Succeeded:    summary.CountVariants,
	})
	return nil
}

func (j *ScanJob) fail(ctx context.Context, conn *models.PlatformConnection, cause error) {
	if err := j.base.Stores.Connections.TransitionStatus(ctx, conn.ID,
		[]models.ConnectionStatus{models.ConnectionScanning}, models.ConnectionError); err != nil {
		j.logger.Error("failed to flip connection to error after scan failure",
			zap.String("connectionId", conn.ID.String()), zap.Error(err))
	}

	eventType := models.EventScanFailed
	if apperrors.Is(cause, apperrors.KindAuth) {
		eventType = models.EventAuthError
	}
	j.base.Stores.Activity.LogActivity(ctx, &models.ActivityLog{
		UserID:       conn.UserID,
		ConnectionID: &conn.ID,
		EntityType:   "Connection",
		EntityID:     conn.ID.String(),
		EventType:    eventType,
		Status:       models.ActivityFailed,
		Message:      cause.Error(),
	})
	j.events.SyncFailed(events.SyncEvent{
		ConnectionID: conn.ID,
		UserID:       conn.UserID,
		JobType:      string(queue.JobInitialScan),
		Error:        cause.Error(),
	})
}
