package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sync-engine/internal/adapters"
	"sync-engine/internal/apperrors"
	"sync-engine/internal/events"
	"sync-engine/internal/models"
	"sync-engine/internal/queue"
)

// ReconcileJob diffs the platform catalog against active mappings and
// repairs drift in both directions: new platform products get pulled and
// mapped, vanished ones get flagged, inventory gets refreshed wholesale.
type ReconcileJob struct {
	base     adapters.Base
	registry *adapters.Registry
	events   *events.Publisher
	logger   *zap.Logger
}

// NewReconcileJob wires the reconciliation processor
func NewReconcileJob(base adapters.Base, registry *adapters.Registry, publisher *events.Publisher, logger *zap.Logger) *ReconcileJob {
	return &ReconcileJob{base: base, registry: registry, events: publisher, logger: logger}
}

var _ queue.JobProcessor = (*ReconcileJob)(nil)

func (j *ReconcileJob) Type() queue.JobType {
	return queue.JobReconcile
}

func (j *ReconcileJob) Process(ctx context.Context, job *queue.Job) error {
	if job.ConnectionID == nil {
		return apperrors.New(apperrors.KindValidation, "reconcile job has no connection id")
	}
	conn, err := j.base.Stores.Connections.GetByID(ctx, *job.ConnectionID)
	if err != nil {
		return err
	}
	if !conn.IsEnabled {
		j.base.Stores.Activity.LogActivity(ctx, &models.ActivityLog{
			UserID:       conn.UserID,
			ConnectionID: &conn.ID,
			EntityType:   "Connection",
			EntityID:     conn.ID.String(),
			EventType:    models.EventReconcileSkipped,
			Status:       models.ActivityInfo,
			Message:      "reconcile skipped, connection disabled",
		})
		return nil
	}

	if err := j.run(ctx, conn); err != nil {
		j.fail(ctx, conn, err)
		return err
	}
	return nil
}

func (j *ReconcileJob) run(ctx context.Context, conn *models.PlatformConnection) error {
	attemptAt := time.Now().UTC()
	if err := j.base.Stores.Connections.SetSyncTimes(ctx, conn.ID, &attemptAt, nil); err != nil {
		j.logger.Warn("failed to record reconcile attempt time",
			zap.String("connectionId", conn.ID.String()), zap.Error(err))
	}

	adapter, err := j.registry.Get(conn.PlatformKind)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "unsupported platform", err)
	}
	client, err := adapter.GetApiClient(ctx, conn)
	if err != nil {
		return err
	}

	overviews, err := client.FetchOverviews(ctx)
	if err != nil {
		return err
	}
	mappings, err := j.base.Stores.Mappings.ListByConnection(ctx, conn.ID, true)
	if err != nil {
		return err
	}

	newCount := j.pullNewProducts(ctx, conn, adapter, overviews, mappings)
	missingCount := j.flagMissingProducts(ctx, conn, overviews, mappings)

	if err := j.refreshInventory(ctx, conn, client, mappings); err != nil {
		return err
	}

	successAt := time.Now().UTC()
	if err := j.base.Stores.Connections.SetSyncTimes(ctx, conn.ID, nil, &successAt); err != nil {
		j.logger.Warn("failed to record reconcile success time",
			zap.String("connectionId", conn.ID.String()), zap.Error(err))
	}
	if err := j.base.Stores.Connections.TransitionStatus(ctx, conn.ID,
		[]models.ConnectionStatus{models.ConnectionReconciling}, models.ConnectionActive); err != nil {
		return err
	}

	j.base.Stores.Activity.LogActivity(ctx, &models.ActivityLog{
		UserID:       conn.UserID,
		ConnectionID: &conn.ID,
		EntityType:   "Connection",
		EntityID:     conn.ID.String(),
		EventType:    models.EventSyncCompleted,
		Status:       models.ActivitySuccess,
		Message: fmt.Sprintf("reconcile finished: %d new on platform, %d missing on platform",
			newCount, missingCount),
		Details: models.JSONB{
			"jobType":           string(queue.JobReconcile),
			"newOnPlatform":     newCount,
			"missingOnPlatform": missingCount,
		},
	})
	j.events.SyncCompleted(events.SyncEvent{
		ConnectionID: conn.ID,
		UserID:       conn.UserID,
		JobType:      string(queue.JobReconcile),
		Processed:    len(overviews),
		Succeeded:    len(overviews),
	})
	return nil
}

// pullNewProducts fetches and maps platform products no active mapping
// covers. Each product is isolated; a failing pull logs and moves on.
func (j *ReconcileJob) pullNewProducts(ctx context.Context, conn *models.PlatformConnection, adapter adapters.Adapter, overviews []adapters.ProductOverview, mappings []models.PlatformProductMapping) int {
	mapped := make(map[string]struct{}, len(mappings))
	for _, m := range mappings {
		mapped[m.PlatformProductID] = struct{}{}
	}

	seen := make(map[string]struct{})
	count := 0
	for _, o := range overviews {
		if _, ok := mapped[o.PlatformProductID]; ok {
			continue
		}
		if _, dup := seen[o.PlatformProductID]; dup {
			continue
		}
		seen[o.PlatformProductID] = struct{}{}

		if err := adapter.SyncSingleProductFromPlatform(ctx, conn, o.PlatformProductID, conn.UserID); err != nil {
			j.logger.Warn("failed to pull new platform product during reconcile",
				zap.String("connectionId", conn.ID.String()),
				zap.String("platformProductId", o.PlatformProductID),
				zap.Error(err))
			continue
		}
		count++
		j.base.Stores.Activity.LogActivity(ctx, &models.ActivityLog{
			UserID:       conn.UserID,
			ConnectionID: &conn.ID,
			EntityType:   "PlatformProduct",
			EntityID:     o.PlatformProductID,
			EventType:    models.EventReconcileNewProduct,
			Status:       models.ActivityInfo,
			Message:      fmt.Sprintf("new platform product %q pulled into catalog", o.Title),
		})
	}
	return count
}

// flagMissingProducts logs mappings whose platform product no longer
// appears in the overview listing. Mappings stay enabled; listings can
// reappear and overview endpoints can be flaky, so a human decides.
func (j *ReconcileJob) flagMissingProducts(ctx context.Context, conn *models.PlatformConnection, overviews []adapters.ProductOverview, mappings []models.PlatformProductMapping) int {
	onPlatform := make(map[string]struct{}, len(overviews))
	for _, o := range overviews {
		onPlatform[o.PlatformProductID] = struct{}{}
	}

	count := 0
	for _, m := range mappings {
		if _, ok := onPlatform[m.PlatformProductID]; ok {
			continue
		}
		count++
		j.base.Stores.Activity.LogActivity(ctx, &models.ActivityLog{
			UserID:       conn.UserID,
			ConnectionID: &conn.ID,
			EntityType:   "Mapping",
			EntityID:     m.ID.String(),
			EventType:    models.EventReconcileMissing,
			Status:       models.ActivityWarning,
			Message:      fmt.Sprintf("platform product %s is mapped but missing on platform", m.PlatformProductID),
			Details: models.JSONB{
				"platformProductId": m.PlatformProductID,
				"variantId":         m.VariantID.String(),
			},
		})
	}
	return count
}

// refreshInventory overwrites canonical levels for mapped variants with
// the platform's current quantities.
func (j *ReconcileJob) refreshInventory(ctx context.Context, conn *models.PlatformConnection, client adapters.ApiClient, mappings []models.PlatformProductMapping) error {
	rows, err := client.FetchInventory(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	byPlatformVariant := make(map[string]models.PlatformProductMapping, len(mappings))
	for _, m := range mappings {
		if m.PlatformVariantID != nil {
			byPlatformVariant[*m.PlatformVariantID] = m
		}
	}

	now := time.Now().UTC()
	levels := make([]models.InventoryLevel, 0, len(rows))
	for _, row := range rows {
		m, ok := byPlatformVariant[row.PlatformVariantID]
		if !ok {
			continue
		}
		updatedAt := row.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		levels = append(levels, models.InventoryLevel{
			VariantID:            m.VariantID,
			ConnectionID:         conn.ID,
			PlatformLocationID:   row.PlatformLocationID,
			Quantity:             row.Quantity,
			LastPlatformUpdateAt: &updatedAt,
		})
	}
	return j.base.Stores.Inventory.SaveBulkLevels(ctx, levels)
}

func (j *ReconcileJob) fail(ctx context.Context, conn *models.PlatformConnection, cause error) {
	if err := j.base.Stores.Connections.TransitionStatus(ctx, conn.ID,
		[]models.ConnectionStatus{models.ConnectionReconciling}, models.ConnectionError); err != nil {
		j.logger.Error("failed to flip connection to error after reconcile failure",
			zap.String("connectionId", conn.ID.String()), zap.Error(err))
	}

	eventType := models.EventSyncFailed
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
		JobType:      string(queue.JobReconcile),
		Error:        cause.Error(),
	})
}
