package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sync-engine/internal/adapters"
	"sync-engine/internal/apperrors"
	"sync-engine/internal/events"
	"sync-engine/internal/models"
	"sync-engine/internal/queue"
)

// Items between connection liveness re-checks inside the sync loop.
const syncAbortCheckEvery = 20

// SyncJob executes the user's confirmed mapping decisions. Every item
// is processed in isolation; one bad item never aborts the batch. The
// job works entirely from the snapshots captured at scan time, so no
// platform calls happen here.
type SyncJob struct {
	base   adapters.Base
	events *events.Publisher
	logger *zap.Logger
}

// NewSyncJob wires the initial-sync processor
func NewSyncJob(base adapters.Base, publisher *events.Publisher, logger *zap.Logger) *SyncJob {
	return &SyncJob{base: base, events: publisher, logger: logger}
}

var _ queue.JobProcessor = (*SyncJob)(nil)

func (j *SyncJob) Type() queue.JobType {
	return queue.JobInitialSync
}

type syncCounts struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func (j *SyncJob) Process(ctx context.Context, job *queue.Job) error {
	if job.ConnectionID == nil {
		return apperrors.New(apperrors.KindValidation, "sync job has no connection id")
	}
	conn, err := j.base.Stores.Connections.GetByID(ctx, *job.ConnectionID)
	if err != nil {
		return err
	}
	if !conn.IsEnabled {
		j.logger.Info("skipping sync for disabled connection", zap.String("connectionId", conn.ID.String()))
		return nil
	}

	counts, err := j.run(ctx, conn)
	if err != nil {
		j.fail(ctx, conn, err)
		return err
	}
	j.finish(ctx, conn, counts)
	return nil
}

func (j *SyncJob) run(ctx context.Context, conn *models.PlatformConnection) (*syncCounts, error) {
	raw, ok := conn.PlatformSpecificData[models.MetaMappingConfirmations]
	if !ok {
		return nil, apperrors.New(apperrors.KindValidation, "connection has no confirmed mappings")
	}
	var confirmations models.MappingConfirmations
	if err := reencode(raw, &confirmations); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDataIntegrity, "stored confirmations are unreadable", err)
	}

	attemptAt := time.Now().UTC()
	if err := j.base.Stores.Connections.SetSyncTimes(ctx, conn.ID, &attemptAt, nil); err != nil {
		j.logger.Warn("failed to record sync attempt time",
			zap.String("connectionId", conn.ID.String()), zap.Error(err))
	}

	rules := conn.SyncRules
	counts := &syncCounts{}
	for i, match := range confirmations.ConfirmedMatches {
		if i > 0 && i%syncAbortCheckEvery == 0 {
			fresh, err := j.base.Stores.Connections.GetByID(ctx, conn.ID)
			if err != nil {
				return nil, err
			}
			if !fresh.IsEnabled {
				j.logger.Info("aborting sync, connection disabled mid-run",
					zap.String("connectionId", conn.ID.String()))
				return counts, nil
			}
		}

		counts.Processed++
		if err := j.processMatch(ctx, conn, rules, match); err != nil {
			counts.Failed++
			j.logItemFailure(ctx, conn, match, err)
			continue
		}
		counts.Succeeded++
	}
	return counts, nil
}

func (j *SyncJob) processMatch(ctx context.Context, conn *models.PlatformConnection, rules models.SyncRules, m models.ConfirmedMatch) error {
	switch m.Action {
	case models.ActionLink:
		return j.link(ctx, conn, rules, m)
	case models.ActionCreate:
		return j.create(ctx, conn, rules, m)
	case models.ActionIgnore:
		return j.ignore(ctx, conn, m)
	default:
		return apperrors.Newf(apperrors.KindValidation, "unknown action %q", m.Action)
	}
}

// link attaches the platform item to an existing canonical variant, then
// applies the connection's source-of-truth policy.
func (j *SyncJob) link(ctx context.Context, conn *models.PlatformConnection, rules models.SyncRules, m models.ConfirmedMatch) error {
	if m.SssyncVariantID == nil {
		return apperrors.Newf(apperrors.KindValidation, "link decision for %s has no canonical variant", m.PlatformProductID)
	}
	variantID := *m.SssyncVariantID

	now := time.Now().UTC()
	mapping := &models.PlatformProductMapping{
		ConnectionID:         conn.ID,
		VariantID:            variantID,
		PlatformProductID:    m.PlatformProductID,
		PlatformVariantID:    optional(m.PlatformVariantID),
		PlatformSKU:          optional(m.PlatformSKU),
		SyncStatus:           models.MappingLinked,
		IsEnabled:            true,
		LastSyncedAt:         &now,
		PlatformSpecificData: models.JSONB{},
	}
	if m.Snapshot != nil && m.Snapshot.InventoryItemID != "" {
		mapping.PlatformSpecificData["inventoryItemId"] = m.Snapshot.InventoryItemID
	}
	if err := j.base.Stores.Mappings.Upsert(ctx, mapping); err != nil {
		return err
	}

	if m.Snapshot == nil {
		return nil
	}
	if rules.ProductDetailsSoT == models.SoTPlatform {
		if err := j.overlayDetails(ctx, conn.UserID, variantID, m.Snapshot); err != nil {
			return err
		}
	}
	if rules.InventorySoT == models.SoTPlatform && len(m.Snapshot.Inventory) > 0 {
		return j.saveSnapshotInventory(ctx, conn.ID, variantID, m.Snapshot.Inventory, now)
	}
	return nil
}

// overlayDetails merges snapshot fields onto the canonical variant.
// Only present snapshot fields win; absent ones never clobber canonical
// values. SKU is left alone to preserve the (user, sku) uniqueness the
// link was matched on.
func (j *SyncJob) overlayDetails(ctx context.Context, userID, variantID uuid.UUID, s *models.PlatformProductSnapshot) error {
	variant, err := j.base.Stores.Catalog.GetVariant(ctx, userID, variantID)
	if err != nil {
		return err
	}
	if s.Title != "" {
		variant.Title = s.Title
	}
	if s.Description != "" {
		desc := s.Description
		variant.Description = &desc
	}
	if s.Price != nil {
		variant.Price = *s.Price
	}
	if s.CompareAtPrice != nil {
		variant.CompareAtPrice = s.CompareAtPrice
	}
	if s.Weight != nil {
		variant.Weight = s.Weight
	}
	if s.WeightUnit != "" {
		variant.WeightUnit = s.WeightUnit
	}
	if s.Barcode != "" {
		barcode := s.Barcode
		variant.Barcode = &barcode
	}
	return j.base.Stores.Catalog.UpdateVariant(ctx, variant)
}

// create builds a new canonical product/variant from the snapshot. When
// another variant of the same platform product was already created, its
// canonical product is reused so the grouping survives.
func (j *SyncJob) create(ctx context.Context, conn *models.PlatformConnection, rules models.SyncRules, m models.ConfirmedMatch) error {
	if !rules.CreateNew {
		j.base.Stores.Activity.LogActivity(ctx, &models.ActivityLog{
			UserID:       conn.UserID,
			ConnectionID: &conn.ID,
			EntityType:   "PlatformProduct",
			EntityID:     m.PlatformProductID,
			EventType:    models.EventCreateDisabled,
			Status:       models.ActivityInfo,
			Message:      "create skipped, connection rules disallow new products",
		})
		return nil
	}
	if m.Snapshot == nil {
		return apperrors.Newf(apperrors.KindMissingPlatformData,
			"create decision for %s has no platform snapshot", m.PlatformProductID)
	}
	s := m.Snapshot

	productID, err := j.resolveProduct(ctx, conn, m)
	if err != nil {
		return err
	}

	sku := s.SKU
	if sku == "" {
		sku = mintTempSKU(s.PlatformProductID, s.PlatformVariantID)
	}
	variant := models.ProductVariant{
		ProductID:   productID,
		UserID:      conn.UserID,
		SKU:         &sku,
		Barcode:     optional(s.Barcode),
		Title:       s.Title,
		Description: optional(s.Description),
		WeightUnit:  s.WeightUnit,
		Weight:      s.Weight,
	}
	if s.Price != nil {
		variant.Price = *s.Price
	}
	variant.CompareAtPrice = s.CompareAtPrice
	saved, err := j.base.Stores.Catalog.SaveVariants(ctx, []models.ProductVariant{variant})
	if err != nil {
		return err
	}
	variantID := saved[0].ID

	if len(s.ImageURLs) > 0 {
		if err := j.base.Stores.Catalog.SaveVariantImages(ctx, productID, &variantID, s.ImageURLs); err != nil {
			j.logger.Warn("failed to persist images for created variant",
				zap.String("variantId", variantID.String()), zap.Error(err))
		}
	}

	now := time.Now().UTC()
	mapping := &models.PlatformProductMapping{
		ConnectionID:         conn.ID,
		VariantID:            variantID,
		PlatformProductID:    m.PlatformProductID,
		PlatformVariantID:    optional(m.PlatformVariantID),
		PlatformSKU:          optional(s.SKU),
		SyncStatus:           models.MappingSynced,
		IsEnabled:            true,
		LastSyncedAt:         &now,
		PlatformSpecificData: models.JSONB{},
	}
	if s.InventoryItemID != "" {
		mapping.PlatformSpecificData["inventoryItemId"] = s.InventoryItemID
	}
	if err := j.base.Stores.Mappings.Upsert(ctx, mapping); err != nil {
		return err
	}

	if len(s.Inventory) > 0 {
		return j.saveSnapshotInventory(ctx, conn.ID, variantID, s.Inventory, now)
	}
	return nil
}

// resolveProduct finds the canonical product to attach a created variant
// to, creating one when no sibling variant was synced before.
func (j *SyncJob) resolveProduct(ctx context.Context, conn *models.PlatformConnection, m models.ConfirmedMatch) (uuid.UUID, error) {
	if existing, err := j.base.Stores.Mappings.Get(ctx, conn.ID, m.PlatformProductID); err == nil {
		sibling, verr := j.base.Stores.Catalog.GetVariant(ctx, conn.UserID, existing.VariantID)
		if verr == nil {
			return sibling.ProductID, nil
		}
	} else if !apperrors.Is(err, apperrors.KindNotFound) {
		return uuid.Nil, err
	}

	title := m.PlatformTitle
	if title == "" {
		title = m.Snapshot.Title
	}
	product := &models.Product{UserID: conn.UserID}
	if title != "" {
		product.Title = &title
	}
	if m.Snapshot.Description != "" {
		desc := m.Snapshot.Description
		product.Description = &desc
	}
	if err := j.base.Stores.Catalog.SaveProduct(ctx, product); err != nil {
		return uuid.Nil, err
	}
	return product.ID, nil
}

// ignore disables the mapping when one exists, otherwise records the
// decision for audit.
func (j *SyncJob) ignore(ctx context.Context, conn *models.PlatformConnection, m models.ConfirmedMatch) error {
	var existing *models.PlatformProductMapping
	var err error
	if m.PlatformVariantID != "" {
		existing, err = j.base.Stores.Mappings.GetByPlatformVariant(ctx, conn.ID, m.PlatformVariantID)
	} else {
		existing, err = j.base.Stores.Mappings.Get(ctx, conn.ID, m.PlatformProductID)
	}
	if err != nil {
		if !apperrors.Is(err, apperrors.KindNotFound) {
			return err
		}
		j.base.Stores.Activity.LogActivity(ctx, &models.ActivityLog{
			UserID:       conn.UserID,
			ConnectionID: &conn.ID,
			EntityType:   "PlatformProduct",
			EntityID:     m.PlatformProductID,
			EventType:    models.EventIgnoreDecision,
			Status:       models.ActivityInfo,
			Message:      "platform item ignored, no mapping existed",
		})
		return nil
	}

	bag := existing.PlatformSpecificData
	if bag == nil {
		bag = models.JSONB{}
	}
	bag["ignoredReason"] = "UserConfirmedIgnore"
	return j.base.Stores.Mappings.Update(ctx, existing.ID, map[string]interface{}{
		"sync_status":            models.MappingIgnored,
		"is_enabled":             false,
		"platform_specific_data": bag,
	})
}

func (j *SyncJob) saveSnapshotInventory(ctx context.Context, connectionID, variantID uuid.UUID, rows []models.SnapshotInventory, at time.Time) error {
	levels := make([]models.InventoryLevel, 0, len(rows))
	for _, row := range rows {
		levels = append(levels, models.InventoryLevel{
			VariantID:            variantID,
			ConnectionID:         connectionID,
			PlatformLocationID:   row.PlatformLocationID,
			Quantity:             row.Quantity,
			LastPlatformUpdateAt: &at,
		})
	}
	return j.base.Stores.Inventory.SaveBulkLevels(ctx, levels)
}

func (j *SyncJob) logItemFailure(ctx context.Context, conn *models.PlatformConnection, m models.ConfirmedMatch, cause error) {
	eventType := models.EventSyncItemFailed
	if apperrors.Is(cause, apperrors.KindMissingPlatformData) {
		eventType = models.EventMissingPlatformData
	}
	j.base.Stores.Activity.LogActivity(ctx, &models.ActivityLog{
		UserID:       conn.UserID,
		ConnectionID: &conn.ID,
		EntityType:   "PlatformProduct",
		EntityID:     m.PlatformProductID,
		EventType:    eventType,
		Status:       models.ActivityFailed,
		Message:      cause.Error(),
		Details: models.JSONB{
			"action":            m.Action,
			"platformProductId": m.PlatformProductID,
			"platformVariantId": m.PlatformVariantID,
		},
	})
}

func (j *SyncJob) finish(ctx context.Context, conn *models.PlatformConnection, counts *syncCounts) {
	now := time.Now().UTC()
	target := models.ConnectionActive
	status := models.ActivitySuccess
	if counts.Failed > 0 {
		target = models.ConnectionError
		status = models.ActivityFailed
	} else {
		if err := j.base.Stores.Connections.SetSyncTimes(ctx, conn.ID, nil, &now); err != nil {
			j.logger.Warn("failed to record sync success time",
				zap.String("connectionId", conn.ID.String()), zap.Error(err))
		}
	}
	if err := j.base.Stores.Connections.TransitionStatus(ctx, conn.ID,
		[]models.ConnectionStatus{models.ConnectionSyncing}, target); err != nil {
		j.logger.Error("failed to finalize connection status after sync",
			zap.String("connectionId", conn.ID.String()), zap.Error(err))
	}

	j.base.Stores.Activity.LogActivity(ctx, &models.ActivityLog{
		UserID:       conn.UserID,
		ConnectionID: &conn.ID,
		EntityType:   "Connection",
		EntityID:     conn.ID.String(),
		EventType:    models.EventSyncCompleted,
		Status:       status,
		Message: fmt.Sprintf("initial sync finished: %d processed, %d succeeded, %d failed",
			counts.Processed, counts.Succeeded, counts.Failed),
		Details: models.JSONB{
			"processed": counts.Processed,
			"succeeded": counts.Succeeded,
			"failed":    counts.Failed,
		},
	})

	event := events.SyncEvent{
		ConnectionID: conn.ID,
		UserID:       conn.UserID,
		JobType:      string(queue.JobInitialSync),
		Processed:    counts.Processed,
		Succeeded:    counts.Succeeded,
		Failed:       counts.Failed,
	}
	if counts.Failed > 0 {
		j.events.SyncFailed(event)
	} else {
		j.events.SyncCompleted(event)
	}
}

func (j *SyncJob) fail(ctx context.Context, conn *models.PlatformConnection, cause error) {
	if err := j.base.Stores.Connections.TransitionStatus(ctx, conn.ID,
		[]models.ConnectionStatus{models.ConnectionSyncing}, models.ConnectionError); err != nil {
		j.logger.Error("failed to flip connection to error after sync failure",
			zap.String("connectionId", conn.ID.String()), zap.Error(err))
	}
	j.base.Stores.Activity.LogActivity(ctx, &models.ActivityLog{
		UserID:       conn.UserID,
		ConnectionID: &conn.ID,
		EntityType:   "Connection",
		EntityID:     conn.ID.String(),
		EventType:    models.EventSyncFailed,
		Status:       models.ActivityFailed,
		Message:      cause.Error(),
	})
	j.events.SyncFailed(events.SyncEvent{
		ConnectionID: conn.ID,
		UserID:       conn.UserID,
		JobType:      string(queue.JobInitialSync),
		Error:        cause.Error(),
	})
}

func mintTempSKU(platformProductID, platformVariantID string) string {
	suffix := platformVariantID
	if suffix == "" {
		suffix = fmt.Sprintf("%d", time.Now().UnixMilli())
	}
	return fmt.Sprintf("TEMP-SKU-%s-%s", platformProductID, suffix)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
