package adapters

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sync-engine/internal/events"
	"sync-engine/internal/models"
)

// PersistResult maps the batch's temporary ids to persisted row ids and
// carries the counts the scan summary reports.
type PersistResult struct {
	ProductIDs map[string]uuid.UUID
	VariantIDs map[string]uuid.UUID

	CountProducts  int
	CountVariants  int
	CountLocations int
}

// Base carries the shared wiring every platform adapter needs. Platform
// packages embed it and add their client and mapper.
type Base struct {
	Stores      Stores
	Credentials CredentialsFn
	Events      *events.Publisher
	Logger      *zap.Logger
}

// PersistCanonicalBatch writes a mapper batch in dependency order:
// products, then variants, then images and inventory. The temp-id map it
// returns lets callers attach mappings and suggestions to real rows.
func (b *Base) PersistCanonicalBatch(ctx context.Context, conn *models.PlatformConnection, batch *CanonicalBatch) (*PersistResult, error) {
	result := &PersistResult{
		ProductIDs:     make(map[string]uuid.UUID, len(batch.Products)),
		VariantIDs:     make(map[string]uuid.UUID, len(batch.Variants)),
		CountLocations: len(batch.Locations),
	}

	for i := range batch.Products {
		draft := &batch.Products[i]
		draft.Product.UserID = conn.UserID
		if err := b.Stores.Catalog.SaveProduct(ctx, &draft.Product); err != nil {
			return nil, err
		}
		result.ProductIDs[draft.TempID] = draft.Product.ID
		result.CountProducts++
	}

	variants := make([]models.ProductVariant, 0, len(batch.Variants))
	for i := range batch.Variants {
		draft := batch.Variants[i]
		draft.Variant.UserID = conn.UserID
		if realID, ok := result.ProductIDs[draft.TempProductID]; ok {
			draft.Variant.ProductID = realID
		}
		variants = append(variants, draft.Variant)
	}
	saved, err := b.Stores.Catalog.SaveVariants(ctx, variants)
	if err != nil {
		return nil, err
	}
	for i := range saved {
		result.VariantIDs[batch.Variants[i].TempID] = saved[i].ID
		result.CountVariants++
	}

	for i := range batch.Variants {
		draft := &batch.Variants[i]
		if len(draft.ImageURLs) == 0 {
			continue
		}
		variantID := result.VariantIDs[draft.TempID]
		productID := saved[i].ProductID
		if err := b.Stores.Catalog.SaveVariantImages(ctx, productID, &variantID, draft.ImageURLs); err != nil {
			b.Logger.Warn("failed to persist variant images",
				zap.String("connectionId", conn.ID.String()),
				zap.Error(err))
		}
	}
	for i := range batch.Products {
		draft := &batch.Products[i]
		if len(draft.ImageURLs) == 0 {
			continue
		}
		productID := result.ProductIDs[draft.TempID]
		if err := b.Stores.Catalog.SaveVariantImages(ctx, productID, nil, draft.ImageURLs); err != nil {
			b.Logger.Warn("failed to persist product images",
				zap.String("connectionId", conn.ID.String()),
				zap.Error(err))
		}
	}

	levels := make([]models.InventoryLevel, 0, len(batch.Inventory))
	now := time.Now()
	for _, row := range batch.Inventory {
		variantID, ok := result.VariantIDs[row.TempVariantID]
		if !ok {
			continue
		}
		updatedAt := row.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		levels = append(levels, models.InventoryLevel{
			VariantID:            variantID,
			ConnectionID:         conn.ID,
			PlatformLocationID:   row.PlatformLocationID,
			Quantity:             row.Quantity,
			LastPlatformUpdateAt: &updatedAt,
		})
	}
	if err := b.Stores.Inventory.SaveBulkLevels(ctx, levels); err != nil {
		return nil, err
	}
	return result, nil
}

// SyncPull runs a full pull through a client and mapper and persists the
// result. The common body of every adapter's SyncFromPlatform.
func (b *Base) SyncPull(ctx context.Context, conn *models.PlatformConnection, userID uuid.UUID, client ApiClient, mapper Mapper) (*PersistResult, error) {
	raw, err := client.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	batch, err := mapper.MapPlatformDataToCanonical(raw, userID, conn.ID)
	if err != nil {
		return nil, err
	}
	return b.PersistCanonicalBatch(ctx, conn, batch)
}

// SyncOne pulls a single platform product, persists it and refreshes any
// existing mapping's sync timestamp. Used from webhook processing.
func (b *Base) SyncOne(ctx context.Context, conn *models.PlatformConnection, platformProductID string, userID uuid.UUID, client ApiClient, mapper Mapper) error {
	product, err := client.FetchProduct(ctx, platformProductID)
	if err != nil {
		return err
	}
	raw := &PlatformData{Products: []PlatformProduct{*product}}
	batch, err := mapper.MapPlatformDataToCanonical(raw, userID, conn.ID)
	if err != nil {
		return err
	}
	result, err := b.PersistCanonicalBatch(ctx, conn, batch)
	if err != nil {
		return err
	}

	now := time.Now()
	for i := range batch.Variants {
		draft := &batch.Variants[i]
		variantID, ok := result.VariantIDs[draft.TempID]
		if !ok {
			continue
		}
		mapping, err := b.Stores.Mappings.GetByVariantAndPlatformProduct(ctx, variantID, platformProductID, conn.ID)
		if err != nil {
			continue
		}
		patch := map[string]interface{}{
			"sync_status":    models.MappingSynced,
			"last_synced_at": now,
		}
		if err := b.Stores.Mappings.Update(ctx, mapping.ID, patch); err != nil {
			b.Logger.Warn("failed to refresh mapping after single-product sync",
				zap.String("mappingId", mapping.ID.String()),
				zap.Error(err))
		}
	}
	return nil
}
