package shopify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sync-engine/internal/adapters"
	"sync-engine/internal/apperrors"
	"sync-engine/internal/events"
	"sync-engine/internal/models"
)

// Webhook topics the adapter handles; anything else is acknowledged and
// dropped.
const (
	topicProductsCreate  = "products/create"
	topicProductsUpdate  = "products/update"
	topicProductsDelete  = "products/delete"
	topicInventoryUpdate = "inventory_levels/update"
)

// Adapter is the Shopify platform adapter.
type Adapter struct {
	adapters.Base
	mapper *Mapper
}

var _ adapters.Adapter = (*Adapter)(nil)

// NewAdapter creates the Shopify adapter
func NewAdapter(base adapters.Base) *Adapter {
	return &Adapter{Base: base, mapper: &Mapper{}}
}

func (a *Adapter) Kind() models.PlatformKind {
	return models.PlatformShopify
}

// GetApiClient decrypts the connection's credentials and builds a client
// for its shop. Credentials are re-decrypted per call, never cached.
func (a *Adapter) GetApiClient(ctx context.Context, conn *models.PlatformConnection) (adapters.ApiClient, error) {
	creds, err := a.Credentials(conn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuth, "failed to decrypt shopify credentials", err)
	}
	shop := creds["shop"]
	if shop == "" {
		shop, _ = conn.PlatformSpecificData[models.MetaShop].(string)
	}
	token := creds["accessToken"]
	if shop == "" || token == "" {
		return nil, apperrors.New(apperrors.KindAuth, "shopify connection is missing shop or access token")
	}
	return NewClient(shop, token), nil
}

func (a *Adapter) GetMapper() adapters.Mapper {
	return a.mapper
}

func (a *Adapter) GetSyncLogic(conn *models.PlatformConnection) adapters.SyncPolicy {
	return adapters.SyncPolicy{DelistWhenZero: conn.SyncRules.DelistWhenZero}
}

func (a *Adapter) SyncFromPlatform(ctx context.Context, conn *models.PlatformConnection, userID uuid.UUID) error {
	client, err := a.GetApiClient(ctx, conn)
	if err != nil {
		return err
	}
	_, err = a.SyncPull(ctx, conn, userID, client, a.mapper)
	return err
}

func (a *Adapter) SyncSingleProductFromPlatform(ctx context.Context, conn *models.PlatformConnection, platformProductID string, userID uuid.UUID) error {
	client, err := a.GetApiClient(ctx, conn)
	if err != nil {
		return err
	}
	return a.SyncOne(ctx, conn, platformProductID, userID, client, a.mapper)
}

func (a *Adapter) CreateProduct(ctx context.Context, conn *models.PlatformConnection, product *models.Product, variants []models.ProductVariant, levels []models.InventoryLevel) (*adapters.CreateResult, error) {
	client, err := a.GetApiClient(ctx, conn)
	if err != nil {
		return nil, err
	}
	bundle, err := a.mapper.BuildCreateBundle(product, variants, levels)
	if err != nil {
		return nil, err
	}
	return client.CreateProduct(ctx, bundle)
}

func (a *Adapter) UpdateProduct(ctx context.Context, conn *models.PlatformConnection, mapping *models.PlatformProductMapping, product *models.Product, variants []models.ProductVariant, levels []models.InventoryLevel) error {
	client, err := a.GetApiClient(ctx, conn)
	if err != nil {
		return err
	}
	bundle, err := a.mapper.BuildCreateBundle(product, variants, levels)
	if err != nil {
		return err
	}
	return client.UpdateProduct(ctx, mapping.PlatformProductID, bundle)
}

func (a *Adapter) DeleteProduct(ctx context.Context, conn *models.PlatformConnection, mapping *models.PlatformProductMapping) error {
	client, err := a.GetApiClient(ctx, conn)
	if err != nil {
		return err
	}
	return client.DeleteProduct(ctx, mapping.PlatformProductID)
}

// UpdateInventoryLevels pushes quantities with partial-failure
// semantics: one failed row never aborts the batch.
func (a *Adapter) UpdateInventoryLevels(ctx context.Context, conn *models.PlatformConnection, updates []adapters.LevelUpdate) (*adapters.LevelUpdateResult, error) {
	client, err := a.GetApiClient(ctx, conn)
	if err != nil {
		return nil, err
	}
	result := &adapters.LevelUpdateResult{}
	for _, u := range updates {
		itemID := inventoryItemID(&u.Mapping)
		if itemID == "" {
			result.Failure++
			result.Errors = append(result.Errors, fmt.Sprintf("mapping %s has no inventory item id", u.Mapping.ID))
			continue
		}
		if err := client.SetInventoryLevel(ctx, itemID, u.Level.PlatformLocationID, u.Level.Quantity); err != nil {
			result.Failure++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Success++
	}
	return result, nil
}

// VerifyWebhookSignature checks the X-Shopify-Hmac-Sha256 header:
// base64(HMAC-SHA256(secret, rawBody)), compared in constant time.
func (a *Adapter) VerifyWebhookSignature(payload []byte, headers http.Header, secret string) error {
	signature := headers.Get("X-Shopify-Hmac-Sha256")
	if signature == "" {
		return apperrors.New(apperrors.KindAuth, "missing shopify webhook signature")
	}
	if secret == "" {
		return apperrors.New(apperrors.KindAuth, "no shopify webhook secret configured")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return apperrors.New(apperrors.KindAuth, "invalid shopify webhook signature")
	}
	return nil
}

// ProcessWebhook applies one Shopify event to canonical state. Payloads
// are replay-safe: product topics resync the product, inventory topics
// upsert a single level guarded by the platform timestamp.
func (a *Adapter) ProcessWebhook(ctx context.Context, conn *models.PlatformConnection, payload []byte, headers http.Header, webhookID string) error {
	topic := headers.Get("X-Shopify-Topic")
	switch topic {
	case topicProductsCreate, topicProductsUpdate:
		var event struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(payload, &event); err != nil || event.ID == 0 {
			return apperrors.New(apperrors.KindValidation, "shopify product webhook has no product id")
		}
		return a.SyncSingleProductFromPlatform(ctx, conn, strconv.FormatInt(event.ID, 10), conn.UserID)

	case topicProductsDelete:
		var event struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(payload, &event); err != nil || event.ID == 0 {
			return apperrors.New(apperrors.KindValidation, "shopify delete webhook has no product id")
		}
		return a.disableMappingsForProduct(ctx, conn, strconv.FormatInt(event.ID, 10), webhookID)

	case topicInventoryUpdate:
		return a.applyInventoryEvent(ctx, conn, payload, webhookID)

	default:
		a.Logger.Debug("ignoring unhandled shopify topic",
			zap.String("topic", topic),
			zap.String("webhookId", webhookID))
		return nil
	}
}

func (a *Adapter) disableMappingsForProduct(ctx context.Context, conn *models.PlatformConnection, platformProductID, webhookID string) error {
	mappings, err := a.Stores.Mappings.ListByConnection(ctx, conn.ID, false)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		if m.PlatformProductID != platformProductID || !m.IsEnabled {
			continue
		}
		patch := map[string]interface{}{"is_enabled": false, "sync_status": models.MappingError}
		if err := a.Stores.Mappings.Update(ctx, m.ID, patch); err != nil {
			return err
		}
		a.Stores.Activity.LogActivity(ctx, &models.ActivityLog{
			UserID:       conn.UserID,
			ConnectionID: &conn.ID,
			EntityType:   "Mapping",
			EntityID:     m.ID.String(),
			EventType:    models.EventConnectionDisabled,
			Status:       models.ActivityWarning,
			Message:      "product deleted on shopify; mapping disabled",
			Details:      models.JSONB{"webhookId": webhookID, "platformProductId": platformProductID},
		})
	}
	return nil
}

// applyInventoryEvent handles inventory_levels/update. The event is keyed
// by inventory_item_id, which the scan stored on the mapping.
func (a *Adapter) applyInventoryEvent(ctx context.Context, conn *models.PlatformConnection, payload []byte, webhookID string) error {
	var event struct {
		InventoryItemID int64     `json:"inventory_item_id"`
		LocationID      int64     `json:"location_id"`
		Available       int       `json:"available"`
		UpdatedAt       time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(payload, &event); err != nil || event.InventoryItemID == 0 {
		return apperrors.New(apperrors.KindValidation, "shopify inventory webhook is malformed")
	}
	itemID := strconv.FormatInt(event.InventoryItemID, 10)
	locationID := strconv.FormatInt(event.LocationID, 10)

	mappings, err := a.Stores.Mappings.ListByConnection(ctx, conn.ID, true)
	if err != nil {
		return err
	}
	var mapping *models.PlatformProductMapping
	for i := range mappings {
		if inventoryItemID(&mappings[i]) == itemID {
			mapping = &mappings[i]
			break
		}
	}
	if mapping == nil {
		a.Stores.Activity.LogActivity(ctx, &models.ActivityLog{
			UserID:       conn.UserID,
			ConnectionID: &conn.ID,
			EntityType:   "InventoryLevel",
			EntityID:     itemID,
			EventType:    models.EventMissingPlatformData,
			Status:       models.ActivityWarning,
			Message:      "inventory event references an unmapped item",
			Details:      models.JSONB{"webhookId": webhookID, "inventoryItemId": itemID},
		})
		return nil
	}

	// Discard events older than what reconciliation already wrote.
	existing, err := a.Stores.Inventory.GetLevel(ctx, mapping.VariantID, conn.ID, locationID)
	if err == nil && existing.LastPlatformUpdateAt != nil &&
		!event.UpdatedAt.IsZero() && event.UpdatedAt.Before(*existing.LastPlatformUpdateAt) {
		return nil
	}

	updatedAt := event.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	level := models.InventoryLevel{
		VariantID:            mapping.VariantID,
		ConnectionID:         conn.ID,
		PlatformLocationID:   locationID,
		Quantity:             event.Available,
		LastPlatformUpdateAt: &updatedAt,
	}
	if err := a.Stores.Inventory.UpdateLevel(ctx, &level); err != nil {
		return err
	}
	a.Events.InventoryUpdated(events.InventoryEvent{
		ConnectionID:       conn.ID,
		VariantID:          mapping.VariantID,
		PlatformLocationID: locationID,
		Quantity:           event.Available,
		OccurredAt:         updatedAt,
	})
	return nil
}

// inventoryItemID resolves Shopify's inventory_item_id for a mapping,
// falling back to the platform variant id for rows created before the
// scan captured it.
func inventoryItemID(m *models.PlatformProductMapping) string {
	if m.PlatformSpecificData != nil {
		if id, ok := m.PlatformSpecificData["inventoryItemId"].(string); ok && id != "" {
			return id
		}
	}
	if m.PlatformVariantID != nil {
		return *m.PlatformVariantID
	}
	return ""
}
