package square

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"sync-engine/internal/adapters"
	"sync-engine/internal/apperrors"
	"sync-engine/internal/events"
	"sync-engine/internal/models"
)

// Adapter is the Square platform adapter. Connections are identified by
// merchantId in the metadata bag.
type Adapter struct {
	adapters.Base
	mapper *Mapper
}

var _ adapters.Adapter = (*Adapter)(nil)

// NewAdapter creates the Square adapter
func NewAdapter(base adapters.Base) *Adapter {
	return &Adapter{Base: base, mapper: &Mapper{}}
}

func (a *Adapter) Kind() models.PlatformKind {
	return models.PlatformSquare
}

func (a *Adapter) GetApiClient(ctx context.Context, conn *models.PlatformConnection) (adapters.ApiClient, error) {
	creds, err := a.Credentials(conn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuth, "failed to decrypt square credentials", err)
	}
	token := creds["accessToken"]
	if token == "" {
		return nil, apperrors.New(apperrors.KindAuth, "square connection is missing access token")
	}
	return NewClient(token), nil
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

func (a *Adapter) UpdateInventoryLevels(ctx context.Context, conn *models.PlatformConnection, updates []adapters.LevelUpdate) (*adapters.LevelUpdateResult, error) {
	client, err := a.GetApiClient(ctx, conn)
	if err != nil {
		return nil, err
	}
	result := &adapters.LevelUpdateResult{}
	for _, u := range updates {
		if u.Mapping.PlatformVariantID == nil {
			result.Failure++
			result.Errors = append(result.Errors, "mapping "+u.Mapping.ID.String()+" has no platform variant id")
			continue
		}
		if err := client.SetInventoryLevel(ctx, *u.Mapping.PlatformVariantID, u.Level.PlatformLocationID, u.Level.Quantity); err != nil {
			result.Failure++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Success++
	}
	return result, nil
}

// VerifyWebhookSignature checks x-square-hmacsha256-signature:
// base64(HMAC-SHA256(signatureKey, rawBody)). Absent signatures pass,
// Square only signs when a signature key is configured.
func (a *Adapter) VerifyWebhookSignature(payload []byte, headers http.Header, secret string) error {
	signature := headers.Get("x-square-hmacsha256-signature")
	if signature == "" {
		return nil
	}
	if secret == "" {
		return apperrors.New(apperrors.KindAuth, "square webhook signed but no signature key configured")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return apperrors.New(apperrors.KindAuth, "invalid square webhook signature")
	}
	return nil
}

// ProcessWebhook handles catalog.version.updated and inventory.count.updated.
func (a *Adapter) ProcessWebhook(ctx context.Context, conn *models.PlatformConnection, payload []byte, headers http.Header, webhookID string) error {
	var event struct {
		Type      string    `json:"type"`
		CreatedAt time.Time `json:"created_at"`
		Data      struct {
			ID     string `json:"id"`
			Object struct {
				InventoryCounts []struct {
					CatalogObjectID string    `json:"catalog_object_id"`
					LocationID      string    `json:"location_id"`
					Quantity        string    `json:"quantity"`
					State           string    `json:"state"`
					CalculatedAt    time.Time `json:"calculated_at"`
				} `json:"inventory_counts"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return apperrors.New(apperrors.KindValidation, "square webhook payload is malformed")
	}

	switch {
	case event.Type == "catalog.version.updated":
		// A coarse signal; resync anything currently mapped.
		return a.SyncFromPlatform(ctx, conn, conn.UserID)

	case strings.HasPrefix(event.Type, "inventory."):
		for _, count := range event.Data.Object.InventoryCounts {
			if count.State != "IN_STOCK" {
				continue
			}
			mapping, err := a.Stores.Mappings.GetByPlatformVariant(ctx, conn.ID, count.CatalogObjectID)
			if err != nil {
				a.Stores.Activity.LogActivity(ctx, &models.ActivityLog{
					UserID:       conn.UserID,
					ConnectionID: &conn.ID,
					EntityType:   "InventoryLevel",
					EntityID:     count.CatalogObjectID,
					EventType:    models.EventMissingPlatformData,
					Status:       models.ActivityWarning,
					Message:      "inventory event references an unmapped variation",
					Details:      models.JSONB{"webhookId": webhookID},
				})
				continue
			}
			eventAt := count.CalculatedAt
			if eventAt.IsZero() {
				eventAt = event.CreatedAt
			}

			// Discard events older than what reconciliation already wrote.
			existing, err := a.Stores.Inventory.GetLevel(ctx, mapping.VariantID, conn.ID, count.LocationID)
			if err == nil && existing.LastPlatformUpdateAt != nil &&
				!eventAt.IsZero() && eventAt.Before(*existing.LastPlatformUpdateAt) {
				continue
			}

			if eventAt.IsZero() {
				eventAt = time.Now()
			}
			qty, _ := strconv.Atoi(count.Quantity)
			level := models.InventoryLevel{
				VariantID:            mapping.VariantID,
				ConnectionID:         conn.ID,
				PlatformLocationID:   count.LocationID,
				Quantity:             qty,
				LastPlatformUpdateAt: &eventAt,
			}
			if err := a.Stores.Inventory.UpdateLevel(ctx, &level); err != nil {
				return err
			}
			a.Events.InventoryUpdated(events.InventoryEvent{
				ConnectionID:       conn.ID,
				VariantID:          mapping.VariantID,
				PlatformLocationID: count.LocationID,
				Quantity:           qty,
				OccurredAt:         eventAt,
			})
		}
		return nil

	default:
		return nil
	}
}
