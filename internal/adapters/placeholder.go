package adapters

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"sync-engine/internal/models"
)

// Placeholder registers a platform kind whose integration is not built
// yet. Every operation fails with ErrNotSupported so connections for
// these platforms can exist without silently doing nothing.
type Placeholder struct {
	kind models.PlatformKind
}

var _ Adapter = (*Placeholder)(nil)

// NewPlaceholder creates a placeholder adapter for a platform kind
func NewPlaceholder(kind models.PlatformKind) *Placeholder {
	return &Placeholder{kind: kind}
}

func (p *Placeholder) Kind() models.PlatformKind {
	return p.kind
}

func (p *Placeholder) GetApiClient(ctx context.Context, conn *models.PlatformConnection) (ApiClient, error) {
	return nil, ErrNotSupported
}

func (p *Placeholder) GetMapper() Mapper {
	return nil
}

func (p *Placeholder) GetSyncLogic(conn *models.PlatformConnection) SyncPolicy {
	return SyncPolicy{}
}

func (p *Placeholder) SyncFromPlatform(ctx context.Context, conn *models.PlatformConnection, userID uuid.UUID) error {
	return ErrNotSupported
}

func (p *Placeholder) SyncSingleProductFromPlatform(ctx context.Context, conn *models.PlatformConnection, platformProductID string, userID uuid.UUID) error {
	return ErrNotSupported
}

func (p *Placeholder) CreateProduct(ctx context.Context, conn *models.PlatformConnection, product *models.Product, variants []models.ProductVariant, levels []models.InventoryLevel) (*CreateResult, error) {
	return nil, ErrNotSupported
}

func (p *Placeholder) UpdateProduct(ctx context.Context, conn *models.PlatformConnection, mapping *models.PlatformProductMapping, product *models.Product, variants []models.ProductVariant, levels []models.InventoryLevel) error {
	return ErrNotSupported
}

func (p *Placeholder) DeleteProduct(ctx context.Context, conn *models.PlatformConnection, mapping *models.PlatformProductMapping) error {
	return ErrNotSupported
}

func (p *Placeholder) UpdateInventoryLevels(ctx context.Context, conn *models.PlatformConnection, updates []LevelUpdate) (*LevelUpdateResult, error) {
	return nil, ErrNotSupported
}

func (p *Placeholder) ProcessWebhook(ctx context.Context, conn *models.PlatformConnection, payload []byte, headers http.Header, webhookID string) error {
	return ErrNotSupported
}

func (p *Placeholder) VerifyWebhookSignature(payload []byte, headers http.Header, secret string) error {
	return ErrNotSupported
}
