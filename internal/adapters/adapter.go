package adapters

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"sync-engine/internal/models"
	"sync-engine/internal/repository"
)

// ErrNotSupported is returned by placeholder adapters for platforms that
// are registered but not yet implemented.
var ErrNotSupported = fmt.Errorf("platform not supported")

// Stores bundles the persistence gateways an adapter needs. Adapters
// receive it at construction so platform packages never touch gorm.
type Stores struct {
	Connections repository.ConnectionStore
	Catalog     repository.CatalogStore
	Inventory   repository.InventoryStore
	Mappings    repository.MappingStore
	Activity    repository.ActivityStore
}

// CredentialsFn decrypts a connection's credential blob on demand.
// Decrypted values are never cached; each call re-decrypts.
type CredentialsFn func(conn *models.PlatformConnection) (map[string]string, error)

// ApiClient is a stateful per-connection client. Implementations handle
// pagination and rate limiting internally; 401/403 surfaces as an
// auth_error kind so callers can flip the connection to error.
type ApiClient interface {
	FetchAll(ctx context.Context) (*PlatformData, error)
	FetchProduct(ctx context.Context, platformProductID string) (*PlatformProduct, error)
	FetchOverviews(ctx context.Context) ([]ProductOverview, error)
	FetchInventory(ctx context.Context) ([]PlatformInventoryRow, error)
	CreateProduct(ctx context.Context, bundle *ProductBundle) (*CreateResult, error)
	UpdateProduct(ctx context.Context, platformProductID string, bundle *ProductBundle) error
	DeleteProduct(ctx context.Context, platformProductID string) error
	SetInventoryLevel(ctx context.Context, platformVariantID, platformLocationID string, quantity int) error
}

// Mapper converts platform payloads to canonical drafts and back.
type Mapper interface {
	MapPlatformDataToCanonical(raw *PlatformData, userID, connectionID uuid.UUID) (*CanonicalBatch, error)
	BuildCreateBundle(product *models.Product, variants []models.ProductVariant, levels []models.InventoryLevel) (*ProductBundle, error)
}

// SyncPolicy is the per-connection push policy derived from SyncRules.
type SyncPolicy struct {
	DelistWhenZero bool
}

// ShouldDelist reports whether a zero-stock variant should be taken down.
func (p SyncPolicy) ShouldDelist(quantity int) bool {
	return p.DelistWhenZero && quantity <= 0
}

// Adapter is the per-platform capability contract. One instance per
// platform kind is registered at startup; all methods take the connection
// explicitly so adapters stay stateless across tenants.
type Adapter interface {
	Kind() models.PlatformKind

	GetApiClient(ctx context.Context, conn *models.PlatformConnection) (ApiClient, error)
	GetMapper() Mapper
	GetSyncLogic(conn *models.PlatformConnection) SyncPolicy

	SyncFromPlatform(ctx context.Context, conn *models.PlatformConnection, userID uuid.UUID) error
	SyncSingleProductFromPlatform(ctx context.Context, conn *models.PlatformConnection, platformProductID string, userID uuid.UUID) error

	CreateProduct(ctx context.Context, conn *models.PlatformConnection, product *models.Product, variants []models.ProductVariant, levels []models.InventoryLevel) (*CreateResult, error)
	UpdateProduct(ctx context.Context, conn *models.PlatformConnection, mapping *models.PlatformProductMapping, product *models.Product, variants []models.ProductVariant, levels []models.InventoryLevel) error
	DeleteProduct(ctx context.Context, conn *models.PlatformConnection, mapping *models.PlatformProductMapping) error
	UpdateInventoryLevels(ctx context.Context, conn *models.PlatformConnection, updates []LevelUpdate) (*LevelUpdateResult, error)

	// ProcessWebhook is the only adapter entry point that mutates
	// canonical state from inbound events. Must be idempotent.
	ProcessWebhook(ctx context.Context, conn *models.PlatformConnection, payload []byte, headers http.Header, webhookID string) error
	VerifyWebhookSignature(payload []byte, headers http.Header, secret string) error
}

// Registry holds the adapter for each platform kind.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.PlatformKind]Adapter
}

// NewRegistry creates an empty adapter registry
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.PlatformKind]Adapter)}
}

// Register adds an adapter; later registrations for the same kind win.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Kind()] = a
}

// Get returns the adapter for a platform kind.
func (r *Registry) Get(kind models.PlatformKind) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for platform %q", kind)
	}
	return a, nil
}

// Kinds returns the registered platform kinds.
func (r *Registry) Kinds() []models.PlatformKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]models.PlatformKind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	return kinds
}
