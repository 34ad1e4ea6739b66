package adapters

import (
	"time"

	"github.com/google/uuid"

	"sync-engine/internal/models"
)

// PlatformData is the raw catalog pulled from a platform in one sweep.
type PlatformData struct {
	Products  []PlatformProduct
	Locations []PlatformLocation
	Inventory []PlatformInventoryRow
}

// PlatformProduct is a platform product normalized to a common shape.
// Platform-specific payload fields the engine does not model live in Raw.
type PlatformProduct struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Status      string                 `json:"status,omitempty"`
	Variants    []PlatformVariant      `json:"variants"`
	ImageURLs   []string               `json:"imageUrls,omitempty"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	Raw         map[string]interface{} `json:"raw,omitempty"`
}

// PlatformVariant is a platform variant normalized to a common shape.
type PlatformVariant struct {
	ID                string                 `json:"id"`
	ProductID         string                 `json:"productId"`
	Title             string                 `json:"title,omitempty"`
	SKU               string                 `json:"sku,omitempty"`
	Barcode           string                 `json:"barcode,omitempty"`
	Price             float64                `json:"price"`
	CompareAtPrice    *float64               `json:"compareAtPrice,omitempty"`
	Weight            *float64               `json:"weight,omitempty"`
	WeightUnit        string                 `json:"weightUnit,omitempty"`
	Options           map[string]interface{} `json:"options,omitempty"`
	InventoryQuantity int                    `json:"inventoryQuantity"`
	InventoryItemID   string                 `json:"inventoryItemId,omitempty"`
	ImageURL          string                 `json:"imageUrl,omitempty"`
}

// PlatformLocation is a stock location on the platform.
type PlatformLocation struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// PlatformInventoryRow is one (variant, location) quantity on the platform.
type PlatformInventoryRow struct {
	PlatformVariantID  string    `json:"platformVariantId"`
	PlatformLocationID string    `json:"platformLocationId"`
	Quantity           int       `json:"quantity"`
	UpdatedAt          time.Time `json:"updatedAt,omitempty"`
}

// ProductOverview is the cheap listing used by reconciliation; it avoids
// pulling full product payloads for diffing.
type ProductOverview struct {
	PlatformProductID string    `json:"platformProductId"`
	PlatformVariantID string    `json:"platformVariantId,omitempty"`
	SKU               string    `json:"sku,omitempty"`
	Title             string    `json:"title,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt,omitempty"`
}

// DraftProduct is a canonical product draft carrying a temporary id until
// persistence assigns the real one.
type DraftProduct struct {
	TempID    string
	Product   models.Product
	ImageURLs []string
}

// DraftVariant is a canonical variant draft. TempProductID references the
// owning DraftProduct; the platform ids survive into the mapping row.
type DraftVariant struct {
	TempID            string
	TempProductID     string
	Variant           models.ProductVariant
	PlatformProductID string
	PlatformVariantID string
	ImageURLs         []string
}

// DraftInventory references its variant by temp id; rows for variants the
// platform never reported a location for are dropped.
type DraftInventory struct {
	TempVariantID      string
	PlatformLocationID string
	Quantity           int
	UpdatedAt          time.Time
}

// CanonicalBatch is the mapper output for one pull: drafts in dependency
// order (products, then variants, then inventory).
type CanonicalBatch struct {
	Products  []DraftProduct
	Variants  []DraftVariant
	Inventory []DraftInventory
	Locations []PlatformLocation
}

// BundleOption is a product option definition for outbound creates.
type BundleOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// BundleVariant pairs a canonical variant with its target quantity for an
// outbound create or update.
type BundleVariant struct {
	VariantID uuid.UUID              `json:"variantId"`
	Title     string                 `json:"title,omitempty"`
	SKU       string                 `json:"sku,omitempty"`
	Barcode   string                 `json:"barcode,omitempty"`
	Price     float64                `json:"price"`
	Weight    *float64               `json:"weight,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
	Quantity  int                    `json:"quantity"`
}

// ProductBundle groups everything a platform create/update call needs.
type ProductBundle struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Options     []BundleOption  `json:"options,omitempty"`
	Variants    []BundleVariant `json:"variants"`
	ImageURLs   []string        `json:"imageUrls,omitempty"`
}

// CreateResult reports the platform ids assigned by an outbound create.
type CreateResult struct {
	PlatformProductID  string               `json:"platformProductId"`
	PlatformVariantIDs map[uuid.UUID]string `json:"platformVariantIds"`
}

// LevelUpdate is one inventory push: the mapping locates the platform
// variant, the level carries the target quantity.
type LevelUpdate struct {
	Mapping models.PlatformProductMapping
	Level   models.InventoryLevel
}

// LevelUpdateResult reports batch inventory push outcomes; partial failure
// is expected and the caller inspects Errors.
type LevelUpdateResult struct {
	Success int
	Failure int
	Errors  []string
}
