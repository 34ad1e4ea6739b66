package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Source-of-truth values for SyncRules
const (
	SoTPlatform = "PLATFORM"
	SoTSssync   = "SSSYNC"
)

// SyncRules is the per-connection conflict policy.
type SyncRules struct {
	ProductDetailsSoT string `json:"productDetailsSoT"`
	InventorySoT      string `json:"inventorySoT"`
	CreateNew         bool   `json:"createNew"`
	DelistWhenZero    bool   `json:"delistWhenZero"`
}

// DefaultSyncRules treats the platform as authoritative and allows creates.
func DefaultSyncRules() SyncRules {
	return SyncRules{
		ProductDetailsSoT: SoTPlatform,
		InventorySoT:      SoTPlatform,
		CreateNew:         true,
		DelistWhenZero:    false,
	}
}

func (r SyncRules) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *SyncRules) Scan(value interface{}) error {
	if value == nil {
		*r = DefaultSyncRules()
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, r)
}

// MatchType classifies how a mapping suggestion was produced
type MatchType string

const (
	MatchSKU     MatchType = "SKU"
	MatchBarcode MatchType = "BARCODE"
	MatchNone    MatchType = "NONE"
)

// SnapshotInventory is a per-location quantity captured with a snapshot.
type SnapshotInventory struct {
	PlatformLocationID string `json:"platformLocationId"`
	Quantity           int    `json:"quantity"`
}

// PlatformProductSnapshot captures enough of a platform item to drive
// link overlays and create actions without refetching.
type PlatformProductSnapshot struct {
	PlatformProductID string              `json:"platformProductId"`
	PlatformVariantID string              `json:"platformVariantId,omitempty"`
	Title             string              `json:"title,omitempty"`
	Description       string              `json:"description,omitempty"`
	SKU               string              `json:"sku,omitempty"`
	Barcode           string              `json:"barcode,omitempty"`
	InventoryItemID   string              `json:"inventoryItemId,omitempty"`
	Price             *float64            `json:"price,omitempty"`
	CompareAtPrice    *float64            `json:"compareAtPrice,omitempty"`
	Weight            *float64            `json:"weight,omitempty"`
	WeightUnit        string              `json:"weightUnit,omitempty"`
	ImageURLs         []string            `json:"imageUrls,omitempty"`
	Inventory         []SnapshotInventory `json:"inventory,omitempty"`
}

// MappingSuggestion is an engine-proposed match between a platform item
// and a canonical variant, stored on the connection's metadata bag.
type MappingSuggestion struct {
	PlatformProduct    PlatformProductSnapshot `json:"platformProduct"`
	SuggestedVariantID *uuid.UUID              `json:"suggestedVariantId,omitempty"`
	MatchType          MatchType               `json:"matchType"`
	Confidence         float64                 `json:"confidence"`
}

// Confirmed-match actions
const (
	ActionLink   = "link"
	ActionCreate = "create"
	ActionIgnore = "ignore"
)

// ConfirmedMatch is a user decision on a suggestion.
type ConfirmedMatch struct {
	PlatformProductID string                   `json:"platformProductId"`
	PlatformVariantID string                   `json:"platformVariantId,omitempty"`
	PlatformSKU       string                   `json:"platformSku,omitempty"`
	PlatformTitle     string                   `json:"platformTitle,omitempty"`
	SssyncVariantID   *uuid.UUID               `json:"sssyncVariantId,omitempty"`
	Action            string                   `json:"action"`
	Snapshot          *PlatformProductSnapshot `json:"snapshot,omitempty"`
}

// MappingConfirmations is the persisted set of user decisions.
type MappingConfirmations struct {
	ConfirmedMatches []ConfirmedMatch `json:"confirmedMatches"`
	ConfirmedAt      time.Time        `json:"confirmedAt"`
}

// ScanSummary is the result of an initial scan.
type ScanSummary struct {
	CountProducts  int `json:"countProducts"`
	CountVariants  int `json:"countVariants"`
	CountLocations int `json:"countLocations"`
}
