package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformKind identifies a supported commerce platform
type PlatformKind string

const (
	PlatformShopify  PlatformKind = "shopify"
	PlatformSquare   PlatformKind = "square"
	PlatformClover   PlatformKind = "clover"
	PlatformEbay     PlatformKind = "ebay"
	PlatformFacebook PlatformKind = "facebook"
	PlatformWhatnot  PlatformKind = "whatnot"
	PlatformCSV      PlatformKind = "csv"
)

// ConnectionStatus is the onboarding/sync state of a platform connection
type ConnectionStatus string

const (
	ConnectionPending     ConnectionStatus = "pending"
	ConnectionScanning    ConnectionStatus = "scanning"
	ConnectionNeedsReview ConnectionStatus = "needs_review"
	ConnectionSyncing     ConnectionStatus = "syncing"
	ConnectionActive      ConnectionStatus = "active"
	ConnectionReconciling ConnectionStatus = "reconciling"
	ConnectionError       ConnectionStatus = "error"
	ConnectionInactive    ConnectionStatus = "inactive"
)

// Reserved keys inside PlatformConnection.PlatformSpecificData
const (
	MetaShop                 = "shop"
	MetaMerchantID           = "merchantId"
	MetaScanSummary          = "scanSummary"
	MetaMappingSuggestions   = "mappingSuggestions"
	MetaMappingConfirmations = "mappingConfirmations"
	MetaMappingDrafts        = "mappingDrafts"
	MetaCurrentJobID         = "currentJobId"
	MetaJobStartedAt         = "jobStartedAt"
	MetaJobType              = "jobType"
)

// PlatformConnection represents one user's linked account on one platform.
type PlatformConnection struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID       uuid.UUID    `gorm:"type:uuid;not null;index:idx_connections_user" json:"userId"`
	PlatformKind PlatformKind `gorm:"type:varchar(50);not null;index:idx_connections_kind" json:"platformKind"`
	DisplayName  string       `gorm:"type:varchar(255);not null" json:"displayName"`

	// AES-GCM encrypted credential blob; opaque to the engine.
	Credentials string `gorm:"type:text" json:"-"`

	Status    ConnectionStatus `gorm:"type:varchar(50);not null;default:'pending';index:idx_connections_status" json:"status"`
	IsEnabled bool             `gorm:"default:true" json:"isEnabled"`

	// Schemaless bag; reserved keys documented above.
	PlatformSpecificData JSONB `gorm:"type:jsonb;default:'{}'" json:"platformSpecificData,omitempty"`

	SyncRules SyncRules `gorm:"type:jsonb;default:'{}'" json:"syncRules"`

	LastSyncAttemptAt *time.Time `json:"lastSyncAttemptAt,omitempty"`
	LastSyncSuccessAt *time.Time `json:"lastSyncSuccessAt,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (PlatformConnection) TableName() string {
	return "platform_connections"
}

// UniqueIdentifier returns the platform-specific key that makes a
// connection unique per (user, platform): the shop domain for Shopify,
// the merchant id for Square and Clover.
func (c *PlatformConnection) UniqueIdentifier() string {
	bag := c.PlatformSpecificData
	if bag == nil {
		return ""
	}
	if shop, ok := bag[MetaShop].(string); ok && shop != "" {
		return shop
	}
	if merchant, ok := bag[MetaMerchantID].(string); ok && merchant != "" {
		return merchant
	}
	return ""
}

// CurrentJobID returns the id of the job the connection is tracking, if any.
func (c *PlatformConnection) CurrentJobID() string {
	if c.PlatformSpecificData == nil {
		return ""
	}
	id, _ := c.PlatformSpecificData[MetaCurrentJobID].(string)
	return id
}

// JobStartedAt returns when the tracked job started, zero if unknown.
func (c *PlatformConnection) JobStartedAt() time.Time {
	if c.PlatformSpecificData == nil {
		return time.Time{}
	}
	raw, _ := c.PlatformSpecificData[MetaJobStartedAt].(string)
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
