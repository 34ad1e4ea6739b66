package models

import (
	"time"

	"github.com/google/uuid"
)

// MappingSyncStatus represents the sync status of a mapping
type MappingSyncStatus string

const (
	MappingLinked  MappingSyncStatus = "Linked"
	MappingSynced  MappingSyncStatus = "Synced"
	MappingPending MappingSyncStatus = "Pending"
	MappingIgnored MappingSyncStatus = "Ignored"
	MappingError   MappingSyncStatus = "Error"
)

// PlatformProductMapping is the durable link between one canonical
// variant and one platform product/variant. Rows are never deleted;
// ignore decisions disable them.
type PlatformProductMapping struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ConnectionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_mapping_conn_variant,priority:1;uniqueIndex:idx_mapping_conn_pvariant,priority:1;index:idx_mapping_connection" json:"connectionId"`
	VariantID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_mapping_conn_variant,priority:2" json:"variantId"`

	PlatformProductID string  `gorm:"type:varchar(255);not null;index:idx_mapping_platform_product" json:"platformProductId"`
	PlatformVariantID *string `gorm:"type:varchar(255);uniqueIndex:idx_mapping_conn_pvariant,priority:2" json:"platformVariantId,omitempty"`
	PlatformSKU       *string `gorm:"type:varchar(255)" json:"platformSku,omitempty"`

	SyncStatus   MappingSyncStatus `gorm:"type:varchar(50);default:'Pending'" json:"syncStatus"`
	IsEnabled    bool              `gorm:"default:true" json:"isEnabled"`
	LastSyncedAt *time.Time        `json:"lastSyncedAt,omitempty"`

	PlatformSpecificData JSONB `gorm:"type:jsonb;default:'{}'" json:"platformSpecificData,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`

	Connection *PlatformConnection `gorm:"foreignKey:ConnectionID" json:"connection,omitempty"`
}

func (PlatformProductMapping) TableName() string {
	return "platform_product_mappings"
}
