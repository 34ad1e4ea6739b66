package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryLevel is the quantity of one variant at one platform
// location, scoped to one connection. At most one row exists per
// (variant, connection, platform location).
type InventoryLevel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	VariantID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_row,priority:1" json:"variantId"`
	ConnectionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_row,priority:2" json:"connectionId"`

	PlatformLocationID string `gorm:"type:varchar(255);not null;uniqueIndex:idx_inventory_row,priority:3" json:"platformLocationId"`

	Quantity int `gorm:"not null;default:0;check:quantity >= 0" json:"quantity"`

	// Last-writer-wins guard for overlapping webhook/reconcile writes.
	LastPlatformUpdateAt *time.Time `json:"lastPlatformUpdateAt,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (InventoryLevel) TableName() string {
	return "inventory_levels"
}
