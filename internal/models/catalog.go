package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the owner-scoped grouping for variants sharing
// title/description/images.
type Product struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index:idx_products_user" json:"userId"`
	Title       *string   `gorm:"type:varchar(512)" json:"title,omitempty"`
	Description *string   `gorm:"type:text" json:"description,omitempty"`
	IsArchived  bool      `gorm:"default:false" json:"isArchived"`

	PlatformSpecificData JSONB `gorm:"type:jsonb;default:'{}'" json:"platformSpecificData,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`

	Variants []ProductVariant `gorm:"foreignKey:ProductID" json:"variants,omitempty"`
	Images   []ProductImage   `gorm:"foreignKey:ProductID" json:"images,omitempty"`
}

func (Product) TableName() string {
	return "products"
}

// ProductVariant is the atomic sellable unit.
//
// Invariants: UserID matches the owning product's UserID; (UserID, SKU)
// is unique when SKU is non-null.
type ProductVariant struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index:idx_variants_product" json:"productId"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_variants_user_sku,priority:1" json:"userId"`

	SKU     *string `gorm:"type:varchar(255);uniqueIndex:idx_variants_user_sku,priority:2" json:"sku,omitempty"`
	Barcode *string `gorm:"type:varchar(255);index:idx_variants_barcode" json:"barcode,omitempty"`

	Title       string  `gorm:"type:varchar(512)" json:"title"`
	Description *string `gorm:"type:text" json:"description,omitempty"`

	Price          float64  `json:"price"`
	CompareAtPrice *float64 `json:"compareAtPrice,omitempty"`
	Cost           *float64 `json:"cost,omitempty"`

	Weight     *float64 `json:"weight,omitempty"`
	WeightUnit string   `gorm:"type:varchar(20)" json:"weightUnit,omitempty"`

	// name -> value; values must be a subset of the options declared on
	// the owning product.
	Options JSONB `gorm:"type:jsonb;default:'{}'" json:"options,omitempty"`

	RequiresShipping bool    `gorm:"default:true" json:"requiresShipping"`
	Taxable          bool    `gorm:"default:true" json:"taxable"`
	TaxCode          *string `gorm:"type:varchar(50)" json:"taxCode,omitempty"`

	ImageID    *uuid.UUID `gorm:"type:uuid" json:"imageId,omitempty"`
	IsArchived bool       `gorm:"default:false" json:"isArchived"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (ProductVariant) TableName() string {
	return "product_variants"
}

// ProductImage is one image attached to a product, optionally pinned to
// a specific variant.
type ProductImage struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProductID uuid.UUID  `gorm:"type:uuid;not null;index:idx_images_product" json:"productId"`
	VariantID *uuid.UUID `gorm:"type:uuid;index:idx_images_variant" json:"variantId,omitempty"`
	URL       string     `gorm:"type:varchar(2048);not null" json:"url"`
	Position  int        `gorm:"default:0" json:"position"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
}

func (ProductImage) TableName() string {
	return "product_images"
}
