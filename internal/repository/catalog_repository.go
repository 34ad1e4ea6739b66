package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sync-engine/internal/apperrors"
	"sync-engine/internal/models"
)

// CatalogStore persists canonical products, variants and images.
//
// Within one job, products must be saved before variants, and variants
// before images/inventory/mappings; callers thread a temp-id map
// through the batch.
type CatalogStore interface {
	SaveProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, userID, id uuid.UUID) (*models.Product, error)
	GetVariant(ctx context.Context, userID, id uuid.UUID) (*models.ProductVariant, error)
	FindVariantsByUser(ctx context.Context, userID uuid.UUID) ([]models.ProductVariant, error)
	SaveVariants(ctx context.Context, variants []models.ProductVariant) ([]models.ProductVariant, error)
	UpdateVariant(ctx context.Context, variant *models.ProductVariant) error
	SaveVariantImages(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, urls []string) error
	ArchiveVariant(ctx context.Context, userID, id uuid.UUID) error
}

// CatalogRepository is the gorm-backed CatalogStore.
type CatalogRepository struct {
	db *gorm.DB
}

var _ CatalogStore = (*CatalogRepository)(nil)

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) SaveProduct(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Save(product).Error
}

func (r *CatalogRepository) GetProduct(ctx context.Context, userID, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants").
		Preload("Images").
		First(&product, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Newf(apperrors.KindNotFound, "product %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *CatalogRepository) GetVariant(ctx context.Context, userID, id uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.db.WithContext(ctx).First(&variant, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Newf(apperrors.KindNotFound, "variant %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *CatalogRepository) FindVariantsByUser(ctx context.Context, userID uuid.UUID) ([]models.ProductVariant, error) {
	var variants []models.ProductVariant
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_archived = false", userID).
		Find(&variants).Error
	return variants, err
}

// SaveVariants batch-upserts on (user_id, sku). Variants without a SKU
// are plain inserts; the caller is expected to have minted temp SKUs.
func (r *CatalogRepository) SaveVariants(ctx context.Context, variants []models.ProductVariant) ([]models.ProductVariant, error) {
	if len(variants) == 0 {
		return variants, nil
	}
	for i := range variants {
		if variants[i].ID == uuid.Nil {
			variants[i].ID = uuid.New()
		}
		if variants[i].SKU != nil {
			trimmed := strings.TrimSpace(*variants[i].SKU)
			if trimmed == "" {
				variants[i].SKU = nil
			} else {
				variants[i].SKU = &trimmed
			}
		}
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "price", "compare_at_price", "cost",
			"barcode", "weight", "weight_unit", "options", "updated_at",
		}),
	}).Create(&variants).Error
	if err != nil {
		return nil, err
	}

	// Re-read by (user_id, sku) so conflicting rows come back with their
	// real ids instead of the ids minted above.
	for i := range variants {
		if variants[i].SKU == nil {
			continue
		}
		var persisted models.ProductVariant
		if err := r.db.WithContext(ctx).
			Where("user_id = ? AND sku = ?", variants[i].UserID, *variants[i].SKU).
			First(&persisted).Error; err == nil {
			variants[i] = persisted
		}
	}
	return variants, nil
}

// UpdateVariant writes an already-persisted variant back by primary key.
func (r *CatalogRepository) UpdateVariant(ctx context.Context, variant *models.ProductVariant) error {
	if variant.ID == uuid.Nil {
		return apperrors.New(apperrors.KindValidation, "variant has no id")
	}
	return r.db.WithContext(ctx).Save(variant).Error
}

func (r *CatalogRepository) SaveVariantImages(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, urls []string) error {
	for pos, url := range urls {
		if url == "" {
			continue
		}
		image := models.ProductImage{
			ID:        uuid.New(),
			ProductID: productID,
			VariantID: variantID,
			URL:       url,
			Position:  pos,
		}
		if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&image).Error; err != nil {
			return err
		}
	}
	return nil
}

// ArchiveVariant soft-deletes; mappings referencing the variant are
// disabled rather than removed.
func (r *CatalogRepository) ArchiveVariant(ctx context.Context, userID, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ProductVariant{}).
			Where("id = ? AND user_id = ?", id, userID).
			Update("is_archived", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.Newf(apperrors.KindNotFound, "variant %s not found", id)
		}
		return tx.Model(&models.PlatformProductMapping{}).
			Where("variant_id = ?", id).
			Update("is_enabled", false).Error
	})
}
