package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sync-engine/internal/apperrors"
	"sync-engine/internal/models"
)

// MappingStore persists canonical-to-platform links. Mappings are never
// deleted; ignore decisions flip them to disabled.
type MappingStore interface {
	Get(ctx context.Context, connectionID uuid.UUID, platformProductID string) (*models.PlatformProductMapping, error)
	GetByPlatformVariant(ctx context.Context, connectionID uuid.UUID, platformVariantID string) (*models.PlatformProductMapping, error)
	GetByVariantAndPlatformProduct(ctx context.Context, variantID uuid.UUID, platformProductID string, connectionID uuid.UUID) (*models.PlatformProductMapping, error)
	ListByConnection(ctx context.Context, connectionID uuid.UUID, onlyActive bool) ([]models.PlatformProductMapping, error)
	Upsert(ctx context.Context, mapping *models.PlatformProductMapping) error
	Update(ctx context.Context, id uuid.UUID, patch map[string]interface{}) error
}

// MappingRepository is the gorm-backed MappingStore.
type MappingRepository struct {
	db *gorm.DB
}

var _ MappingStore = (*MappingRepository)(nil)

// NewMappingRepository creates a new mapping repository
func NewMappingRepository(db *gorm.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// Get returns the first mapping for a platform product on a connection.
func (r *MappingRepository) Get(ctx context.Context, connectionID uuid.UUID, platformProductID string) (*models.PlatformProductMapping, error) {
	var mapping models.PlatformProductMapping
	err := r.db.WithContext(ctx).
		Where("connection_id = ? AND platform_product_id = ?", connectionID, platformProductID).
		First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Newf(apperrors.KindNotFound, "no mapping for platform product %s", platformProductID)
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *MappingRepository) GetByPlatformVariant(ctx context.Context, connectionID uuid.UUID, platformVariantID string) (*models.PlatformProductMapping, error) {
	var mapping models.PlatformProductMapping
	err := r.db.WithContext(ctx).
		Where("connection_id = ? AND platform_variant_id = ?", connectionID, platformVariantID).
		First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Newf(apperrors.KindNotFound, "no mapping for platform variant %s", platformVariantID)
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *MappingRepository) GetByVariantAndPlatformProduct(ctx context.Context, variantID uuid.UUID, platformProductID string, connectionID uuid.UUID) (*models.PlatformProductMapping, error) {
	var mapping models.PlatformProductMapping
	err := r.db.WithContext(ctx).
		Where("connection_id = ? AND variant_id = ? AND platform_product_id = ?", connectionID, variantID, platformProductID).
		First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Newf(apperrors.KindNotFound, "no mapping for variant %s on product %s", variantID, platformProductID)
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *MappingRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID, onlyActive bool) ([]models.PlatformProductMapping, error) {
	var mappings []models.PlatformProductMapping
	query := r.db.WithContext(ctx).Where("connection_id = ?", connectionID)
	if onlyActive {
		query = query.Where("is_enabled = true AND sync_status <> ?", models.MappingIgnored)
	}
	err := query.Find(&mappings).Error
	return mappings, err
}

// Upsert creates or refreshes the link on (connection_id, variant_id).
func (r *MappingRepository) Upsert(ctx context.Context, mapping *models.PlatformProductMapping) error {
	if mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "connection_id"}, {Name: "variant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"platform_product_id", "platform_variant_id", "platform_sku",
			"sync_status", "is_enabled", "last_synced_at", "platform_specific_data", "updated_at",
		}),
	}).Create(mapping).Error
}

func (r *MappingRepository) Update(ctx context.Context, id uuid.UUID, patch map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&models.PlatformProductMapping{}).
		Where("id = ?", id).
		Updates(patch)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Newf(apperrors.KindNotFound, "mapping %s not found", id)
	}
	return nil
}
