package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sync-engine/internal/models"
)

// InventoryStore persists per (variant, connection, platform location)
// quantities. Writes are last-writer-wins per row; callers use
// LastPlatformUpdateAt to discard stale events.
type InventoryStore interface {
	SaveBulkLevels(ctx context.Context, levels []models.InventoryLevel) error
	UpdateLevel(ctx context.Context, level *models.InventoryLevel) error
	ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]models.InventoryLevel, error)
	GetLevel(ctx context.Context, variantID, connectionID uuid.UUID, platformLocationID string) (*models.InventoryLevel, error)
}

// InventoryRepository is the gorm-backed InventoryStore.
type InventoryRepository struct {
	db *gorm.DB
}

var _ InventoryStore = (*InventoryRepository)(nil)

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// SaveBulkLevels upserts on the (variant, connection, location) key.
// The whole batch runs in one transaction so concurrent workers
// touching overlapping rows serialize per connection.
func (r *InventoryRepository) SaveBulkLevels(ctx context.Context, levels []models.InventoryLevel) error {
	if len(levels) == 0 {
		return nil
	}
	for i := range levels {
		if levels[i].ID == uuid.Nil {
			levels[i].ID = uuid.New()
		}
		if levels[i].Quantity < 0 {
			levels[i].Quantity = 0
		}
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "variant_id"}, {Name: "connection_id"}, {Name: "platform_location_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "last_platform_update_at", "updated_at"}),
		}).Create(&levels).Error
	})
}

func (r *InventoryRepository) UpdateLevel(ctx context.Context, level *models.InventoryLevel) error {
	return r.SaveBulkLevels(ctx, []models.InventoryLevel{*level})
}

func (r *InventoryRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]models.InventoryLevel, error) {
	var levels []models.InventoryLevel
	err := r.db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Find(&levels).Error
	return levels, err
}

func (r *InventoryRepository) GetLevel(ctx context.Context, variantID, connectionID uuid.UUID, platformLocationID string) (*models.InventoryLevel, error) {
	var level models.InventoryLevel
	err := r.db.WithContext(ctx).
		Where("variant_id = ? AND connection_id = ? AND platform_location_id = ?", variantID, connectionID, platformLocationID).
		First(&level).Error
	if err != nil {
		return nil, err
	}
	return &level, nil
}
