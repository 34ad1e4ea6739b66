package repository

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sync-engine/internal/models"
)

// ActivityStore is the append-only audit log. LogActivity never fails
// the caller; persistence errors are logged and swallowed.
type ActivityStore interface {
	LogActivity(ctx context.Context, entry *models.ActivityLog)
	List(ctx context.Context, userID uuid.UUID, connectionID *uuid.UUID, limit int) ([]models.ActivityLog, error)
}

// ActivityRepository is the gorm-backed ActivityStore.
type ActivityRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ ActivityStore = (*ActivityRepository)(nil)

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *gorm.DB, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{db: db, logger: logger}
}

func (r *ActivityRepository) LogActivity(ctx context.Context, entry *models.ActivityLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.logger.Warn("failed to persist activity log entry",
			zap.String("eventType", entry.EventType),
			zap.Error(err))
	}
}

func (r *ActivityRepository) List(ctx context.Context, userID uuid.UUID, connectionID *uuid.UUID, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if connectionID != nil {
		query = query.Where("connection_id = ?", *connectionID)
	}
	var entries []models.ActivityLog
	err := query.Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
