package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sync-engine/internal/apperrors"
	"sync-engine/internal/models"
)

// ConnectionStore is the gateway for platform connections. The status
// transition is compare-and-set: the connection row is the only
// writer-coordination point between the coordinator and jobs.
type ConnectionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PlatformConnection, error)
	GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.PlatformConnection, error)
	FindByIdentifier(ctx context.Context, kind models.PlatformKind, metaKey, identifier string) ([]models.PlatformConnection, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PlatformConnection, error)
	ListActive(ctx context.Context) ([]models.PlatformConnection, error)
	Upsert(ctx context.Context, conn *models.PlatformConnection) error
	Save(ctx context.Context, conn *models.PlatformConnection) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from []models.ConnectionStatus, to models.ConnectionStatus) error
	MergeMetadata(ctx context.Context, id uuid.UUID, patch map[string]interface{}) error
	SetSyncTimes(ctx context.Context, id uuid.UUID, attemptAt, successAt *time.Time) error
	Disable(ctx context.Context, id uuid.UUID) error
}

// ConnectionRepository is the gorm-backed ConnectionStore.
type ConnectionRepository struct {
	db *gorm.DB
}

var _ ConnectionStore = (*ConnectionRepository)(nil)

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PlatformConnection, error) {
	var conn models.PlatformConnection
	err := r.db.WithContext(ctx).First(&conn, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Newf(apperrors.KindNotFound, "connection %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *ConnectionRepository) GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.PlatformConnection, error) {
	var conn models.PlatformConnection
	err := r.db.WithContext(ctx).First(&conn, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Newf(apperrors.KindNotFound, "connection %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// FindByIdentifier locates connections by the platform-specific unique
// key stored in the metadata bag (e.g. metaKey "shop" for Shopify).
func (r *ConnectionRepository) FindByIdentifier(ctx context.Context, kind models.PlatformKind, metaKey, identifier string) ([]models.PlatformConnection, error) {
	var conns []models.PlatformConnection
	err := r.db.WithContext(ctx).
		Where("platform_kind = ? AND is_enabled = true AND platform_specific_data ->> ? = ?", kind, metaKey, identifier).
		Find(&conns).Error
	return conns, err
}

func (r *ConnectionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PlatformConnection, error) {
	var conns []models.PlatformConnection
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&conns).Error
	return conns, err
}

func (r *ConnectionRepository) ListActive(ctx context.Context) ([]models.PlatformConnection, error) {
	var conns []models.PlatformConnection
	err := r.db.WithContext(ctx).
		Where("is_enabled = true AND status = ?", models.ConnectionActive).
		Find(&conns).Error
	return conns, err
}

// Upsert creates the connection, or updates the existing row when the
// same (user, platform, unique identifier) is connected again.
func (r *ConnectionRepository) Upsert(ctx context.Context, conn *models.PlatformConnection) error {
	identifier := conn.UniqueIdentifier()
	if identifier != "" {
		var existing models.PlatformConnection
		err := r.db.WithContext(ctx).
			Where("user_id = ? AND platform_kind = ? AND (platform_specific_data ->> 'shop' = ? OR platform_specific_data ->> 'merchantId' = ?)",
				conn.UserID, conn.PlatformKind, identifier, identifier).
			First(&existing).Error
		if err == nil {
			conn.ID = existing.ID
			conn.CreatedAt = existing.CreatedAt
			return r.db.WithContext(ctx).Save(conn).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(conn).Error
}

func (r *ConnectionRepository) Save(ctx context.Context, conn *models.PlatformConnection) error {
	return r.db.WithContext(ctx).Save(conn).Error
}

// TransitionStatus performs a compare-and-set on the status column.
// Zero affected rows means a concurrent transition won the race.
func (r *ConnectionRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.ConnectionStatus, to models.ConnectionStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.PlatformConnection{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Newf(apperrors.KindConflict, "connection %s is not in any of %v", id, from)
	}
	return nil
}

// MergeMetadata merges patch keys into PlatformSpecificData without
// clobbering unrelated keys.
func (r *ConnectionRepository) MergeMetadata(ctx context.Context, id uuid.UUID, patch map[string]interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conn models.PlatformConnection
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&conn, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.Newf(apperrors.KindNotFound, "connection %s not found", id)
			}
			return err
		}
		if conn.PlatformSpecificData == nil {
			conn.PlatformSpecificData = models.JSONB{}
		}
		for k, v := range patch {
			if v == nil {
				delete(conn.PlatformSpecificData, k)
				continue
			}
			conn.PlatformSpecificData.Set(k, v)
		}
		return tx.Model(&conn).Update("platform_specific_data", conn.PlatformSpecificData).Error
	})
}

func (r *ConnectionRepository) SetSyncTimes(ctx context.Context, id uuid.UUID, attemptAt, successAt *time.Time) error {
	updates := map[string]interface{}{}
	if attemptAt != nil {
		updates["last_sync_attempt_at"] = *attemptAt
	}
	if successAt != nil {
		updates["last_sync_success_at"] = *successAt
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.PlatformConnection{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Disable soft-disconnects: the row survives for audit, webhooks stop
// resolving to it and running jobs abort on their next status check.
func (r *ConnectionRepository) Disable(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.PlatformConnection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_enabled": false, "status": models.ConnectionInactive})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Newf(apperrors.KindNotFound, "connection %s not found", id)
	}
	return nil
}
