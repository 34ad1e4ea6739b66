package models

import (
	"time"

	"github.com/google/uuid"
)

// Activity log statuses
const (
	ActivityInfo    = "Info"
	ActivitySuccess = "Success"
	ActivityWarning = "Warning"
	ActivityFailed  = "Failed"
)

// Well-known event types recorded by the engine.
const (
	EventScanCompleted        = "SCAN_COMPLETED"
	EventScanFailed           = "SCAN_FAILED"
	EventSyncCompleted        = "SYNC_COMPLETED"
	EventSyncFailed           = "SYNC_FAILED"
	EventSyncItemFailed       = "SYNC_ITEM_FAILED"
	EventIgnoreDecision       = "IGNORE_DECISION"
	EventCreateDisabled       = "CREATE_DISABLED"
	EventMissingPlatformData  = "MISSING_PLATFORM_DATA"
	EventAuthError            = "AUTH_ERROR"
	EventReconcileNewProduct  = "RECONCILE_NEW_PRODUCT"
	EventReconcileMissing     = "RECONCILE_MISSING_PRODUCT"
	EventReconcileSkipped     = "RECONCILE_SKIPPED"
	EventWebhookReceived      = "WEBHOOK_RECEIVED"
	EventWebhookProcessed     = "WEBHOOK_PROCESSED"
	EventWebhookFailed        = "WEBHOOK_PROCESSING_FAILED"
	EventWebhookDuplicate     = "WEBHOOK_DUPLICATE"
	EventConnectionDisabled   = "CONNECTION_DISABLED"
)

// ActivityLog is an append-only audit record.
type ActivityLog struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_activity_user" json:"userId"`
	ConnectionID *uuid.UUID `gorm:"type:uuid;index:idx_activity_connection" json:"connectionId,omitempty"`

	EntityType string `gorm:"type:varchar(100);not null" json:"entityType"`
	EntityID   string `gorm:"type:varchar(255)" json:"entityId,omitempty"`
	EventType  string `gorm:"type:varchar(100);not null;index:idx_activity_event" json:"eventType"`
	Status     string `gorm:"type:varchar(50);not null" json:"status"`
	Message    string `gorm:"type:text" json:"message"`

	Details JSONB `gorm:"type:jsonb" json:"details,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP;index:idx_activity_created" json:"createdAt"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}
