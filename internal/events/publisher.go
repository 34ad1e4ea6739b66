package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects for sync lifecycle events
const (
	SubjectSyncCompleted   = "marketplace.sync.completed"
	SubjectSyncFailed      = "marketplace.sync.failed"
	SubjectInventoryUpdate = "inventory.level.updated"
)

// SyncEvent is emitted when a scan/sync/reconcile job finishes.
type SyncEvent struct {
	ConnectionID uuid.UUID `json:"connectionId"`
	UserID       uuid.UUID `json:"userId"`
	JobType      string    `json:"jobType"`
	JobID        string    `json:"jobId,omitempty"`
	Processed    int       `json:"processed,omitempty"`
	Succeeded    int       `json:"succeeded,omitempty"`
	Failed       int       `json:"failed,omitempty"`
	Error        string    `json:"error,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// InventoryEvent is emitted when a platform-side quantity change lands
// in the canonical store.
type InventoryEvent struct {
	ConnectionID       uuid.UUID `json:"connectionId"`
	VariantID          uuid.UUID `json:"variantId"`
	PlatformLocationID string    `json:"platformLocationId"`
	Quantity           int       `json:"quantity"`
	OccurredAt         time.Time `json:"occurredAt"`
}

// Publisher emits lifecycle events over NATS. A nil Publisher is valid
// and drops everything, so event wiring stays optional.
type Publisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewPublisher connects to NATS. An empty URL disables publishing.
func NewPublisher(url string, logger *zap.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, logger: logger}, nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	p.nc.Drain()
}

// SyncCompleted publishes a successful job completion.
func (p *Publisher) SyncCompleted(event SyncEvent) {
	p.publish(SubjectSyncCompleted, event)
}

// SyncFailed publishes a failed job.
func (p *Publisher) SyncFailed(event SyncEvent) {
	p.publish(SubjectSyncFailed, event)
}

// InventoryUpdated publishes a canonical inventory change.
func (p *Publisher) InventoryUpdated(event InventoryEvent) {
	p.publish(SubjectInventoryUpdate, event)
}

func (p *Publisher) publish(subject string, event interface{}) {
	if p == nil || p.nc == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("failed to marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
