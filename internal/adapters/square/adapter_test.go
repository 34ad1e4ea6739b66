package square

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sync-engine/internal/adapters"
	"sync-engine/internal/apperrors"
	"sync-engine/internal/models"
	"sync-engine/internal/repository"
)

// stubMappingStore resolves a single platform variant id.
type stubMappingStore struct {
	repository.MappingStore
	mapping *models.PlatformProductMapping
}

func (s *stubMappingStore) GetByPlatformVariant(ctx context.Context, connectionID uuid.UUID, platformVariantID string) (*models.PlatformProductMapping, error) {
	if s.mapping != nil && s.mapping.PlatformVariantID != nil && *s.mapping.PlatformVariantID == platformVariantID {
		return s.mapping, nil
	}
	return nil, apperrors.Newf(apperrors.KindNotFound, "no mapping for platform variant %s", platformVariantID)
}

// stubInventoryStore holds one existing level and records writes.
type stubInventoryStore struct {
	repository.InventoryStore
	existing *models.InventoryLevel
	saved    []models.InventoryLevel
}

func (s *stubInventoryStore) GetLevel(ctx context.Context, variantID, connectionID uuid.UUID, platformLocationID string) (*models.InventoryLevel, error) {
	if s.existing != nil {
		return s.existing, nil
	}
	return nil, apperrors.New(apperrors.KindNotFound, "level not found")
}

func (s *stubInventoryStore) UpdateLevel(ctx context.Context, level *models.InventoryLevel) error {
	s.saved = append(s.saved, *level)
	return nil
}

type stubActivityStore struct {
	entries []models.ActivityLog
}

func (s *stubActivityStore) LogActivity(ctx context.Context, entry *models.ActivityLog) {
	s.entries = append(s.entries, *entry)
}

func (s *stubActivityStore) List(ctx context.Context, userID uuid.UUID, connectionID *uuid.UUID, limit int) ([]models.ActivityLog, error) {
	return s.entries, nil
}

type inventoryFixture struct {
	adapter   *Adapter
	conn      *models.PlatformConnection
	mapping   *models.PlatformProductMapping
	inventory *stubInventoryStore
	activity  *stubActivityStore
}

func newInventoryFixture(existing *models.InventoryLevel) *inventoryFixture {
	pvid := "sq-var-1"
	mapping := &models.PlatformProductMapping{
		ID:                uuid.New(),
		VariantID:         uuid.New(),
		PlatformProductID: "sq-prod-1",
		PlatformVariantID: &pvid,
		SyncStatus:        models.MappingLinked,
		IsEnabled:         true,
	}
	if existing != nil {
		existing.VariantID = mapping.VariantID
	}
	inventory := &stubInventoryStore{existing: existing}
	activity := &stubActivityStore{}
	base := adapters.Base{
		Stores: adapters.Stores{
			Mappings:  &stubMappingStore{mapping: mapping},
			Inventory: inventory,
			Activity:  activity,
		},
		Logger: zap.NewNop(),
	}
	return &inventoryFixture{
		adapter: NewAdapter(base),
		conn: &models.PlatformConnection{
			ID:           uuid.New(),
			UserID:       uuid.New(),
			PlatformKind: models.PlatformSquare,
			IsEnabled:    true,
		},
		mapping:   mapping,
		inventory: inventory,
		activity:  activity,
	}
}

func countPayload(catalogObjectID, quantity, calculatedAt, createdAt string) []byte {
	calc := ""
	if calculatedAt != "" {
		calc = fmt.Sprintf(`,"calculated_at":%q`, calculatedAt)
	}
	created := ""
	if createdAt != "" {
		created = fmt.Sprintf(`,"created_at":%q`, createdAt)
	}
	return []byte(fmt.Sprintf(`{
		"type":"inventory.count.updated"%s,
		"data":{"object":{"inventory_counts":[
			{"catalog_object_id":%q,"location_id":"loc-1","quantity":%q,"state":"IN_STOCK"%s}
		]}}
	}`, created, catalogObjectID, quantity, calc))
}

func TestProcessWebhookAppliesInventoryCount(t *testing.T) {
	older := time.Now().Add(-2 * time.Hour).UTC()
	f := newInventoryFixture(&models.InventoryLevel{
		Quantity:             3,
		LastPlatformUpdateAt: &older,
	})
	calculatedAt := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)

	err := f.adapter.ProcessWebhook(context.Background(), f.conn,
		countPayload("sq-var-1", "7", calculatedAt.Format(time.RFC3339), ""), nil, "wh-1")
	require.NoError(t, err)

	require.Len(t, f.inventory.saved, 1)
	saved := f.inventory.saved[0]
	assert.Equal(t, f.mapping.VariantID, saved.VariantID)
	assert.Equal(t, f.conn.ID, saved.ConnectionID)
	assert.Equal(t, "loc-1", saved.PlatformLocationID)
	assert.Equal(t, 7, saved.Quantity)
	require.NotNil(t, saved.LastPlatformUpdateAt, "the platform timestamp must survive the write")
	assert.True(t, saved.LastPlatformUpdateAt.Equal(calculatedAt))
}

func TestProcessWebhookDiscardsStaleInventoryEvent(t *testing.T) {
	newer := time.Now().UTC()
	f := newInventoryFixture(&models.InventoryLevel{
		Quantity:             50,
		LastPlatformUpdateAt: &newer,
	})
	staleAt := newer.Add(-time.Hour).Format(time.RFC3339)

	err := f.adapter.ProcessWebhook(context.Background(), f.conn,
		countPayload("sq-var-1", "1", staleAt, ""), nil, "wh-2")
	require.NoError(t, err)

	assert.Empty(t, f.inventory.saved, "out-of-order event must not overwrite a newer quantity")
}

func TestProcessWebhookFallsBackToEventCreatedAt(t *testing.T) {
	f := newInventoryFixture(nil)
	createdAt := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)

	err := f.adapter.ProcessWebhook(context.Background(), f.conn,
		countPayload("sq-var-1", "4", "", createdAt.Format(time.RFC3339)), nil, "wh-3")
	require.NoError(t, err)

	require.Len(t, f.inventory.saved, 1)
	require.NotNil(t, f.inventory.saved[0].LastPlatformUpdateAt)
	assert.True(t, f.inventory.saved[0].LastPlatformUpdateAt.Equal(createdAt))
}

func TestProcessWebhookWarnsOnUnmappedVariation(t *testing.T) {
	f := newInventoryFixture(nil)

	err := f.adapter.ProcessWebhook(context.Background(), f.conn,
		countPayload("sq-var-unknown", "4", "", ""), nil, "wh-4")
	require.NoError(t, err)

	assert.Empty(t, f.inventory.saved)
	require.Len(t, f.activity.entries, 1)
	assert.Equal(t, models.EventMissingPlatformData, f.activity.entries[0].EventType)
}
