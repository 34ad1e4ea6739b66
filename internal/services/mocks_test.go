package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"sync-engine/internal/models"
	"sync-engine/internal/repository"
)

// MockConnectionStore is a mock implementation of ConnectionStore
type MockConnectionStore struct {
	mock.Mock
}

var _ repository.ConnectionStore = (*MockConnectionStore)(nil)

func (m *MockConnectionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.PlatformConnection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlatformConnection), args.Error(1)
}

func (m *MockConnectionStore) GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.PlatformConnection, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlatformConnection), args.Error(1)
}

func (m *MockConnectionStore) FindByIdentifier(ctx context.Context, kind models.PlatformKind, metaKey, identifier string) ([]models.PlatformConnection, error) {
	args := m.Called(ctx, kind, metaKey, identifier)
	return args.Get(0).([]models.PlatformConnection), args.Error(1)
}

func (m *MockConnectionStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PlatformConnection, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.PlatformConnection), args.Error(1)
}

func (m *MockConnectionStore) ListActive(ctx context.Context) ([]models.PlatformConnection, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.PlatformConnection), args.Error(1)
}

func (m *MockConnectionStore) Upsert(ctx context.Context, conn *models.PlatformConnection) error {
	args := m.Called(ctx, conn)
	if args.Error(0) == nil && conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockConnectionStore) Save(ctx context.Context, conn *models.PlatformConnection) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

func (m *MockConnectionStore) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.ConnectionStatus, to models.ConnectionStatus) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *MockConnectionStore) MergeMetadata(ctx context.Context, id uuid.UUID, patch map[string]interface{}) error {
	args := m.Called(ctx, id, patch)
	return args.Error(0)
}

func (m *MockConnectionStore) SetSyncTimes(ctx context.Context, id uuid.UUID, attemptAt, successAt *time.Time) error {
	args := m.Called(ctx, id, attemptAt, successAt)
	return args.Error(0)
}

func (m *MockConnectionStore) Disable(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockCatalogStore is a mock implementation of CatalogStore
type MockCatalogStore struct {
	mock.Mock
}

var _ repository.CatalogStore = (*MockCatalogStore)(nil)

func (m *MockCatalogStore) SaveProduct(ctx context.Context, product *models.Product) error {
	args := m.Called(ctx, product)
	if args.Error(0) == nil && product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockCatalogStore) GetProduct(ctx context.Context, userID, id uuid.UUID) (*models.Product, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockCatalogStore) GetVariant(ctx context.Context, userID, id uuid.UUID) (*models.ProductVariant, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProductVariant), args.Error(1)
}

func (m *MockCatalogStore) FindVariantsByUser(ctx context.Context, userID uuid.UUID) ([]models.ProductVariant, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.ProductVariant), args.Error(1)
}

func (m *MockCatalogStore) SaveVariants(ctx context.Context, variants []models.ProductVariant) ([]models.ProductVariant, error) {
	args := m.Called(ctx, variants)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	saved := args.Get(0).([]models.ProductVariant)
	for i := range saved {
		if saved[i].ID == uuid.Nil {
			saved[i].ID = uuid.New()
		}
	}
	return saved, args.Error(1)
}

func (m *MockCatalogStore) UpdateVariant(ctx context.Context, variant *models.ProductVariant) error {
	args := m.Called(ctx, variant)
	return args.Error(0)
}

func (m *MockCatalogStore) SaveVariantImages(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, urls []string) error {
	args := m.Called(ctx, productID, variantID, urls)
	return args.Error(0)
}

func (m *MockCatalogStore) ArchiveVariant(ctx context.Context, userID, id uuid.UUID) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

// MockInventoryStore is a mock implementation of InventoryStore
type MockInventoryStore struct {
	mock.Mock
}

var _ repository.InventoryStore = (*MockInventoryStore)(nil)

func (m *MockInventoryStore) SaveBulkLevels(ctx context.Context, levels []models.InventoryLevel) error {
	args := m.Called(ctx, levels)
	return args.Error(0)
}

func (m *MockInventoryStore) UpdateLevel(ctx context.Context, level *models.InventoryLevel) error {
	args := m.Called(ctx, level)
	return args.Error(0)
}

func (m *MockInventoryStore) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]models.InventoryLevel, error) {
	args := m.Called(ctx, connectionID)
	return args.Get(0).([]models.InventoryLevel), args.Error(1)
}

func (m *MockInventoryStore) GetLevel(ctx context.Context, variantID, connectionID uuid.UUID, platformLocationID string) (*models.InventoryLevel, error) {
	args := m.Called(ctx, variantID, connectionID, platformLocationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventoryLevel), args.Error(1)
}

// MockMappingStore is a mock implementation of MappingStore
type MockMappingStore struct {
	mock.Mock
}

var _ repository.MappingStore = (*MockMappingStore)(nil)

func (m *MockMappingStore) Get(ctx context.Context, connectionID uuid.UUID, platformProductID string) (*models.PlatformProductMapping, error) {
	args := m.Called(ctx, connectionID, platformProductID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlatformProductMapping), args.Error(1)
}

func (m *MockMappingStore) GetByPlatformVariant(ctx context.Context, connectionID uuid.UUID, platformVariantID string) (*models.PlatformProductMapping, error) {
	args := m.Called(ctx, connectionID, platformVariantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlatformProductMapping), args.Error(1)
}

func (m *MockMappingStore) GetByVariantAndPlatformProduct(ctx context.Context, variantID uuid.UUID, platformProductID string, connectionID uuid.UUID) (*models.PlatformProductMapping, error) {
	args := m.Called(ctx, variantID, platformProductID, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlatformProductMapping), args.Error(1)
}

func (m *MockMappingStore) ListByConnection(ctx context.Context, connectionID uuid.UUID, onlyActive bool) ([]models.PlatformProductMapping, error) {
	args := m.Called(ctx, connectionID, onlyActive)
	return args.Get(0).([]models.PlatformProductMapping), args.Error(1)
}

func (m *MockMappingStore) Upsert(ctx context.Context, mapping *models.PlatformProductMapping) error {
	args := m.Called(ctx, mapping)
	if args.Error(0) == nil && mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockMappingStore) Update(ctx context.Context, id uuid.UUID, patch map[string]interface{}) error {
	args := m.Called(ctx, id, patch)
	return args.Error(0)
}

// RecordingActivityStore captures audit entries for assertions without
// mock expectations; jobs log liberally and tests only care about a few
// entries.
type RecordingActivityStore struct {
	mu      sync.Mutex
	Entries []models.ActivityLog
}

var _ repository.ActivityStore = (*RecordingActivityStore)(nil)

func (s *RecordingActivityStore) LogActivity(ctx context.Context, entry *models.ActivityLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Entries = append(s.Entries, *entry)
}

func (s *RecordingActivityStore) List(ctx context.Context, userID uuid.UUID, connectionID *uuid.UUID, limit int) ([]models.ActivityLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ActivityLog, len(s.Entries))
	copy(out, s.Entries)
	return out, nil
}

// EventTypes lists the recorded event types in order.
func (s *RecordingActivityStore) EventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		types = append(types, e.EventType)
	}
	return types
}
