package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sync-engine/internal/adapters"
	"sync-engine/internal/apperrors"
	"sync-engine/internal/models"
	"sync-engine/internal/queue"
)

// fakeReconcileClient serves canned overviews and inventory rows.
type fakeReconcileClient struct {
	overviews    []adapters.ProductOverview
	overviewsErr error
	inventory    []adapters.PlatformInventoryRow
	inventoryErr error
}

var _ adapters.ApiClient = (*fakeReconcileClient)(nil)

func (c *fakeReconcileClient) FetchAll(ctx context.Context) (*adapters.PlatformData, error) {
	return nil, adapters.ErrNotSupported
}

func (c *fakeReconcileClient) FetchProduct(ctx context.Context, platformProductID string) (*adapters.PlatformProduct, error) {
	return nil, adapters.ErrNotSupported
}

func (c *fakeReconcileClient) FetchOverviews(ctx context.Context) ([]adapters.ProductOverview, error) {
	return c.overviews, c.overviewsErr
}

func (c *fakeReconcileClient) FetchInventory(ctx context.Context) ([]adapters.PlatformInventoryRow, error) {
	return c.inventory, c.inventoryErr
}

func (c *fakeReconcileClient) CreateProduct(ctx context.Context, bundle *adapters.ProductBundle) (*adapters.CreateResult, error) {
	return nil, adapters.ErrNotSupported
}

func (c *fakeReconcileClient) UpdateProduct(ctx context.Context, platformProductID string, bundle *adapters.ProductBundle) error {
	return adapters.ErrNotSupported
}

func (c *fakeReconcileClient) DeleteProduct(ctx context.Context, platformProductID string) error {
	return adapters.ErrNotSupported
}

func (c *fakeReconcileClient) SetInventoryLevel(ctx context.Context, platformVariantID, platformLocationID string, quantity int) error {
	return adapters.ErrNotSupported
}

// fakeReconcileAdapter returns the fake client and records single-product
// pulls.
type fakeReconcileAdapter struct {
	*adapters.Placeholder
	client    *fakeReconcileClient
	clientErr error
	pulled    []string
	pullErr   error
}

func newFakeReconcileAdapter(client *fakeReconcileClient) *fakeReconcileAdapter {
	return &fakeReconcileAdapter{
		Placeholder: adapters.NewPlaceholder(models.PlatformShopify),
		client:      client,
	}
}

func (a *fakeReconcileAdapter) GetApiClient(ctx context.Context, conn *models.PlatformConnection) (adapters.ApiClient, error) {
	if a.clientErr != nil {
		return nil, a.clientErr
	}
	return a.client, nil
}

func (a *fakeReconcileAdapter) SyncSingleProductFromPlatform(ctx context.Context, conn *models.PlatformConnection, platformProductID string, userID uuid.UUID) error {
	a.pulled = append(a.pulled, platformProductID)
	return a.pullErr
}

type reconcileFixture struct {
	job         *ReconcileJob
	adapter     *fakeReconcileAdapter
	connections *MockConnectionStore
	inventory   *MockInventoryStore
	mappings    *MockMappingStore
	activity    *RecordingActivityStore
}

func newReconcileFixture(client *fakeReconcileClient) *reconcileFixture {
	f := &reconcileFixture{
		adapter:     newFakeReconcileAdapter(client),
		connections: new(MockConnectionStore),
		inventory:   new(MockInventoryStore),
		mappings:    new(MockMappingStore),
		activity:    new(RecordingActivityStore),
	}
	base := adapters.Base{
		Stores: adapters.Stores{
			Connections: f.connections,
			Inventory:   f.inventory,
			Mappings:    f.mappings,
			Activity:    f.activity,
		},
		Logger: zap.NewNop(),
	}
	registry := adapters.NewRegistry()
	registry.Register(f.adapter)
	f.job = NewReconcileJob(base, registry, nil, zap.NewNop())
	return f
}

func reconcilingConnection() *models.PlatformConnection {
	return &models.PlatformConnection{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		PlatformKind: models.PlatformShopify,
		Status:       models.ConnectionReconciling,
		IsEnabled:    true,
	}
}

func mappingFor(platformProductID, platformVariantID string) models.PlatformProductMapping {
	pvid := platformVariantID
	return models.PlatformProductMapping{
		ID:                uuid.New(),
		VariantID:         uuid.New(),
		PlatformProductID: platformProductID,
		PlatformVariantID: &pvid,
		SyncStatus:        models.MappingLinked,
		IsEnabled:         true,
	}
}

func reconcileJobFor(conn *models.PlatformConnection) *queue.Job {
	connID := conn.ID
	return &queue.Job{Type: queue.JobReconcile, ConnectionID: &connID, UserID: conn.UserID}
}

func TestReconcilePullsNewPlatformProducts(t *testing.T) {
	client := &fakeReconcileClient{
		overviews: []adapters.ProductOverview{
			{PlatformProductID: "p-known", Title: "Known"},
			{PlatformProductID: "p-new", Title: "Brand New"},
			{PlatformProductID: "p-new", Title: "Brand New"}, // duplicate listing
		},
	}
	f := newReconcileFixture(client)
	conn := reconcilingConnection()
	known := mappingFor("p-known", "v-known")

	f.connections.On("GetByID", mock.Anything, conn.ID).Return(conn, nil)
	f.connections.On("SetSyncTimes", mock.Anything, conn.ID, mock.Anything, mock.Anything).Return(nil)
	f.connections.On("TransitionStatus", mock.Anything, conn.ID,
		[]models.ConnectionStatus{models.ConnectionReconciling}, models.ConnectionActive).Return(nil)
	f.mappings.On("ListByConnection", mock.Anything, conn.ID, true).
		Return([]models.PlatformProductMapping{known}, nil)

	err := f.job.Process(context.Background(), reconcileJobFor(conn))
	require.NoError(t, err)

	assert.Equal(t, []string{"p-new"}, f.adapter.pulled, "only the unmapped product is pulled, once")
	assert.Contains(t, f.activity.EventTypes(), models.EventReconcileNewProduct)
}

func TestReconcileFlagsMissingProductsWithoutDisabling(t *testing.T) {
	client := &fakeReconcileClient{
		overviews: []adapters.ProductOverview{{PlatformProductID: "p-1", Title: "Still There"}},
	}
	f := newReconcileFixture(client)
	conn := reconcilingConnection()
	present := mappingFor("p-1", "v-1")
	vanished := mappingFor("p-gone", "v-gone")

	f.connections.On("GetByID", mock.Anything, conn.ID).Return(conn, nil)
	f.connections.On("SetSyncTimes", mock.Anything, conn.ID, mock.Anything, mock.Anything).Return(nil)
	f.connections.On("TransitionStatus", mock.Anything, conn.ID,
		[]models.ConnectionStatus{models.ConnectionReconciling}, models.ConnectionActive).Return(nil)
	f.mappings.On("ListByConnection", mock.Anything, conn.ID, true).
		Return([]models.PlatformProductMapping{present, vanished}, nil)

	err := f.job.Process(context.Background(), reconcileJobFor(conn))
	require.NoError(t, err)

	var warning *models.ActivityLog
	for i := range f.activity.Entries {
		if f.activity.Entries[i].EventType == models.EventReconcileMissing {
			warning = &f.activity.Entries[i]
		}
	}
	require.NotNil(t, warning)
	assert.Equal(t, models.ActivityWarning, warning.Status)
	assert.Equal(t, vanished.ID.String(), warning.EntityID)
	f.mappings.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileRefreshesInventoryForMappedVariants(t *testing.T) {
	updatedAt := time.Now().Add(-time.Hour).UTC()
	client := &fakeReconcileClient{
		overviews: []adapters.ProductOverview{{PlatformProductID: "p-1", Title: "T"}},
		inventory: []adapters.PlatformInventoryRow{
			{PlatformVariantID: "v-1", PlatformLocationID: "loc-1", Quantity: 12, UpdatedAt: updatedAt},
			{PlatformVariantID: "v-unmapped", PlatformLocationID: "loc-1", Quantity: 99},
		},
	}
	f := newReconcileFixture(client)
	conn := reconcilingConnection()
	mapping := mappingFor("p-1", "v-1")

	f.connections.On("GetByID", mock.Anything, conn.ID).Return(conn, nil)
	f.connections.On("SetSyncTimes", mock.Anything, conn.ID, mock.Anything, mock.Anything).Return(nil)
	f.connections.On("TransitionStatus", mock.Anything, conn.ID,
		[]models.ConnectionStatus{models.ConnectionReconciling}, models.ConnectionActive).Return(nil)
	f.mappings.On("ListByConnection", mock.Anything, conn.ID, true).
		Return([]models.PlatformProductMapping{mapping}, nil)

	var saved []models.InventoryLevel
	f.inventory.On("SaveBulkLevels", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).([]models.InventoryLevel)
	}).Return(nil)

	err := f.job.Process(context.Background(), reconcileJobFor(conn))
	require.NoError(t, err)

	require.Len(t, saved, 1, "rows for unmapped platform variants are dropped")
	assert.Equal(t, mapping.VariantID, saved[0].VariantID)
	assert.Equal(t, conn.ID, saved[0].ConnectionID)
	assert.Equal(t, 12, saved[0].Quantity)
	require.NotNil(t, saved[0].LastPlatformUpdateAt)
	assert.Equal(t, updatedAt, *saved[0].LastPlatformUpdateAt)
}

func TestReconcileSkipsDisabledConnection(t *testing.T) {
	f := newReconcileFixture(&fakeReconcileClient{})
	conn := reconcilingConnection()
	conn.IsEnabled = false

	f.connections.On("GetByID", mock.Anything, conn.ID).Return(conn, nil)

	err := f.job.Process(context.Background(), reconcileJobFor(conn))
	require.NoError(t, err)

	assert.Contains(t, f.activity.EventTypes(), models.EventReconcileSkipped)
	assert.Empty(t, f.adapter.pulled)
	f.connections.AssertNotCalled(t, "SetSyncTimes", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileFailureFlipsConnectionToError(t *testing.T) {
	client := &fakeReconcileClient{
		overviewsErr: apperrors.New(apperrors.KindPlatformTransient, "platform is down"),
	}
	f := newReconcileFixture(client)
	conn := reconcilingConnection()

	f.connections.On("GetByID", mock.Anything, conn.ID).Return(conn, nil)
	f.connections.On("SetSyncTimes", mock.Anything, conn.ID, mock.Anything, mock.Anything).Return(nil)
	f.connections.On("TransitionStatus", mock.Anything, conn.ID,
		[]models.ConnectionStatus{models.ConnectionReconciling}, models.ConnectionError).Return(nil)

	err := f.job.Process(context.Background(), reconcileJobFor(conn))
	require.Error(t, err)

	f.connections.AssertExpectations(t)
	assert.Contains(t, f.activity.EventTypes(), models.EventSyncFailed)
}

func TestReconcileAuthFailureLogsAuthError(t *testing.T) {
	client := &fakeReconcileClient{}
	f := newReconcileFixture(client)
	f.adapter.clientErr = apperrors.New(apperrors.KindAuth, "token revoked")
	conn := reconcilingConnection()

	f.connections.On("GetByID", mock.Anything, conn.ID).Return(conn, nil)
	f.connections.On("SetSyncTimes", mock.Anything, conn.ID, mock.Anything, mock.Anything).Return(nil)
	f.connections.On("TransitionStatus", mock.Anything, conn.ID,
		[]models.ConnectionStatus{models.ConnectionReconciling}, models.ConnectionError).Return(nil)

	err := f.job.Process(context.Background(), reconcileJobFor(conn))
	require.Error(t, err)
	assert.Contains(t, f.activity.EventTypes(), models.EventAuthError)
}
