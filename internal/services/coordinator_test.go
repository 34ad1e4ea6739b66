package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sync-engine/internal/apperrors"
	"sync-engine/internal/models"
	"sync-engine/internal/queue"
)

type nopProcessor struct{ jobType queue.JobType }

func (p nopProcessor) Type() queue.JobType                          { return p.jobType }
func (p nopProcessor) Process(ctx context.Context, job *queue.Job) error { return nil }

type coordinatorFixture struct {
	coordinator *Coordinator
	connections *MockConnectionStore
	activity    *RecordingActivityStore
	dispatcher  *queue.Dispatcher
	codec       *CredentialCodec
}

// newCoordinatorFixture wires a coordinator against a never-started
// dispatcher: enqueued jobs sit in the cold channel, which is all these
// tests need.
func newCoordinatorFixture(t *testing.T, processors ...queue.JobProcessor) *coordinatorFixture {
	t.Helper()
	codec, err := NewCredentialCodec("test-secret")
	require.NoError(t, err)

	dispatcher := queue.NewDispatcher(nil, queue.Config{}, nil, zap.NewNop())
	for _, p := range processors {
		dispatcher.Register(p)
	}

	f := &coordinatorFixture{
		connections: new(MockConnectionStore),
		activity:    new(RecordingActivityStore),
		dispatcher:  dispatcher,
		codec:       codec,
	}
	f.coordinator = NewCoordinator(f.connections, f.activity, dispatcher, codec, zap.NewNop())
	return f
}

func pendingConnection(status models.ConnectionStatus) *models.PlatformConnection {
	return &models.PlatformConnection{
		ID:                   uuid.New(),
		UserID:               uuid.New(),
		PlatformKind:         models.PlatformShopify,
		Status:               status,
		IsEnabled:            true,
		SyncRules:            models.DefaultSyncRules(),
		PlatformSpecificData: models.JSONB{},
	}
}

func TestCreateConnectionEncryptsCredentials(t *testing.T) {
	f := newCoordinatorFixture(t)
	var saved *models.PlatformConnection
	f.connections.On("Upsert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*models.PlatformConnection)
	}).Return(nil)

	conn, err := f.coordinator.CreateConnection(context.Background(), CreateConnectionInput{
		UserID:       uuid.New(),
		PlatformKind: models.PlatformShopify,
		DisplayName:  "My Shop",
		Credentials:  map[string]string{"accessToken": "shpat_secret"},
		Metadata:     map[string]interface{}{models.MetaShop: "my-shop.myshopify.com"},
	})
	require.NoError(t, err)
	require.NotNil(t, saved)

	assert.Equal(t, models.ConnectionPending, conn.Status)
	assert.NotContains(t, conn.Credentials, "shpat_secret")

	creds, err := f.codec.Decrypt(conn.Credentials)
	require.NoError(t, err)
	assert.Equal(t, "shpat_secret", creds["accessToken"])
}

func TestCreateConnectionRequiresPlatformKind(t *testing.T) {
	f := newCoordinatorFixture(t)
	_, err := f.coordinator.CreateConnection(context.Background(), CreateConnectionInput{UserID: uuid.New()})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestStartScanEnqueuesAndTracksJob(t *testing.T) {
	f := newCoordinatorFixture(t, nopProcessor{queue.JobInitialScan})
	conn := pendingConnection(models.ConnectionPending)

	f.connections.On("GetForUser", mock.Anything, conn.UserID, conn.ID).Return(conn, nil)
	f.connections.On("TransitionStatus", mock.Anything, conn.ID, mock.Anything, models.ConnectionScanning).Return(nil)
	var meta map[string]interface{}
	f.connections.On("MergeMetadata", mock.Anything, conn.ID, mock.Anything).Run(func(args mock.Arguments) {
		meta = args.Get(2).(map[string]interface{})
	}).Return(nil)

	jobID, err := f.coordinator.StartScan(context.Background(), conn.UserID, conn.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	jobType, connID, _, err := queue.ParseJobID(jobID)
	require.NoError(t, err)
	assert.Equal(t, queue.JobInitialScan, jobType)
	require.NotNil(t, connID)
	assert.Equal(t, conn.ID, *connID)

	require.NotNil(t, meta)
	assert.Equal(t, jobID, meta[models.MetaCurrentJobID])
}

func TestStartScanIsIdempotentWhileScanning(t *testing.T) {
	f := newCoordinatorFixture(t, nopProcessor{queue.JobInitialScan})
	conn := pendingConnection(models.ConnectionScanning)
	conn.PlatformSpecificData[models.MetaCurrentJobID] = "initial-scan-" + conn.ID.String() + "-1700000000000"

	f.connections.On("GetForUser", mock.Anything, conn.UserID, conn.ID).Return(conn, nil)

	jobID, err := f.coordinator.StartScan(context.Background(), conn.UserID, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, conn.CurrentJobID(), jobID)
	f.connections.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStartScanRevertsStatusWhenEnqueueFails(t *testing.T) {
	// No processor registered: enqueue is guaranteed to fail.
	f := newCoordinatorFixture(t)
	conn := pendingConnection(models.ConnectionPending)

	f.connections.On("GetForUser", mock.Anything, conn.UserID, conn.ID).Return(conn, nil)
	f.connections.On("TransitionStatus", mock.Anything, conn.ID, mock.Anything, models.ConnectionScanning).Return(nil)
	f.connections.On("TransitionStatus", mock.Anything, conn.ID, mock.Anything, models.ConnectionError).Return(nil)

	_, err := f.coordinator.StartScan(context.Background(), conn.UserID, conn.ID)
	require.Error(t, err)
	f.connections.AssertCalled(t, "TransitionStatus", mock.Anything, conn.ID,
		[]models.ConnectionStatus{models.ConnectionScanning, models.ConnectionSyncing, models.ConnectionReconciling},
		models.ConnectionError)
}

func TestStartScanRejectsDisabledConnection(t *testing.T) {
	f := newCoordinatorFixture(t, nopProcessor{queue.JobInitialScan})
	conn := pendingConnection(models.ConnectionPending)
	conn.IsEnabled = false

	f.connections.On("GetForUser", mock.Anything, conn.UserID, conn.ID).Return(conn, nil)

	_, err := f.coordinator.StartScan(context.Background(), conn.UserID, conn.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestActivateSyncRequiresConfirmations(t *testing.T) {
	f := newCoordinatorFixture(t, nopProcessor{queue.JobInitialSync})
	conn := pendingConnection(models.ConnectionNeedsReview)

	f.connections.On("GetForUser", mock.Anything, conn.UserID, conn.ID).Return(conn, nil)

	_, err := f.coordinator.ActivateSync(context.Background(), conn.UserID, conn.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestActivateSyncFromNeedsReview(t *testing.T) {
	f := newCoordinatorFixture(t, nopProcessor{queue.JobInitialSync})
	conn := pendingConnection(models.ConnectionNeedsReview)
	conn.PlatformSpecificData[models.MetaMappingConfirmations] = models.MappingConfirmations{}

	f.connections.On("GetForUser", mock.Anything, conn.UserID, conn.ID).Return(conn, nil)
	f.connections.On("TransitionStatus", mock.Anything, conn.ID,
		[]models.ConnectionStatus{models.ConnectionNeedsReview}, models.ConnectionSyncing).Return(nil)
	f.connections.On("MergeMetadata", mock.Anything, conn.ID, mock.Anything).Return(nil)

	jobID, err := f.coordinator.ActivateSync(context.Background(), conn.UserID, conn.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
}

func TestConfirmMappingsValidatesLinkDecisions(t *testing.T) {
	f := newCoordinatorFixture(t)
	conn := pendingConnection(models.ConnectionNeedsReview)
	f.connections.On("GetForUser", mock.Anything, conn.UserID, conn.ID).Return(conn, nil)

	err := f.coordinator.ConfirmMappings(context.Background(), conn.UserID, conn.ID, models.MappingConfirmations{
		ConfirmedMatches: []models.ConfirmedMatch{
			{PlatformProductID: "p-1", Action: models.ActionLink}, // no variant id
		},
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestConfirmMappingsRequiresNeedsReview(t *testing.T) {
	f := newCoordinatorFixture(t)
	conn := pendingConnection(models.ConnectionActive)
	f.connections.On("GetForUser", mock.Anything, conn.UserID, conn.ID).Return(conn, nil)

	err := f.coordinator.ConfirmMappings(context.Background(), conn.UserID, conn.ID, models.MappingConfirmations{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestRequestReconcileOnlyFromActive(t *testing.T) {
	f := newCoordinatorFixture(t, nopProcessor{queue.JobReconcile})
	conn := pendingConnection(models.ConnectionScanning)

	f.connections.On("GetForUser", mock.Anything, conn.UserID, conn.ID).Return(conn, nil)
	f.connections.On("TransitionStatus", mock.Anything, conn.ID,
		[]models.ConnectionStatus{models.ConnectionActive}, models.ConnectionReconciling).
		Return(apperrors.New(apperrors.KindConflict, "not active"))

	_, err := f.coordinator.RequestReconcile(context.Background(), conn.UserID, conn.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestDisconnectDisablesAndAudits(t *testing.T) {
	f := newCoordinatorFixture(t)
	conn := pendingConnection(models.ConnectionActive)

	f.connections.On("GetForUser", mock.Anything, conn.UserID, conn.ID).Return(conn, nil)
	f.connections.On("Disable", mock.Anything, conn.ID).Return(nil)

	err := f.coordinator.Disconnect(context.Background(), conn.UserID, conn.ID)
	require.NoError(t, err)
	assert.Contains(t, f.activity.EventTypes(), models.EventConnectionDisabled)
}

func TestGetSyncPreviewPrefersConfirmations(t *testing.T) {
	f := newCoordinatorFixture(t)
	conn := pendingConnection(models.ConnectionNeedsReview)
	variantID := uuid.New()
	conn.PlatformSpecificData[models.MetaMappingConfirmations] = models.MappingConfirmations{
		ConfirmedMatches: []models.ConfirmedMatch{
			{PlatformProductID: "p-1", PlatformTitle: "Widget", Action: models.ActionLink, SssyncVariantID: &variantID},
			{PlatformProductID: "p-2", Action: models.ActionIgnore},
		},
	}
	f.connections.On("GetForUser", mock.Anything, conn.UserID, conn.ID).Return(conn, nil)

	preview, err := f.coordinator.GetSyncPreview(context.Background(), conn.UserID, conn.ID)
	require.NoError(t, err)
	require.Len(t, preview.Actions, 2)
	assert.Equal(t, models.ActionLink, preview.Actions[0].Type)
	assert.Contains(t, preview.Actions[0].Description, "Widget")
	assert.Equal(t, models.ActionIgnore, preview.Actions[1].Type)
}

func TestSaveDraftMappingsRequiresNeedsReview(t *testing.T) {
	f := newCoordinatorFixture(t)
	conn := pendingConnection(models.ConnectionScanning)
	f.connections.On("GetForUser", mock.Anything, conn.UserID, conn.ID).Return(conn, nil)

	err := f.coordinator.SaveDraftMappings(context.Background(), conn.UserID, conn.ID, models.MappingConfirmations{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
}
