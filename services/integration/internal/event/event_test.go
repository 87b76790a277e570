package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/raqmix/kippis-possync/pkg/errors"
	pkgkafka "github.com/raqmix/kippis-possync/pkg/kafka"
	"github.com/raqmix/kippis-possync/pkg/logger"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, event *pkgkafka.Event) error {
	args := m.Called(ctx, topic, event)
	return args.Error(0)
}

type mockSyncService struct {
	mock.Mock
}

func (m *mockSyncService) Sync(ctx context.Context, entityType domain.EntityType) (*domain.SyncRun, error) {
	args := m.Called(ctx, entityType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SyncRun), args.Error(1)
}

func finishedRun() *domain.SyncRun {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	code := "SERVER_ERROR"
	run := &domain.SyncRun{
		ID:         "run-1",
		EntityType: domain.EntityBranches,
		Mode:       domain.ModeLive,
		SyncStats:  domain.SyncStats{Created: 4, Updated: 2, Skipped: 1, Errors: 1},
		Pages:      2,
		ErrorCode:  &code,
		StartedAt:  started,
	}
	run.Finish(domain.SyncStateAborted, started.Add(90*time.Second))
	return run
}

func TestProducer_PublishSyncCompleted(t *testing.T) {
	pub := new(mockPublisher)
	p := NewProducer(pub, logger.Discard())
	run := finishedRun()

	var sent *pkgkafka.Event
	pub.On("Publish", mock.Anything, TopicSyncCompleted, mock.AnythingOfType("*kafka.Event")).
		Run(func(args mock.Arguments) { sent = args.Get(2).(*pkgkafka.Event) }).
		Return(nil)

	ctx := logger.WithCorrelationID(context.Background(), "corr-9")
	require.NoError(t, p.PublishSyncCompleted(ctx, run))
	require.NotNil(t, sent)

	assert.Equal(t, TopicSyncCompleted, sent.EventType)
	assert.Equal(t, "run-1", sent.AggregateID)
	assert.Equal(t, AggregateTypeSyncRun, sent.AggregateType)
	assert.Equal(t, SourceIntegrationService, sent.Source)
	assert.Equal(t, "corr-9", sent.CorrelationID)
	assert.Equal(t, "branches", sent.Metadata["entity_type"])

	var data SyncCompletedData
	require.NoError(t, json.Unmarshal(sent.Data, &data))
	assert.Equal(t, "incomplete", data.Status)
	assert.Equal(t, "live", data.Mode)
	assert.Equal(t, 4, data.Created)
	assert.Equal(t, 2, data.Updated)
	assert.Equal(t, 1, data.Skipped)
	assert.Equal(t, 1, data.Errors)
	assert.Equal(t, int64(90000), data.DurationMs)
	require.NotNil(t, data.ErrorCode)
	assert.Equal(t, "SERVER_ERROR", *data.ErrorCode)
}

func TestProducer_PublishError(t *testing.T) {
	pub := new(mockPublisher)
	p := NewProducer(pub, logger.Discard())
	pub.On("Publish", mock.Anything, TopicSyncCompleted, mock.Anything).Return(errors.New("no leader"))

	err := p.PublishSyncCompleted(context.Background(), finishedRun())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish sync.completed event")
}

func requestEvent(t *testing.T, data any) *pkgkafka.Event {
	t.Helper()
	event, err := pkgkafka.NewEvent(TopicSyncRequested, "branches", AggregateTypeSyncRun, "admin", data)
	require.NoError(t, err)
	return event
}

func TestConsumer_HandleSyncRequested(t *testing.T) {
	svc := new(mockSyncService)
	c := NewConsumer(svc, logger.Discard())
	svc.On("Sync", mock.Anything, domain.EntityBranches).
		Return(&domain.SyncRun{ID: "run-1", Status: domain.SyncStatusComplete}, nil)

	event := requestEvent(t, SyncRequestedData{EntityType: " branches ", RequestedBy: "ops"})
	event.WithCorrelationID("corr-1")

	require.NoError(t, c.HandleSyncRequested(context.Background(), event))
	svc.AssertExpectations(t)

	ctx := svc.Calls[0].Arguments.Get(0).(context.Context)
	assert.Equal(t, "corr-1", logger.CorrelationIDFromContext(ctx))
}

func TestConsumer_AbortedRunIsNotAnError(t *testing.T) {
	svc := new(mockSyncService)
	c := NewConsumer(svc, logger.Discard())
	svc.On("Sync", mock.Anything, domain.EntityBranches).
		Return(&domain.SyncRun{ID: "run-1", Status: domain.SyncStatusFailed}, nil)

	assert.NoError(t, c.HandleSyncRequested(context.Background(),
		requestEvent(t, SyncRequestedData{EntityType: "branches"})))
}

func TestConsumer_RejectsBadRequests(t *testing.T) {
	svc := new(mockSyncService)
	c := NewConsumer(svc, logger.Discard())
	svc.On("Sync", mock.Anything, domain.EntityType("menus")).
		Return(nil, apperrors.InvalidInput(`unknown entity type "menus"`))

	t.Run("malformed payload", func(t *testing.T) {
		event := requestEvent(t, "not an object")
		assert.Error(t, c.HandleSyncRequested(context.Background(), event))
	})

	t.Run("missing entity type", func(t *testing.T) {
		event := requestEvent(t, SyncRequestedData{})
		assert.Error(t, c.HandleSyncRequested(context.Background(), event))
	})

	t.Run("unknown entity type", func(t *testing.T) {
		event := requestEvent(t, SyncRequestedData{EntityType: "menus"})
		err := c.HandleSyncRequested(context.Background(), event)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	})

	svc.AssertNumberOfCalls(t, "Sync", 1)
}
