package event

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	pkgkafka "github.com/raqmix/kippis-possync/pkg/kafka"
	"github.com/raqmix/kippis-possync/pkg/logger"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

// SyncService defines the interface required by the event consumer.
type SyncService interface {
	Sync(ctx context.Context, entityType domain.EntityType) (*domain.SyncRun, error)
}

// SyncRequestedData is the expected payload of a sync.requested event.
type SyncRequestedData struct {
	EntityType  string `json:"entity_type"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// Consumer processes incoming Kafka events for the integration service.
type Consumer struct {
	logger  *slog.Logger
	service SyncService
}

// NewConsumer creates a new event consumer for the integration service.
func NewConsumer(service SyncService, logger *slog.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// HandleSyncRequested runs the requested sync. Only an invalid request is an
// error; an aborted run is reported through its own sync.completed event and
// is not retried here.
func (c *Consumer) HandleSyncRequested(ctx context.Context, event *pkgkafka.Event) error {
	var data SyncRequestedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal sync.requested data: %w", err)
	}
	entityType := domain.EntityType(strings.TrimSpace(data.EntityType))
	if entityType == "" {
		return fmt.Errorf("sync.requested event %s: entity_type is required", event.EventID)
	}

	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}
	log := logger.WithContext(ctx, c.logger)

	log.InfoContext(ctx, "processing sync.requested event",
		slog.String("event_id", event.EventID),
		slog.String("entity_type", string(entityType)),
		slog.String("requested_by", data.RequestedBy),
	)

	run, err := c.service.Sync(ctx, entityType)
	if err != nil {
		return fmt.Errorf("sync %s: %w", entityType, err)
	}

	log.InfoContext(ctx, "requested sync finished",
		slog.String("run_id", run.ID),
		slog.String("status", string(run.Status)),
	)

	return nil
}
