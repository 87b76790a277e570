package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkgkafka "github.com/raqmix/kippis-possync/pkg/kafka"
	"github.com/raqmix/kippis-possync/pkg/logger"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

// Kafka topic constants for sync events.
const (
	TopicSyncCompleted = "possync.sync.completed"
	TopicSyncRequested = "possync.sync.requested"
)

// Aggregate type constant.
const AggregateTypeSyncRun = "sync_run"

// Source identifier for events originating from the integration service.
const SourceIntegrationService = "integration-service"

// Publisher sends one event to a topic. *pkgkafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// SyncCompletedData is the payload for a sync.completed event.
type SyncCompletedData struct {
	RunID      string     `json:"run_id"`
	EntityType string     `json:"entity_type"`
	Mode       string     `json:"mode"`
	Status     string     `json:"status"`
	Pages      int        `json:"pages"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Skipped    int        `json:"skipped"`
	Errors     int        `json:"errors"`
	ErrorCode  *string    `json:"error_code,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// Producer publishes sync events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the integration service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishSyncCompleted publishes a sync.completed event for a finished run.
func (p *Producer) PublishSyncCompleted(ctx context.Context, run *domain.SyncRun) error {
	data := SyncCompletedData{
		RunID:      run.ID,
		EntityType: string(run.EntityType),
		Mode:       string(run.Mode),
		Status:     string(run.Status),
		Pages:      run.Pages,
		Created:    run.Created,
		Updated:    run.Updated,
		Skipped:    run.Skipped,
		Errors:     run.Errors,
		ErrorCode:  run.ErrorCode,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		DurationMs: run.Duration().Milliseconds(),
	}

	event, err := pkgkafka.NewEvent(TopicSyncCompleted, run.ID, AggregateTypeSyncRun, SourceIntegrationService, data)
	if err != nil {
		return fmt.Errorf("create sync.completed event: %w", err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	event.WithMetadata("entity_type", string(run.EntityType))

	if err := p.kafka.Publish(ctx, TopicSyncCompleted, event); err != nil {
		return fmt.Errorf("publish sync.completed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published sync.completed event",
		slog.String("run_id", run.ID),
		slog.String("status", string(run.Status)),
	)

	return nil
}
