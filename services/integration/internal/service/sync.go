package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/raqmix/kippis-possync/pkg/errors"
	"github.com/raqmix/kippis-possync/pkg/logger"
	"github.com/raqmix/kippis-possync/pkg/pagination"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
	"github.com/raqmix/kippis-possync/services/integration/internal/provider"
	"github.com/raqmix/kippis-possync/services/integration/internal/repository"
)

const (
	tracerName = "github.com/raqmix/kippis-possync/services/integration/service"

	// sortKey keeps the page cursor stable while upstream records change.
	sortKey = "created_at"

	codePaginationStalled = "PAGINATION_STALLED"
)

// ProviderClient is the part of the provider client a sync run needs.
type ProviderClient interface {
	Execute(ctx context.Context, method, path string, q provider.Query) *provider.Envelope
	Mode() domain.Mode
}

// RunPublisher announces finished sync runs.
type RunPublisher interface {
	PublishSyncCompleted(ctx context.Context, run *domain.SyncRun) error
}

// recordFunc reconciles one upstream record and returns its outcome.
type recordFunc func(ctx context.Context, raw json.RawMessage) string

type entitySync struct {
	path    string
	process recordFunc
}

// SyncService pulls every record of an entity type from the provider and
// reconciles it into local storage.
type SyncService struct {
	client     ProviderClient
	reconciler *BranchReconciler
	runs       repository.SyncRunRepository
	publisher  RunPublisher
	entities   map[domain.EntityType]entitySync
	now        func() time.Time
	tracer     trace.Tracer
	logger     *slog.Logger
}

// SyncOption customizes a SyncService.
type SyncOption func(*SyncService)

// WithPublisher publishes every finished run.
func WithPublisher(p RunPublisher) SyncOption {
	return func(s *SyncService) { s.publisher = p }
}

// WithSyncClock replaces time.Now.
func WithSyncClock(now func() time.Time) SyncOption {
	return func(s *SyncService) { s.now = now }
}

// NewSyncService creates a sync service.
func NewSyncService(
	client ProviderClient,
	reconciler *BranchReconciler,
	runs repository.SyncRunRepository,
	log *slog.Logger,
	opts ...SyncOption,
) *SyncService {
	s := &SyncService{
		client:     client,
		reconciler: reconciler,
		runs:       runs,
		now:        time.Now,
		tracer:     otel.Tracer(tracerName),
		logger:     log,
	}
	s.entities = map[domain.EntityType]entitySync{
		domain.EntityBranches: {path: "/branches", process: s.processBranch},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EntityTypes lists the entity types Sync accepts.
func (s *SyncService) EntityTypes() []domain.EntityType {
	types := make([]domain.EntityType, 0, len(s.entities))
	for t := range s.entities {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Sync runs one full paginated pull of entityType. Upstream failures never
// surface as the returned error: they end the run and are reported in it.
// The error is reserved for an unknown entity type.
func (s *SyncService) Sync(ctx context.Context, entityType domain.EntityType) (*domain.SyncRun, error) {
	entity, ok := s.entities[entityType]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown entity type %q", entityType))
	}

	run := &domain.SyncRun{
		ID:         uuid.NewString(),
		EntityType: entityType,
		Mode:       s.client.Mode(),
		State:      domain.SyncStateRunning,
		Status:     domain.SyncStatusRunning,
		StartedAt:  s.now(),
	}

	ctx = logger.WithSyncRunID(ctx, run.ID)
	ctx = logger.WithMode(ctx, string(run.Mode))
	ctx, span := s.tracer.Start(ctx, "sync "+string(entityType),
		trace.WithAttributes(
			attribute.String("sync.run_id", run.ID),
			attribute.String("sync.entity_type", string(entityType)),
			attribute.String("provider.mode", string(run.Mode)),
		),
	)
	defer span.End()
	log := logger.WithContext(ctx, s.logger)

	// History writes must land even when the caller gave up on the run.
	persistCtx := context.WithoutCancel(ctx)
	persisted := true
	if err := s.runs.Create(persistCtx, run); err != nil {
		persisted = false
		log.ErrorContext(ctx, "failed to record sync run start", slog.String("error", err.Error()))
	}

	log.InfoContext(ctx, "sync run started", slog.String("entity_type", string(entityType)))

	state := s.fetchAll(ctx, entityType, entity, run)
	run.Finish(state, s.now())

	if persisted {
		if err := s.runs.Finish(persistCtx, run); err != nil {
			log.ErrorContext(ctx, "failed to record sync run result", slog.String("error", err.Error()))
		}
	}

	syncRunsTotal.WithLabelValues(string(entityType), string(run.Status)).Inc()
	syncRunDuration.WithLabelValues(string(entityType)).Observe(run.Duration().Seconds())
	span.SetAttributes(
		attribute.String("sync.status", string(run.Status)),
		attribute.Int("sync.pages", run.Pages),
		attribute.Int("sync.created", run.Created),
		attribute.Int("sync.updated", run.Updated),
		attribute.Int("sync.skipped", run.Skipped),
		attribute.Int("sync.errors", run.Errors),
	)
	if run.Status != domain.SyncStatusComplete {
		span.SetStatus(codes.Error, string(run.Status))
	}

	attrs := []any{
		slog.String("entity_type", string(entityType)),
		slog.String("status", string(run.Status)),
		slog.Int("pages", run.Pages),
		slog.Int("created", run.Created),
		slog.Int("updated", run.Updated),
		slog.Int("skipped", run.Skipped),
		slog.Int("errors", run.Errors),
		slog.Duration("duration", run.Duration()),
	}
	if run.Status == domain.SyncStatusComplete {
		log.InfoContext(ctx, "sync run finished", attrs...)
	} else {
		log.WarnContext(ctx, "sync run aborted", attrs...)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishSyncCompleted(persistCtx, run); err != nil {
			log.WarnContext(ctx, "failed to publish sync result", slog.String("error", err.Error()))
		}
	}

	return run, nil
}

// fetchAll walks the pages of entity until the last one or the first page
// failure and returns the terminal state.
func (s *SyncService) fetchAll(ctx context.Context, entityType domain.EntityType, entity entitySync, run *domain.SyncRun) domain.SyncState {
	log := logger.WithContext(ctx, s.logger)
	page := 1
	lastPage := 0

	for {
		env := s.client.Execute(ctx, http.MethodGet, entity.path,
			provider.NewQuery(provider.WithPage(page), provider.WithSort(sortKey)))
		if !env.Success {
			s.abort(run, env.Error.Code, env.Error.Message)
			log.ErrorContext(ctx, "page fetch failed",
				slog.Int("page", page),
				slog.String("code", env.Error.Code),
				slog.String("error", env.Error.Message),
			)
			return domain.SyncStateAborted
		}

		if len(env.Records) == 0 {
			run.Pages++
			syncPagesTotal.WithLabelValues(string(entityType)).Inc()
			return domain.SyncStateDone
		}

		// The server's page number decides where we are; a page that does
		// not move forward would loop forever.
		current := page
		if env.Meta != nil {
			current = env.Meta.CurrentPage
		}
		if current <= lastPage {
			s.abort(run, codePaginationStalled,
				fmt.Sprintf("provider returned page %d after page %d", current, lastPage))
			log.ErrorContext(ctx, "pagination did not advance",
				slog.Int("requested_page", page),
				slog.Int("current_page", current),
			)
			return domain.SyncStateAborted
		}
		lastPage = current
		run.Pages++
		syncPagesTotal.WithLabelValues(string(entityType)).Inc()

		for _, raw := range env.Records {
			outcome := entity.process(ctx, raw)
			switch outcome {
			case outcomeCreated:
				run.Created++
			case outcomeUpdated:
				run.Updated++
			default:
				run.Skipped++
			}
			syncRecordsTotal.WithLabelValues(string(entityType), outcome).Inc()
		}

		log.DebugContext(ctx, "page processed",
			slog.Int("page", current),
			slog.Int("records", len(env.Records)),
		)

		if env.Meta == nil || !env.Meta.HasNext() {
			return domain.SyncStateDone
		}
		page = current + 1
	}
}

func (s *SyncService) abort(run *domain.SyncRun, code, message string) {
	run.Errors++
	run.ErrorCode = &code
	run.Error = &message
}

// processBranch reconciles one upstream branch. Ineligible branches are
// skipped, and deactivated locally if we know them as active.
func (s *SyncService) processBranch(ctx context.Context, raw json.RawMessage) string {
	log := logger.WithContext(ctx, s.logger)

	rec, err := domain.DecodeBranchRecord(raw)
	if err != nil {
		log.WarnContext(ctx, "skipping undecodable branch", slog.String("error", err.Error()))
		return outcomeFailed
	}
	externalID := string(rec.ID)

	existing, err := s.reconciler.Lookup(ctx, externalID)
	if err != nil {
		log.WarnContext(ctx, "skipping branch",
			slog.String("external_id", externalID),
			slog.String("error", err.Error()),
		)
		return outcomeFailed
	}

	if reason := rec.SkipReason(); reason != "" {
		if existing != nil && existing.IsActive {
			if err := s.reconciler.Deactivate(ctx, externalID, rec.DeletedAt); err != nil {
				log.WarnContext(ctx, "failed to deactivate branch",
					slog.String("external_id", externalID),
					slog.String("error", err.Error()),
				)
			} else {
				syncRecordsTotal.WithLabelValues(string(domain.EntityBranches), outcomeDeactivated).Inc()
			}
		}
		log.DebugContext(ctx, "branch skipped",
			slog.String("external_id", externalID),
			slog.String("reason", reason),
		)
		return outcomeSkipped
	}

	_, created, err := s.reconciler.Upsert(ctx, rec.ToBranch(s.now()))
	if err != nil {
		log.WarnContext(ctx, "skipping branch",
			slog.String("external_id", externalID),
			slog.String("reason", domain.SkipReasonInvalidRecord),
			slog.String("error", err.Error()),
		)
		return outcomeFailed
	}
	if created {
		return outcomeCreated
	}
	return outcomeUpdated
}

// GetRun returns one sync run.
func (s *SyncService) GetRun(ctx context.Context, id string) (*domain.SyncRun, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get sync run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns one page of sync runs, newest first.
func (s *SyncService) ListRuns(ctx context.Context, filter domain.SyncRunFilter, params pagination.Params) ([]domain.SyncRun, int, error) {
	if filter.EntityType != nil {
		if _, ok := s.entities[*filter.EntityType]; !ok {
			return nil, 0, apperrors.InvalidInput(fmt.Sprintf("unknown entity type %q", *filter.EntityType))
		}
	}
	runs, total, err := s.runs.List(ctx, filter, params)
	if err != nil {
		return nil, 0, fmt.Errorf("list sync runs: %w", err)
	}
	return runs, total, nil
}
