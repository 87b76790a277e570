package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

// Syncer runs one sync of an entity type.
type Syncer interface {
	Sync(ctx context.Context, entityType domain.EntityType) (*domain.SyncRun, error)
}

// boundedSyncer gives every run its own deadline.
type boundedSyncer struct {
	next    Syncer
	timeout time.Duration
}

func (b boundedSyncer) Sync(ctx context.Context, entityType domain.EntityType) (*domain.SyncRun, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Sync(ctx, entityType)
}

// scheduler syncs a fixed set of entity types every interval. Entity types
// run concurrently; a tick that is still running delays the next one, so
// runs of one entity type never overlap.
type scheduler struct {
	syncer      Syncer
	entityTypes []domain.EntityType
	interval    time.Duration
	logger      *slog.Logger
}

// Run blocks until ctx is cancelled.
func (s *scheduler) Run(ctx context.Context) {
	s.logger.Info("sync scheduler started",
		slog.Duration("interval", s.interval),
		slog.Any("entity_types", s.entityTypes),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *scheduler) tick(ctx context.Context) {
	var g errgroup.Group
	for _, entityType := range s.entityTypes {
		g.Go(func() error {
			run, err := s.syncer.Sync(ctx, entityType)
			if err != nil {
				s.logger.ErrorContext(ctx, "scheduled sync rejected",
					slog.String("entity_type", string(entityType)),
					slog.String("error", err.Error()),
				)
				return nil
			}
			s.logger.InfoContext(ctx, "scheduled sync finished",
				slog.String("entity_type", string(entityType)),
				slog.String("run_id", run.ID),
				slog.String("status", string(run.Status)),
			)
			return nil
		})
	}
	_ = g.Wait()
}
