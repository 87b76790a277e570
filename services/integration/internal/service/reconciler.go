package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/raqmix/kippis-possync/pkg/errors"
	"github.com/raqmix/kippis-possync/pkg/logger"
	"github.com/raqmix/kippis-possync/pkg/validator"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
	"github.com/raqmix/kippis-possync/services/integration/internal/repository"
)

// BranchReconciler writes upstream branches into local storage. The upstream
// id is the only key it matches on.
type BranchReconciler struct {
	repo   repository.BranchRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewBranchReconciler creates a reconciler over repo.
func NewBranchReconciler(repo repository.BranchRepository, log *slog.Logger) *BranchReconciler {
	return &BranchReconciler{repo: repo, now: time.Now, logger: log}
}

// Lookup returns the local branch for externalID, or nil when it is unknown.
func (r *BranchReconciler) Lookup(ctx context.Context, externalID string) (*domain.Branch, error) {
	if externalID == "" {
		return nil, nil
	}
	b, err := r.repo.GetByExternalID(ctx, externalID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup branch %s: %w", externalID, err)
	}
	return b, nil
}

// Upsert inserts or refreshes branch and reports whether it was created. A
// branch without an upstream id fails with apperrors.ErrInvalidInput.
func (r *BranchReconciler) Upsert(ctx context.Context, branch *domain.Branch) (*domain.Branch, bool, error) {
	if err := validator.Validate(branch); err != nil {
		return nil, false, fmt.Errorf("branch %q: %w", branch.ExternalID, err)
	}
	if branch.SyncedAt.IsZero() {
		branch.SyncedAt = r.now()
	}
	saved, created, err := r.repo.Upsert(ctx, branch)
	if err != nil {
		return nil, false, fmt.Errorf("upsert branch %s: %w", branch.ExternalID, err)
	}
	return saved, created, nil
}

// Deactivate marks a known branch inactive after it was deleted upstream or
// stopped accepting online orders. The row itself is kept.
func (r *BranchReconciler) Deactivate(ctx context.Context, externalID string, deletedUpstreamAt *time.Time) error {
	if externalID == "" {
		return apperrors.InvalidInput("external id is required")
	}
	if err := r.repo.Deactivate(ctx, externalID, deletedUpstreamAt, r.now()); err != nil {
		return fmt.Errorf("deactivate branch %s: %w", externalID, err)
	}
	logger.WithContext(ctx, r.logger).InfoContext(ctx, "branch deactivated",
		slog.String("external_id", externalID),
	)
	return nil
}
