package repository

import (
	"context"
	"time"

	"github.com/raqmix/kippis-possync/pkg/pagination"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

// CredentialRepository is the durable store of provider credentials. Rows
// are superseded, never deleted.
type CredentialRepository interface {
	// Current returns the most recently issued credential for mode, expired or
	// not. It returns apperrors.ErrNotFound when none was ever stored.
	Current(ctx context.Context, mode domain.Mode) (*domain.Credential, error)

	// Save inserts a newly acquired credential.
	Save(ctx context.Context, cred *domain.Credential) error

	// Expire moves the expiry of every still-valid credential of mode to at.
	Expire(ctx context.Context, mode domain.Mode, at time.Time) error
}

// CredentialCache is a fast, lossy copy of the current credential per mode.
type CredentialCache interface {
	// Get returns apperrors.ErrNotFound on a miss.
	Get(ctx context.Context, mode domain.Mode) (*domain.Credential, error)
	Set(ctx context.Context, cred *domain.Credential) error
	Delete(ctx context.Context, mode domain.Mode) error
}

// BranchRepository persists reconciled branches keyed by their upstream id.
type BranchRepository interface {
	// GetByExternalID returns apperrors.ErrNotFound for an unknown upstream id.
	GetByExternalID(ctx context.Context, externalID string) (*domain.Branch, error)

	// Upsert inserts or updates the branch with the same upstream id and
	// reports whether a new row was created.
	Upsert(ctx context.Context, branch *domain.Branch) (*domain.Branch, bool, error)

	// Deactivate marks a known branch inactive and records the sync time.
	Deactivate(ctx context.Context, externalID string, deletedUpstreamAt *time.Time, at time.Time) error

	// List returns one page of branches and the total matching count.
	List(ctx context.Context, filter domain.BranchFilter, params pagination.Params) ([]domain.Branch, int, error)
}

// SyncRunRepository stores the history of sync runs.
type SyncRunRepository interface {
	Create(ctx context.Context, run *domain.SyncRun) error

	// Finish stores the terminal state, status and stats of a run.
	Finish(ctx context.Context, run *domain.SyncRun) error

	// GetByID returns apperrors.ErrNotFound for an unknown run.
	GetByID(ctx context.Context, id string) (*domain.SyncRun, error)

	// List returns one page of runs, newest first, and the total count.
	List(ctx context.Context, filter domain.SyncRunFilter, params pagination.Params) ([]domain.SyncRun, int, error)
}
