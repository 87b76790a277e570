// Package credential serves the current provider credential per mode from
// PostgreSQL, optionally fronted by a Redis cache.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/raqmix/kippis-possync/pkg/errors"
	"github.com/raqmix/kippis-possync/pkg/logger"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
	"github.com/raqmix/kippis-possync/services/integration/internal/repository"
)

// Store implements provider.CredentialStore. The database is the source of
// truth; cache failures are logged and otherwise ignored.
type Store struct {
	repo   repository.CredentialRepository
	cache  repository.CredentialCache
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithCache fronts the repository with cache.
func WithCache(cache repository.CredentialCache) Option {
	return func(s *Store) { s.cache = cache }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a credential store over repo.
func NewStore(repo repository.CredentialRepository, log *slog.Logger, opts ...Option) *Store {
	s := &Store{repo: repo, now: time.Now, logger: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Valid returns the current credential for mode if it has not expired.
// ok is false when there is none or it expired; the caller then acquires.
func (s *Store) Valid(ctx context.Context, mode domain.Mode) (*domain.Credential, bool, error) {
	now := s.now()

	if s.cache != nil {
		cred, err := s.cache.Get(ctx, mode)
		switch {
		case err == nil && cred.ValidAt(now):
			return cred, true, nil
		case err != nil && !errors.Is(err, apperrors.ErrNotFound):
			s.warn(ctx, "credential cache read failed", mode, err)
		}
	}

	cred, err := s.repo.Current(ctx, mode)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load %s credential: %w", mode, err)
	}
	if !cred.ValidAt(now) {
		return nil, false, nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cred); err != nil {
			s.warn(ctx, "credential cache write failed", mode, err)
		}
	}
	return cred, true, nil
}

// Save persists a newly acquired credential and makes it current.
func (s *Store) Save(ctx context.Context, cred *domain.Credential) error {
	if err := s.repo.Save(ctx, cred); err != nil {
		return fmt.Errorf("save %s credential: %w", cred.Mode, err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cred); err != nil {
			s.warn(ctx, "credential cache write failed", cred.Mode, err)
		}
	}
	return nil
}

// Invalidate supersedes the current credential of mode, forcing the next
// request to acquire a new one.
func (s *Store) Invalidate(ctx context.Context, mode domain.Mode) error {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, mode); err != nil {
			s.warn(ctx, "credential cache delete failed", mode, err)
		}
	}
	if err := s.repo.Expire(ctx, mode, s.now()); err != nil {
		return fmt.Errorf("invalidate %s credential: %w", mode, err)
	}
	logger.WithContext(ctx, s.logger).InfoContext(ctx, "provider credential invalidated",
		slog.String("mode", string(mode)),
	)
	return nil
}

func (s *Store) warn(ctx context.Context, msg string, mode domain.Mode, err error) {
	logger.WithContext(ctx, s.logger).WarnContext(ctx, msg,
		slog.String("mode", string(mode)),
		slog.String("error", err.Error()),
	)
}
