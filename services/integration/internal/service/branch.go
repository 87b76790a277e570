package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raqmix/kippis-possync/pkg/pagination"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
	"github.com/raqmix/kippis-possync/services/integration/internal/repository"
)

// maxSearchLength bounds the free-text branch search.
const maxSearchLength = 100

// BranchService serves the locally reconciled branches to the admin API.
type BranchService struct {
	repo   repository.BranchRepository
	logger *slog.Logger
}

// NewBranchService creates a new branch service.
func NewBranchService(repo repository.BranchRepository, logger *slog.Logger) *BranchService {
	return &BranchService{repo: repo, logger: logger}
}

// List returns one page of local branches.
func (s *BranchService) List(ctx context.Context, filter domain.BranchFilter, params pagination.Params) ([]domain.Branch, int, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	if r := []rune(filter.Search); len(r) > maxSearchLength {
		filter.Search = string(r[:maxSearchLength])
	}

	branches, total, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, 0, fmt.Errorf("list branches: %w", err)
	}
	return branches, total, nil
}
