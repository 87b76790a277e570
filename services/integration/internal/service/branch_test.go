package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/raqmix/kippis-possync/pkg/logger"
	"github.com/raqmix/kippis-possync/pkg/pagination"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

func TestBranchService_List(t *testing.T) {
	repo := new(mockBranchRepository)
	svc := NewBranchService(repo, logger.Discard())
	active := true
	params := pagination.DefaultParams()

	repo.On("List", mock.Anything, domain.BranchFilter{Active: &active, Search: "olaya"}, params).
		Return([]domain.Branch{{ExternalID: "b1"}}, 1, nil)

	branches, total, err := svc.List(context.Background(), domain.BranchFilter{Active: &active, Search: "  olaya "}, params)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "b1", branches[0].ExternalID)
}

func TestBranchService_List_TruncatesSearch(t *testing.T) {
	repo := new(mockBranchRepository)
	svc := NewBranchService(repo, logger.Discard())
	long := strings.Repeat("ع", 150)

	repo.On("List", mock.Anything, mock.MatchedBy(func(f domain.BranchFilter) bool {
		return len([]rune(f.Search)) == maxSearchLength
	}), mock.Anything).Return([]domain.Branch{}, 0, nil)

	_, _, err := svc.List(context.Background(), domain.BranchFilter{Search: long}, pagination.DefaultParams())
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestBranchService_List_Error(t *testing.T) {
	repo := new(mockBranchRepository)
	svc := NewBranchService(repo, logger.Discard())
	repo.On("List", mock.Anything, mock.Anything, mock.Anything).Return(nil, 0, errors.New("db down"))

	_, _, err := svc.List(context.Background(), domain.BranchFilter{}, pagination.DefaultParams())
	assert.ErrorContains(t, err, "list branches")
}
