package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raqmix/kippis-possync/pkg/database"
	apperrors "github.com/raqmix/kippis-possync/pkg/errors"
	"github.com/raqmix/kippis-possync/pkg/pagination"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

var syncRunColumnNames = []string{
	"id", "entity_type", "mode", "state", "status", "pages", "created", "updated", "skipped", "errors",
	"error_code", "error", "started_at", "finished_at",
}

func setupSyncRunRepo(t *testing.T) (*SyncRunRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return NewSyncRunRepository(mock), mock
}

func sampleRun() *domain.SyncRun {
	return &domain.SyncRun{
		ID:         "4f1d2a8e-1111-4c0b-8a8e-9d5c2b1a0f00",
		EntityType: domain.EntityBranches,
		Mode:       domain.ModeSandbox,
		State:      domain.SyncStateRunning,
		Status:     domain.SyncStatusRunning,
		StartedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestSyncRunRepository_Create(t *testing.T) {
	repo, mock := setupSyncRunRepo(t)
	defer mock.Close()

	run := sampleRun()
	mock.ExpectExec("INSERT INTO sync_runs").
		WithArgs(run.ID, run.EntityType, run.Mode, run.State, run.Status, 0, 0, 0, 0, 0,
			(*string)(nil), (*string)(nil), run.StartedAt, (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRunRepository_Finish(t *testing.T) {
	repo, mock := setupSyncRunRepo(t)
	defer mock.Close()

	run := sampleRun()
	run.Pages = 2
	run.SyncStats = domain.SyncStats{Created: 3, Updated: 1, Skipped: 1, Errors: 1}
	code, msg := "SERVER_ERROR", "Provider server error"
	run.ErrorCode, run.Error = &code, &msg
	run.Finish(domain.SyncStateAborted, run.StartedAt.Add(time.Minute))

	mock.ExpectExec("UPDATE sync_runs SET state = \\$2").
		WithArgs(run.ID, domain.SyncStateAborted, domain.SyncStatusIncomplete, 2, 3, 1, 1, 1,
			&code, &msg, run.FinishedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Finish(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRunRepository_Finish_Unknown(t *testing.T) {
	repo, mock := setupSyncRunRepo(t)
	defer mock.Close()

	run := sampleRun()
	run.Finish(domain.SyncStateDone, run.StartedAt)
	mock.ExpectExec("UPDATE sync_runs").
		WithArgs(anyArgs(11)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Finish(context.Background(), run)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSyncRunRepository_GetByID(t *testing.T) {
	repo, mock := setupSyncRunRepo(t)
	defer mock.Close()

	run := sampleRun()
	finished := run.StartedAt.Add(90 * time.Second)
	mock.ExpectQuery("SELECT .+ FROM sync_runs WHERE id = \\$1").
		WithArgs(run.ID).
		WillReturnRows(pgxmock.NewRows(syncRunColumnNames).
			AddRow(run.ID, "branches", "sandbox", "done", "complete", 3, 6, 0, 0, 0, nil, nil, run.StartedAt, &finished))

	got, err := repo.GetByID(context.Background(), run.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.EntityBranches, got.EntityType)
	assert.Equal(t, domain.SyncStatusComplete, got.Status)
	assert.Equal(t, 6, got.Created)
	assert.Nil(t, got.ErrorCode)
	assert.Equal(t, 90*time.Second, got.Duration())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRunRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := setupSyncRunRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM sync_runs").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "nope")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSyncRunRepository_List(t *testing.T) {
	repo, mock := setupSyncRunRepo(t)
	defer mock.Close()

	entity := domain.EntityBranches
	status := domain.SyncStatusFailed
	run := sampleRun()
	mock.ExpectQuery("SELECT .+ FROM sync_runs WHERE entity_type = \\$1 AND status = \\$2 ORDER BY started_at DESC, id LIMIT \\$3 OFFSET \\$4").
		WithArgs(entity, status, 20, 0).
		WillReturnRows(pgxmock.NewRows(append(syncRunColumnNames, "total_count")).
			AddRow(run.ID, "branches", "live", "aborted", "failed", 0, 0, 0, 0, 1, nil, nil, run.StartedAt, nil, 1))

	runs, total, err := repo.List(context.Background(),
		domain.SyncRunFilter{EntityType: &entity, Status: &status}, pagination.DefaultParams())

	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.ModeLive, runs[0].Mode)
	assert.Equal(t, 1, runs[0].Errors)
	assert.Nil(t, runs[0].FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
