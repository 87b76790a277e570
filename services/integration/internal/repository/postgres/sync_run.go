package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/raqmix/kippis-possync/pkg/database"
	apperrors "github.com/raqmix/kippis-possync/pkg/errors"
	"github.com/raqmix/kippis-possync/pkg/pagination"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

const syncRunColumns = `id, entity_type, mode, state, status, pages, created, updated, skipped, errors,
	error_code, error, started_at, finished_at`

var (
	insertSyncRunSQL = `
		INSERT INTO sync_runs (` + syncRunColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	finishSyncRunSQL = `
		UPDATE sync_runs
		SET state = $2, status = $3, pages = $4, created = $5, updated = $6, skipped = $7, errors = $8,
			error_code = $9, error = $10, finished_at = $11
		WHERE id = $1`

	getSyncRunSQL = `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE id = $1`
)

// SyncRunRepository stores sync run history in sync_runs.
type SyncRunRepository struct {
	pool database.DBTX
}

// NewSyncRunRepository creates a PostgreSQL-backed sync run repository.
func NewSyncRunRepository(pool database.DBTX) *SyncRunRepository {
	return &SyncRunRepository{pool: pool}
}

// Create inserts a run, normally in the running state.
func (r *SyncRunRepository) Create(ctx context.Context, run *domain.SyncRun) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateSyncRun", insertSyncRunSQL)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, insertSyncRunSQL,
		run.ID,
		run.EntityType,
		run.Mode,
		run.State,
		run.Status,
		run.Pages,
		run.Created,
		run.Updated,
		run.Skipped,
		run.Errors,
		run.ErrorCode,
		run.Error,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sync run: %w", err)
	}
	return nil
}

// Finish stores the outcome of a run.
func (r *SyncRunRepository) Finish(ctx context.Context, run *domain.SyncRun) (err error) {
	ctx, end := database.TraceQuery(ctx, "FinishSyncRun", finishSyncRunSQL)
	defer func() { end(spanErr(err)) }()

	tag, err := r.pool.Exec(ctx, finishSyncRunSQL,
		run.ID,
		run.State,
		run.Status,
		run.Pages,
		run.Created,
		run.Updated,
		run.Skipped,
		run.Errors,
		run.ErrorCode,
		run.Error,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("finish sync run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// GetByID retrieves one run.
func (r *SyncRunRepository) GetByID(ctx context.Context, id string) (_ *domain.SyncRun, err error) {
	ctx, end := database.TraceQuery(ctx, "GetSyncRun", getSyncRunSQL)
	defer func() { end(spanErr(err)) }()

	run, err := scanSyncRun(r.pool.QueryRow(ctx, getSyncRunSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get sync run: %w", err)
	}
	return run, nil
}

// List returns runs matching filter, newest first.
func (r *SyncRunRepository) List(ctx context.Context, filter domain.SyncRunFilter, params pagination.Params) (_ []domain.SyncRun, _ int, err error) {
	var w whereBuilder
	if filter.EntityType != nil {
		w.add("entity_type = $%d", *filter.EntityType)
	}
	if filter.Status != nil {
		w.add("status = $%d", *filter.Status)
	}
	where := w.clause()
	limit := w.page(params)

	query := fmt.Sprintf(`
		SELECT %s,
			   count(*) OVER() AS total_count
		FROM sync_runs
		%s
		ORDER BY started_at DESC, id
		%s`, syncRunColumns, where, limit)

	ctx, end := database.TraceQuery(ctx, "ListSyncRuns", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	var total int
	runs := make([]domain.SyncRun, 0)
	for rows.Next() {
		run, err := scanSyncRun(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan sync run row: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sync run rows: %w", err)
	}
	return runs, total, nil
}

func scanSyncRun(row pgx.Row, extra ...any) (*domain.SyncRun, error) {
	var run domain.SyncRun
	dest := []any{
		&run.ID,
		&run.EntityType,
		&run.Mode,
		&run.State,
		&run.Status,
		&run.Pages,
		&run.Created,
		&run.Updated,
		&run.Skipped,
		&run.Errors,
		&run.ErrorCode,
		&run.Error,
		&run.StartedAt,
		&run.FinishedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &run, nil
}
