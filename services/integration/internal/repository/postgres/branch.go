package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/raqmix/kippis-possync/pkg/database"
	apperrors "github.com/raqmix/kippis-possync/pkg/errors"
	"github.com/raqmix/kippis-possync/pkg/pagination"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

const branchColumns = `id, external_id, name, reference, phone, address, latitude, longitude,
	opening_from, opening_to, receives_online_orders, is_active, deleted_upstream_at,
	synced_at, created_at, updated_at`

var (
	getBranchSQL = `SELECT ` + branchColumns + ` FROM branches WHERE external_id = $1`

	// xmax is 0 only for a freshly inserted row version.
	upsertBranchSQL = `
		INSERT INTO branches (id, external_id, name, reference, phone, address, latitude, longitude,
			opening_from, opening_to, receives_online_orders, is_active, deleted_upstream_at,
			synced_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			reference = EXCLUDED.reference,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			opening_from = EXCLUDED.opening_from,
			opening_to = EXCLUDED.opening_to,
			receives_online_orders = EXCLUDED.receives_online_orders,
			is_active = EXCLUDED.is_active,
			deleted_upstream_at = EXCLUDED.deleted_upstream_at,
			synced_at = EXCLUDED.synced_at,
			updated_at = NOW()
		RETURNING ` + branchColumns + `, (xmax = 0) AS inserted`

	deactivateBranchSQL = `
		UPDATE branches
		SET is_active = FALSE,
			deleted_upstream_at = COALESCE($2, deleted_upstream_at),
			synced_at = $3,
			updated_at = NOW()
		WHERE external_id = $1`
)

// BranchRepository stores reconciled provider branches.
type BranchRepository struct {
	pool database.DBTX
}

// NewBranchRepository creates a PostgreSQL-backed branch repository.
func NewBranchRepository(pool database.DBTX) *BranchRepository {
	return &BranchRepository{pool: pool}
}

// GetByExternalID looks a branch up by its upstream id.
func (r *BranchRepository) GetByExternalID(ctx context.Context, externalID string) (_ *domain.Branch, err error) {
	ctx, end := database.TraceQuery(ctx, "GetBranch", getBranchSQL)
	defer func() { end(spanErr(err)) }()

	b, err := scanBranch(r.pool.QueryRow(ctx, getBranchSQL, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get branch by external id: %w", err)
	}
	return b, nil
}

// Upsert inserts b or updates the row with the same upstream id. The local
// id and created_at of an existing row are kept.
func (r *BranchRepository) Upsert(ctx context.Context, b *domain.Branch) (_ *domain.Branch, created bool, err error) {
	ctx, end := database.TraceQuery(ctx, "UpsertBranch", upsertBranchSQL)
	defer func() { end(err) }()

	id := b.ID
	if id == "" {
		id = uuid.NewString()
	}
	name, err := json.Marshal(b.Name)
	if err != nil {
		return nil, false, fmt.Errorf("encode branch name: %w", err)
	}

	result, err := scanBranch(r.pool.QueryRow(ctx, upsertBranchSQL,
		id,
		b.ExternalID,
		name,
		b.Reference,
		b.Phone,
		b.Address,
		b.Latitude,
		b.Longitude,
		b.OpeningFrom,
		b.OpeningTo,
		b.ReceivesOnlineOrders,
		b.IsActive,
		b.DeletedUpstreamAt,
		b.SyncedAt,
	), &created)
	if err != nil {
		return nil, false, fmt.Errorf("upsert branch: %w", err)
	}
	return result, created, nil
}

// Deactivate marks the branch inactive. deletedUpstreamAt, when set, records
// the upstream deletion time.
func (r *BranchRepository) Deactivate(ctx context.Context, externalID string, deletedUpstreamAt *time.Time, at time.Time) (err error) {
	ctx, end := database.TraceQuery(ctx, "DeactivateBranch", deactivateBranchSQL)
	defer func() { end(spanErr(err)) }()

	tag, err := r.pool.Exec(ctx, deactivateBranchSQL, externalID, deletedUpstreamAt, at)
	if err != nil {
		return fmt.Errorf("deactivate branch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// List returns branches matching filter, newest first.
func (r *BranchRepository) List(ctx context.Context, filter domain.BranchFilter, params pagination.Params) (_ []domain.Branch, _ int, err error) {
	var w whereBuilder
	if filter.Active != nil {
		w.add("is_active = $%d", *filter.Active)
	}
	if filter.Search != "" {
		w.add("(external_id ILIKE $%[1]d OR reference ILIKE $%[1]d OR name::text ILIKE $%[1]d)", "%"+filter.Search+"%")
	}
	where := w.clause()
	limit := w.page(params)

	query := fmt.Sprintf(`
		SELECT %s,
			   count(*) OVER() AS total_count
		FROM branches
		%s
		ORDER BY created_at DESC, id
		%s`, branchColumns, where, limit)

	ctx, end := database.TraceQuery(ctx, "ListBranches", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	var total int
	branches := make([]domain.Branch, 0)
	for rows.Next() {
		b, err := scanBranch(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan branch row: %w", err)
		}
		branches = append(branches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate branch rows: %w", err)
	}
	return branches, total, nil
}

// scanBranch reads branchColumns followed by any extra destinations.
func scanBranch(row pgx.Row, extra ...any) (*domain.Branch, error) {
	var (
		b    domain.Branch
		name []byte
	)
	dest := []any{
		&b.ID,
		&b.ExternalID,
		&name,
		&b.Reference,
		&b.Phone,
		&b.Address,
		&b.Latitude,
		&b.Longitude,
		&b.OpeningFrom,
		&b.OpeningTo,
		&b.ReceivesOnlineOrders,
		&b.IsActive,
		&b.DeletedUpstreamAt,
		&b.SyncedAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	b.Name = domain.LocalizedText{}
	if len(name) > 0 && string(name) != "null" {
		if err := json.Unmarshal(name, &b.Name); err != nil {
			return nil, fmt.Errorf("decode branch name: %w", err)
		}
	}
	return &b, nil
}
