package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/raqmix/kippis-possync/pkg/database"
	apperrors "github.com/raqmix/kippis-possync/pkg/errors"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

const (
	currentCredentialSQL = `
		SELECT id, mode, access_token, refresh_token, token_type, issued_at, expires_at
		FROM provider_credentials
		WHERE mode = $1
		ORDER BY issued_at DESC, created_at DESC
		LIMIT 1`

	insertCredentialSQL = `
		INSERT INTO provider_credentials (id, mode, access_token, refresh_token, token_type, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	expireCredentialsSQL = `
		UPDATE provider_credentials
		SET expires_at = $2
		WHERE mode = $1 AND expires_at > $2`
)

// CredentialRepository stores provider credentials in provider_credentials.
type CredentialRepository struct {
	pool database.DBTX
}

// NewCredentialRepository creates a PostgreSQL-backed credential repository.
func NewCredentialRepository(pool database.DBTX) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// Current returns the most recently issued credential for mode.
func (r *CredentialRepository) Current(ctx context.Context, mode domain.Mode) (_ *domain.Credential, err error) {
	ctx, end := database.TraceQuery(ctx, "CurrentCredential", currentCredentialSQL)
	defer func() { end(spanErr(err)) }()

	var c domain.Credential
	err = r.pool.QueryRow(ctx, currentCredentialSQL, mode).Scan(
		&c.ID,
		&c.Mode,
		&c.AccessToken,
		&c.RefreshToken,
		&c.TokenType,
		&c.IssuedAt,
		&c.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get current credential: %w", err)
	}
	return &c, nil
}

// Save inserts cred. Earlier rows for the mode stay as history.
func (r *CredentialRepository) Save(ctx context.Context, cred *domain.Credential) (err error) {
	ctx, end := database.TraceQuery(ctx, "SaveCredential", insertCredentialSQL)
	defer func() { end(err) }()

	if err = cred.Validate(); err != nil {
		return fmt.Errorf("save credential: %w: %v", apperrors.ErrInvalidInput, err)
	}

	_, err = r.pool.Exec(ctx, insertCredentialSQL,
		cred.ID,
		cred.Mode,
		cred.AccessToken,
		cred.RefreshToken,
		cred.TokenType,
		cred.IssuedAt,
		cred.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// Expire supersedes every still-valid credential of mode as of at.
func (r *CredentialRepository) Expire(ctx context.Context, mode domain.Mode, at time.Time) (err error) {
	ctx, end := database.TraceQuery(ctx, "ExpireCredentials", expireCredentialsSQL)
	defer func() { end(err) }()

	if _, err = r.pool.Exec(ctx, expireCredentialsSQL, mode, at); err != nil {
		return fmt.Errorf("expire credentials: %w", err)
	}
	return nil
}
