package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/raqmix/kippis-possync/pkg/errors"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

const credentialKeyPrefix = "possync:credential:"

// CredentialCache keeps the current credential of each mode in Redis until
// it expires.
type CredentialCache struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewCredentialCache creates a Redis-backed credential cache.
func NewCredentialCache(client redis.Cmdable) *CredentialCache {
	return &CredentialCache{client: client, now: time.Now}
}

func credentialKey(mode domain.Mode) string {
	return credentialKeyPrefix + string(mode)
}

// Get returns the cached credential for mode.
func (c *CredentialCache) Get(ctx context.Context, mode domain.Mode) (*domain.Credential, error) {
	data, err := c.client.Get(ctx, credentialKey(mode)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("redis get credential: %w", err)
	}

	var cred domain.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	return &cred, nil
}

// Set caches cred with a TTL ending at its expiry. An already expired
// credential removes the entry instead.
func (c *CredentialCache) Set(ctx context.Context, cred *domain.Credential) error {
	ttl := cred.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return c.Delete(ctx, cred.Mode)
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	if err := c.client.Set(ctx, credentialKey(cred.Mode), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set credential: %w", err)
	}
	return nil
}

// Delete drops the cached credential for mode.
func (c *CredentialCache) Delete(ctx context.Context, mode domain.Mode) error {
	if err := c.client.Del(ctx, credentialKey(mode)).Err(); err != nil {
		return fmt.Errorf("redis del credential: %w", err)
	}
	return nil
}
