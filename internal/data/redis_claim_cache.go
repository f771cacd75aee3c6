package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClaimCache implements the core.ClaimCache interface using Redis SETNX.
// It is a fast-path dedupe for rapid duplicate intake submissions; the
// PostgreSQL unique constraint remains the authority.
type RedisClaimCache struct {
	client redis.UniversalClient
}

// NewRedisClaimCache creates a new RedisClaimCache with the given Redis client.
func NewRedisClaimCache(client redis.UniversalClient) *RedisClaimCache {
	return &RedisClaimCache{client: client}
}

const claimKeyPrefix = "gatehouse:intake:"

// Claim attempts to claim key for ttl. Returns false when another caller
// already holds the claim.
func (r *RedisClaimCache) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}
	ok, err := r.client.SetNX(ctx, claimKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release removes a claim, allowing the key to be claimed again.
func (r *RedisClaimCache) Release(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if err := r.client.Del(ctx, claimKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
