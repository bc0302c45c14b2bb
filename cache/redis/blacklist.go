package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "token:blacklist:"

// Blacklist implements cache.Blacklist on a shared Redis. A revoked jti is
// stored with a TTL equal to the token's remaining lifetime; Redis evicts
// the entry when the token would have expired anyway.
type Blacklist struct {
	client *redis.Client
}

// NewBlacklist creates a new [Blacklist] instance.
func NewBlacklist(client *redis.Client) *Blacklist {
	return &Blacklist{client: client}
}

func (b *Blacklist) key(jti string) string {
	return blacklistPrefix + jti
}

// Revoke marks the jti as revoked for the given remaining lifetime.
func (b *Blacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if err := b.client.Set(ctx, b.key(jti), "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the jti is currently blacklisted.
func (b *Blacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return n > 0, nil
}

// Unrevoke removes the jti from the blacklist before its natural expiry.
func (b *Blacklist) Unrevoke(ctx context.Context, jti string) error {
	if err := b.client.Del(ctx, b.key(jti)).Err(); err != nil {
		return fmt.Errorf("failed to remove token from blacklist: %w", err)
	}
	return nil
}

// Size returns the number of currently blacklisted ids.
func (b *Blacklist) Size(ctx context.Context) (int64, error) {
	var (
		count  int64
		cursor uint64
	)
	for {
		keys, next, err := b.client.Scan(ctx, cursor, blacklistPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan blacklist: %w", err)
		}
		count += int64(len(keys))
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}
