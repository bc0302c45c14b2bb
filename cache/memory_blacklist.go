package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryBlacklist implements Blacklist using ttlcache.
type MemoryBlacklist struct {
	cache *ttlcache.Cache[string, struct{}]
}

// NewMemoryBlacklist creates a new in-memory blacklist with automatic
// expiry of revocation entries.
func NewMemoryBlacklist() *MemoryBlacklist {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)

	go cache.Start()

	return &MemoryBlacklist{cache: cache}
}

// Revoke implements Blacklist.Revoke.
func (b *MemoryBlacklist) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	b.cache.Set(jti, struct{}{}, ttl)
	return nil
}

// IsRevoked implements Blacklist.IsRevoked.
func (b *MemoryBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	return b.cache.Has(jti), nil
}

// Unrevoke implements Blacklist.Unrevoke.
func (b *MemoryBlacklist) Unrevoke(_ context.Context, jti string) error {
	b.cache.Delete(jti)
	return nil
}

// Size returns the number of live revocation entries.
func (b *MemoryBlacklist) Size(_ context.Context) (int64, error) {
	return int64(b.cache.Len()), nil
}

// Close stops the expiry goroutine.
func (b *MemoryBlacklist) Close() error {
	b.cache.Stop()
	return nil
}
