package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryTokenStore implements MachineTokenStore using ttlcache. Suitable for
// single-instance deployments and tests; a shared redis store is required
// for cross-instance introspection.
type MemoryTokenStore struct {
	cache *ttlcache.Cache[string, *MachineTokenEntry]
}

// NewMemoryTokenStore creates a new in-memory token store with automatic
// expiry.
func NewMemoryTokenStore() *MemoryTokenStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *MachineTokenEntry](),
	)

	go cache.Start()

	return &MemoryTokenStore{cache: cache}
}

// Set implements MachineTokenStore.Set. A non-positive ttl is rejected:
// ttlcache would treat it as "no expiry" and the entry would outlive the
// token.
func (s *MemoryTokenStore) Set(_ context.Context, token string, entry *MachineTokenEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	s.cache.Set(token, entry, ttl)
	return nil
}

// Get implements MachineTokenStore.Get.
func (s *MemoryTokenStore) Get(_ context.Context, token string) (*MachineTokenEntry, error) {
	item := s.cache.Get(token)
	if item == nil {
		return nil, ErrTokenNotFound
	}
	return item.Value(), nil
}

// Has implements MachineTokenStore.Has.
func (s *MemoryTokenStore) Has(_ context.Context, token string) (bool, error) {
	return s.cache.Has(token), nil
}

// Delete removes a token from the cache.
func (s *MemoryTokenStore) Delete(_ context.Context, token string) error {
	s.cache.Delete(token)
	return nil
}

// Count returns the number of live entries.
func (s *MemoryTokenStore) Count(_ context.Context) (int64, error) {
	return int64(s.cache.Len()), nil
}

// Close stops the expiry goroutine.
func (s *MemoryTokenStore) Close() error {
	s.cache.Stop()
	return nil
}
