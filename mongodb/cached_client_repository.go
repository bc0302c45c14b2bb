package mongodb

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.pilab.hu/iam/domain"
)

// CachedClientRepository wraps a ClientRepository with a short-lived
// in-process cache keyed by public client_id. Client configuration changes
// rarely; the token endpoint reads it on every request.
type CachedClientRepository struct {
	inner domain.ClientRepository
	cache *ttlcache.Cache[string, *domain.RegisteredClient]
}

// NewCachedClientRepository wraps inner with a cache holding entries for ttl.
func NewCachedClientRepository(inner domain.ClientRepository, ttl time.Duration) *CachedClientRepository {
	c := ttlcache.New[string, *domain.RegisteredClient](
		ttlcache.WithTTL[string, *domain.RegisteredClient](ttl),
		ttlcache.WithDisableTouchOnHit[string, *domain.RegisteredClient](),
	)
	go c.Start()
	return &CachedClientRepository{inner: inner, cache: c}
}

// Save writes through to the inner repository and drops the cached entry so
// the next read observes the new configuration.
func (r *CachedClientRepository) Save(ctx context.Context, client *domain.RegisteredClient) error {
	if err := r.inner.Save(ctx, client); err != nil {
		return err
	}
	r.cache.Delete(client.ClientID)
	return nil
}

// FindByID bypasses the cache; internal-id lookups are off the hot path.
func (r *CachedClientRepository) FindByID(ctx context.Context, id string) (*domain.RegisteredClient, error) {
	return r.inner.FindByID(ctx, id)
}

// FindByClientID serves from the cache when possible.
func (r *CachedClientRepository) FindByClientID(ctx context.Context, clientID string) (*domain.RegisteredClient, error) {
	if item := r.cache.Get(clientID); item != nil {
		return item.Value(), nil
	}
	client, err := r.inner.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	r.cache.Set(clientID, client, ttlcache.DefaultTTL)
	return client, nil
}

// Close stops the cache's eviction goroutine.
func (r *CachedClientRepository) Close() {
	r.cache.Stop()
}
