package cache

import (
	"context"
	"time"
)

// Blacklist is the revocation list keyed by a token's unique id (jti).
// Presence means "revoked regardless of signature validity"; entries are
// kept only for the token's remaining lifetime, after which the token is
// rejected on expiry anyway.
type Blacklist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Unrevoke(ctx context.Context, jti string) error
	Size(ctx context.Context) (int64, error)
}
