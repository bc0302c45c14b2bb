package cache

import (
	"context"
	"errors"
	"time"
)

// ErrTokenNotFound is returned when a token has no entry in the store,
// either because it was never issued or because its TTL elapsed.
var ErrTokenNotFound = errors.New("token not found")

// MachineTokenEntry is the metadata stored for one opaque machine-client
// token.
type MachineTokenEntry struct {
	AppID        string    `redis:"app_id"`
	CredentialID string    `redis:"credential_id"`
	ClientID     string    `redis:"client_id"`
	Scope        string    `redis:"scope"`
	CreatedAt    time.Time `redis:"created_at"`
}

// MachineTokenStore is the fast key/value store behind the app-id/app-secret
// grant: opaque token value -> client metadata with a TTL. Entries expire via
// the store's own TTL mechanism; no cleanup job exists.
//
//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE
type MachineTokenStore interface {
	Set(ctx context.Context, token string, entry *MachineTokenEntry, ttl time.Duration) error
	Get(ctx context.Context, token string) (*MachineTokenEntry, error)
	Has(ctx context.Context, token string) (bool, error)
	Delete(ctx context.Context, token string) error
	Count(ctx context.Context) (int64, error)
}
