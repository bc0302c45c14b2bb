package domain

import (
	"context"
	"errors"
	"time"
)

// Not-found sentinels. Absence of a record is a normal outcome for most
// callers (introspection in particular) and must stay distinguishable from
// store failures, which are transient.
var (
	ErrRecordNotFound     = errors.New("authorization record not found")
	ErrClientNotFound     = errors.New("registered client not found")
	ErrSigningKeyNotFound = errors.New("signing key not found")
	ErrCredentialNotFound = errors.New("client credential not found")
	ErrUserNotFound       = errors.New("user not found")
)

// AuthorizationRepository is the durable store of issued token families.
//
//go:generate mockgen -source=$GOFILE -destination=./mocks/mock_$GOFILE -package=mocks
type AuthorizationRepository interface {
	// Save upserts the record: an existing record with the same ID is
	// replaced, otherwise the record is inserted.
	Save(ctx context.Context, record *AuthorizationRecord) error
	FindByID(ctx context.Context, id string) (*AuthorizationRecord, error)
	// FindByToken looks a record up by one of its token values. With
	// kind == "" the access, refresh and authorization-code slots are tried
	// in that order, so callers need not know which kind a bare string is.
	FindByToken(ctx context.Context, value string, kind TokenKind) (*AuthorizationRecord, error)
	// Remove deletes the whole record. Used for logout; mid-lifetime
	// revocation of signed tokens goes through the blacklist instead.
	Remove(ctx context.Context, id string) error
	// DeleteExpired removes records whose every token slot has expired.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ClientRepository stores RegisteredClient configuration.
type ClientRepository interface {
	Save(ctx context.Context, client *RegisteredClient) error
	FindByID(ctx context.Context, id string) (*RegisteredClient, error)
	FindByClientID(ctx context.Context, clientID string) (*RegisteredClient, error)
}

// SigningKeyRepository stores the key ring's asymmetric keys.
type SigningKeyRepository interface {
	Save(ctx context.Context, key *SigningKey) error
	// FindCurrent returns the newest active, non-expired key.
	FindCurrent(ctx context.Context) (*SigningKey, error)
	// FindVerification returns every active, non-expired key, newest first.
	FindVerification(ctx context.Context) ([]*SigningKey, error)
	FindByKeyID(ctx context.Context, keyID string) (*SigningKey, error)
	// DeactivateExpired clears the active flag on keys whose expiry has
	// passed and reports how many rows changed.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// CredentialRepository stores machine-client credentials and their
// authorized resource relations.
type CredentialRepository interface {
	Save(ctx context.Context, credential *ClientCredential) error
	FindByAppID(ctx context.Context, appID string) (*ClientCredential, error)
	// ResourceIDs returns the ids of the resources the credential may call,
	// in store order.
	ResourceIDs(ctx context.Context, credentialID string) ([]string, error)
	AssignResource(ctx context.Context, credentialID, resourceID string) error
}

// ResourceRepository stores protected-resource descriptors.
type ResourceRepository interface {
	Save(ctx context.Context, resource *Resource) error
	FindByIDs(ctx context.Context, ids []string) ([]*Resource, error)
}

// UserDirectory resolves a username to its current authorities. Refresh
// rotation re-derives authorities through this seam instead of trusting
// the ones cached in the old record.
type UserDirectory interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
}
