package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/iam/domain"
	"go.pilab.hu/iam/internal/crypto"
	"go.pilab.hu/iam/internal/metrics"
)

// DefaultSigningKeyTTL is how long a generated signing key stays current.
const DefaultSigningKeyTTL = 30 * 24 * time.Hour

// JSONWebKey is one public verification key in JWK form.
type JSONWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JSONWebKeySet is the published key-set document.
type JSONWebKeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// KeyRing manages the asymmetric signing keys used for self-contained
// tokens. When no usable key exists one is generated under a process-wide
// mutex (double-checked against the repository, since another caller may
// have generated one while waiting). The mutex is process-local: multiple
// server instances can race and generate duplicate keys; the verification
// key set tolerates that, so it is an accepted limitation rather than a
// correctness guarantee.
type KeyRing struct {
	repo   domain.SigningKeyRepository
	keyTTL time.Duration

	mu sync.Mutex
}

// NewKeyRing creates a KeyRing over the given repository. keyTTL <= 0
// selects DefaultSigningKeyTTL.
func NewKeyRing(repo domain.SigningKeyRepository, keyTTL time.Duration) *KeyRing {
	if keyTTL <= 0 {
		keyTTL = DefaultSigningKeyTTL
	}
	return &KeyRing{repo: repo, keyTTL: keyTTL}
}

// CurrentSigningKey returns the newest active, non-expired key, generating
// one if none exists. Generation failure is surfaced to the caller: without
// a signing key no self-contained token can be issued.
func (k *KeyRing) CurrentSigningKey(ctx context.Context) (*domain.SigningKey, error) {
	key, err := k.repo.FindCurrent(ctx)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, domain.ErrSigningKeyNotFound) {
		return nil, fmt.Errorf("failed to query signing key: %w", err)
	}

	return k.generateWithLock(ctx)
}

// VerificationKeys returns every active, non-expired key. Keys retired from
// signing remain here until expiry so tokens they signed stay verifiable.
func (k *KeyRing) VerificationKeys(ctx context.Context) ([]*domain.SigningKey, error) {
	return k.repo.FindVerification(ctx)
}

// VerificationKeyByID returns a single verification key by its kid.
func (k *KeyRing) VerificationKeyByID(ctx context.Context, keyID string) (*domain.SigningKey, error) {
	return k.repo.FindByKeyID(ctx, keyID)
}

// JWKS builds the public key-set document. Private material never leaves
// the repository row.
func (k *KeyRing) JWKS(ctx context.Context) (*JSONWebKeySet, error) {
	keys, err := k.repo.FindVerification(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list verification keys: %w", err)
	}

	set := &JSONWebKeySet{Keys: make([]JSONWebKey, 0, len(keys))}
	for _, key := range keys {
		pub, decodeErr := crypto.DecodePublicKey(key.PublicKey)
		if decodeErr != nil {
			log.Warn().Err(decodeErr).Str("kid", key.KeyID).Msg("Skipping undecodable public key in JWKS")
			continue
		}
		set.Keys = append(set.Keys, JSONWebKey{
			Kid: key.KeyID,
			Kty: key.KeyType,
			Alg: key.Algorithm,
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return set, nil
}

// generateWithLock serializes key generation within this process. The
// critical section covers only re-query, generation and persistence; no
// network call other than the repository round-trips happens under the
// lock.
func (k *KeyRing) generateWithLock(ctx context.Context) (*domain.SigningKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	// Another caller may have generated a key while we waited.
	key, err := k.repo.FindCurrent(ctx)
	if err == nil {
		log.Debug().Str("kid", key.KeyID).Msg("Signing key generated by a concurrent caller")
		return key, nil
	}
	if !errors.Is(err, domain.ErrSigningKeyNotFound) {
		return nil, fmt.Errorf("failed to re-query signing key: %w", err)
	}

	return k.generate(ctx)
}

func (k *KeyRing) generate(ctx context.Context) (*domain.SigningKey, error) {
	log.Info().Msg("Generating new signing key...")

	deactivated, err := k.repo.DeactivateExpired(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate expired signing keys: %w", err)
	}
	if deactivated > 0 {
		log.Info().Int64("count", deactivated).Msg("Deactivated expired signing keys")
	}

	rsaKey, err := crypto.GenerateRSAKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	privateDER, err := crypto.EncodePrivateKey(rsaKey)
	if err != nil {
		return nil, err
	}
	publicDER, err := crypto.EncodePublicKey(&rsaKey.PublicKey)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	key := &domain.SigningKey{
		KeyID:      uuid.NewString(),
		KeyType:    "RSA",
		Algorithm:  "RS256",
		PublicKey:  publicDER,
		PrivateKey: privateDER,
		CreatedAt:  now,
		ExpiresAt:  now.Add(k.keyTTL),
		IsActive:   true,
	}
	if err := k.repo.Save(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to persist signing key: %w", err)
	}

	metrics.SigningKeysGeneratedTotal.Inc()
	log.Info().Str("kid", key.KeyID).Time("expires_at", key.ExpiresAt).Msg("Generated new signing key")
	return key, nil
}
