package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/iam/cache"
	"go.pilab.hu/iam/internal/metrics"
)

// BlacklistService manages mid-lifetime revocation of otherwise-valid
// tokens by their unique id. It does not delete authorization records;
// logout does that.
type BlacklistService struct {
	store cache.Blacklist
}

// NewBlacklistService creates a new BlacklistService instance.
func NewBlacklistService(store cache.Blacklist) *BlacklistService {
	return &BlacklistService{store: store}
}

// Revoke blacklists the jti for exactly the token's remaining lifetime.
func (s *BlacklistService) Revoke(ctx context.Context, jti string, remainingTTL time.Duration) error {
	if err := s.store.Revoke(ctx, jti, remainingTTL); err != nil {
		return err
	}
	metrics.TokensRevokedTotal.Inc()
	log.Info().Str("jti", jti).Dur("ttl", remainingTTL).Msg("Token blacklisted")
	return nil
}

// IsRevoked reports whether the jti is currently blacklisted. Every
// verifier of a self-contained token must consult this even when the
// signature is valid.
func (s *BlacklistService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return s.store.IsRevoked(ctx, jti)
}

// Unrevoke removes the jti from the blacklist before its natural expiry.
func (s *BlacklistService) Unrevoke(ctx context.Context, jti string) error {
	if err := s.store.Unrevoke(ctx, jti); err != nil {
		return err
	}
	log.Info().Str("jti", jti).Msg("Token removed from blacklist")
	return nil
}

// Stats returns the current blacklist size. Expired entries are evicted by
// the store's own TTL mechanism; this is a diagnostics operation.
func (s *BlacklistService) Stats(ctx context.Context) (int64, error) {
	size, err := s.store.Size(ctx)
	if err != nil {
		return 0, err
	}
	log.Debug().Int64("size", size).Msg("Blacklist stats collected")
	return size, nil
}
