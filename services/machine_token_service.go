package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"go.pilab.hu/iam/cache"
	"go.pilab.hu/iam/domain"
	serrors "go.pilab.hu/iam/errors"
	"go.pilab.hu/iam/internal/metrics"
)

const minMachineTokenTTL = time.Minute

// MachineTokenOptions tunes the app-id/app-secret grant.
type MachineTokenOptions struct {
	// ProgramTTL overrides the client-configured access token lifetime when
	// positive. Clamped to minMachineTokenTTL.
	ProgramTTL time.Duration
	// PersistGrants additionally records each issued token as an
	// authorization record, making it introspectable like any other grant.
	PersistGrants bool
}

// MachineTokenService implements the machine-client (app-id/app-secret)
// grant over the ephemeral token store. This is the single issuance path
// for machine tokens; there is no delegation to the interactive token
// endpoint.
type MachineTokenService struct {
	credentials    domain.CredentialRepository
	clients        domain.ClientRepository
	authorizations domain.AuthorizationRepository
	store          cache.MachineTokenStore
	opts           MachineTokenOptions
}

// NewMachineTokenService creates a new MachineTokenService instance.
func NewMachineTokenService(
	credentials domain.CredentialRepository,
	clients domain.ClientRepository,
	authorizations domain.AuthorizationRepository,
	store cache.MachineTokenStore,
	opts MachineTokenOptions,
) *MachineTokenService {
	return &MachineTokenService{
		credentials:    credentials,
		clients:        clients,
		authorizations: authorizations,
		store:          store,
		opts:           opts,
	}
}

// Issue verifies the presented app-id/app-secret pair and returns a new
// opaque token written to the ephemeral store with the configured TTL.
func (s *MachineTokenService) Issue(ctx context.Context, appID, appSecret string) (*TokenResponse, error) {
	credential, err := s.credentials.FindByAppID(ctx, appID)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return nil, serrors.NewInvalidClient("invalid client credential")
		}
		return nil, serrors.NewServerError("credential store unavailable")
	}
	if !credential.Enabled {
		return nil, serrors.NewInvalidClient("client credential is disabled")
	}
	if bcrypt.CompareHashAndPassword([]byte(credential.AppSecret), []byte(appSecret)) != nil {
		return nil, serrors.NewInvalidClient("invalid app secret")
	}

	if credential.RegisteredClientID == "" {
		log.Error().Str("app_id", appID).Msg("Credential has no linked OAuth client")
		return nil, serrors.NewServerError("credential is not linked to an OAuth client")
	}
	client, err := s.clients.FindByID(ctx, credential.RegisteredClientID)
	if err != nil {
		log.Error().Err(err).Str("app_id", appID).Msg("Linked OAuth client lookup failed")
		return nil, serrors.NewServerError("linked OAuth client is not registered")
	}

	ttl, err := s.tokenTTL(client)
	if err != nil {
		return nil, err
	}

	token, err := RandomToken(32)
	if err != nil {
		return nil, serrors.NewServerError("failed to generate token")
	}

	now := time.Now()
	if s.opts.PersistGrants {
		record := &domain.AuthorizationRecord{
			ID:                 uuid.NewString(),
			RegisteredClientID: client.ID,
			PrincipalName:      appID,
			GrantType:          domain.GrantTypeClientCredentials,
			AuthorizedScopes:   client.Scopes,
			Attributes:         map[string]any{"app_id": appID},
			AccessToken: &domain.AccessTokenCell{
				AuthorizationToken: domain.AuthorizationToken{
					Value:     token,
					IssuedAt:  now,
					ExpiresAt: now.Add(ttl),
					Metadata:  map[string]any{"jti": uuid.NewString()},
				},
				TokenType: "Bearer",
				Scopes:    client.Scopes,
			},
			CreatedAt: now,
		}
		if err := s.authorizations.Save(ctx, record); err != nil {
			log.Error().Err(err).Str("app_id", appID).Msg("Failed to persist machine grant")
			return nil, serrors.NewServerError("failed to persist authorization")
		}
	}

	entry := &cache.MachineTokenEntry{
		AppID:        appID,
		CredentialID: credential.ID,
		ClientID:     client.ClientID,
		Scope:        strings.Join(client.Scopes, " "),
		CreatedAt:    now,
	}
	if err := s.store.Set(ctx, token, entry, ttl); err != nil {
		log.Error().Err(err).Str("app_id", appID).Msg("Failed to write machine token to store")
		return nil, serrors.NewServerError("token store unavailable")
	}

	metrics.MachineTokensIssuedTotal.Inc()
	log.Info().Str("app_id", appID).Dur("ttl", ttl).Msg("Machine token issued")

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
		Scope:       entry.Scope,
	}, nil
}

// Validate reports whether the token is live. A store miss falls back to
// the authorization record store and backfills the cache with the token's
// remaining lifetime.
func (s *MachineTokenService) Validate(ctx context.Context, token string) (bool, error) {
	ok, err := s.store.Has(ctx, token)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	record, err := s.findPersistedToken(ctx, token)
	if err != nil || record == nil {
		return false, err
	}

	// The token may expire between the record check and the backfill; a
	// non-positive TTL must never reach the store, where it would mean
	// "no expiry".
	remaining := time.Until(record.AccessToken.ExpiresAt)
	if remaining <= 0 {
		return false, nil
	}
	entry := &cache.MachineTokenEntry{
		AppID:     record.PrincipalName,
		ClientID:  record.RegisteredClientID,
		Scope:     strings.Join(record.AccessToken.Scopes, " "),
		CreatedAt: record.AccessToken.IssuedAt,
	}
	if err := s.store.Set(ctx, token, entry, remaining); err != nil {
		log.Warn().Err(err).Msg("Failed to backfill machine token cache")
	}
	return true, nil
}

// ResolveAppID returns the app id the token was issued to, falling back to
// the persisted record's principal, or cache.ErrTokenNotFound.
func (s *MachineTokenService) ResolveAppID(ctx context.Context, token string) (string, error) {
	entry, err := s.store.Get(ctx, token)
	if err == nil {
		return entry.AppID, nil
	}
	if !errors.Is(err, cache.ErrTokenNotFound) {
		return "", err
	}

	record, err := s.findPersistedToken(ctx, token)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", cache.ErrTokenNotFound
	}
	return record.PrincipalName, nil
}

// findPersistedToken returns the record owning the token if it exists and
// its access token has not expired; (nil, nil) otherwise.
func (s *MachineTokenService) findPersistedToken(ctx context.Context, token string) (*domain.AuthorizationRecord, error) {
	record, err := s.authorizations.FindByToken(ctx, token, domain.TokenKindAccessToken)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if record.AccessToken == nil || record.AccessToken.Expired(time.Now()) {
		return nil, nil
	}
	return record, nil
}

// tokenTTL resolves the token lifetime. The client-configured TTL must be
// explicitly positive; a missing configuration fails the grant instead of
// defaulting silently.
func (s *MachineTokenService) tokenTTL(client *domain.RegisteredClient) (time.Duration, error) {
	ttl := client.TokenSettings.AccessTokenTTL
	if s.opts.ProgramTTL > 0 {
		ttl = s.opts.ProgramTTL
		if ttl < minMachineTokenTTL {
			ttl = minMachineTokenTTL
		}
	}
	if ttl <= 0 {
		log.Error().Str("client_id", client.ClientID).Msg("Access token TTL is not configured")
		return 0, serrors.NewServerError("access token lifetime is not configured")
	}
	return ttl, nil
}
