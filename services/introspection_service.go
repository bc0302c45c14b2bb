package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/iam/cache"
	"go.pilab.hu/iam/domain"
	"go.pilab.hu/iam/internal/metrics"
)

// IntrospectionService resolves a token value back to its active/claims
// state and enriches machine-client claims with their authorized resource
// permissions.
type IntrospectionService struct {
	authorizations domain.AuthorizationRepository
	credentials    domain.CredentialRepository
	resources      domain.ResourceRepository
	blacklist      cache.Blacklist
}

// NewIntrospectionService creates a new IntrospectionService instance.
func NewIntrospectionService(
	authorizations domain.AuthorizationRepository,
	credentials domain.CredentialRepository,
	resources domain.ResourceRepository,
	blacklist cache.Blacklist,
) *IntrospectionService {
	return &IntrospectionService{
		authorizations: authorizations,
		credentials:    credentials,
		resources:      resources,
		blacklist:      blacklist,
	}
}

// Introspect resolves the token to its claims. Unknown, expired and
// blacklisted tokens yield {active: false}; absence is a normal outcome,
// not an error. Store failures are returned as errors so callers can
// distinguish "not found" from "store unavailable".
func (s *IntrospectionService) Introspect(ctx context.Context, token string) (map[string]any, error) {
	metrics.IntrospectionsTotal.Inc()

	record, err := s.authorizations.FindByToken(ctx, token, domain.TokenKindAccessToken)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return map[string]any{"active": false}, nil
		}
		return nil, err
	}
	if record.AccessToken == nil || record.AccessToken.Expired(time.Now()) {
		return map[string]any{"active": false}, nil
	}

	// A valid record only proves the token was legitimately issued, not
	// that it is still trusted.
	if jti := record.AccessTokenJTI(); jti != "" {
		revoked, revErr := s.blacklist.IsRevoked(ctx, jti)
		if revErr != nil {
			return nil, revErr
		}
		if revoked {
			log.Debug().Str("jti", jti).Msg("Introspected token is blacklisted")
			return map[string]any{"active": false}, nil
		}
	}

	claims := map[string]any{
		"active":    true,
		"client_id": record.RegisteredClientID,
		"aud":       []string{"api://default"},
	}
	if record.PrincipalName != "" {
		claims["username"] = record.PrincipalName
	}
	if !record.AccessToken.IssuedAt.IsZero() {
		claims["iat"] = record.AccessToken.IssuedAt.Unix()
	}
	if !record.AccessToken.ExpiresAt.IsZero() {
		claims["exp"] = record.AccessToken.ExpiresAt.Unix()
	}

	s.enrich(ctx, record, claims)
	return claims, nil
}

// enrich adds the caller's authorized resource codes as the authorities and
// scope claims. Human principals have no machine credential; their claims
// are returned unmodified.
func (s *IntrospectionService) enrich(ctx context.Context, record *domain.AuthorizationRecord, claims map[string]any) {
	appID := record.Attribute("app_id")
	if appID == "" {
		return
	}

	credential, err := s.credentials.FindByAppID(ctx, appID)
	if err != nil {
		if !errors.Is(err, domain.ErrCredentialNotFound) {
			log.Warn().Err(err).Str("app_id", appID).Msg("Credential lookup failed during enrichment")
		}
		return
	}
	if !credential.Enabled {
		return
	}

	resourceIDs, err := s.credentials.ResourceIDs(ctx, credential.ID)
	if err != nil {
		log.Warn().Err(err).Str("credential_id", credential.ID).Msg("Resource relation lookup failed")
		return
	}
	if len(resourceIDs) == 0 {
		return
	}

	resources, err := s.resources.FindByIDs(ctx, resourceIDs)
	if err != nil {
		log.Warn().Err(err).Str("credential_id", credential.ID).Msg("Resource lookup failed")
		return
	}

	// Emitted in store order, no re-sorting.
	codes := make([]string, 0, len(resources))
	for _, resource := range resources {
		if resource.Enabled {
			codes = append(codes, resource.Code)
		}
	}
	if len(codes) == 0 {
		return
	}

	joined := strings.Join(codes, " ")
	claims["authorities"] = joined
	claims["scope"] = joined
}
