package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"go.pilab.hu/iam/domain"
	serrors "go.pilab.hu/iam/errors"
	"go.pilab.hu/iam/internal/metrics"
)

// TokenResponse is the token-endpoint response body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Username     string `json:"username,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
}

// OAuthService orchestrates the password grant, refresh rotation and
// logout over the authorization record store, the client repository, the
// user directory and the token format dispatcher.
type OAuthService struct {
	authorizations domain.AuthorizationRepository
	clients        domain.ClientRepository
	users          domain.UserDirectory
	generator      TokenGenerator
}

// NewOAuthService creates a new OAuthService instance.
func NewOAuthService(
	authorizations domain.AuthorizationRepository,
	clients domain.ClientRepository,
	users domain.UserDirectory,
	generator TokenGenerator,
) *OAuthService {
	return &OAuthService{
		authorizations: authorizations,
		clients:        clients,
		users:          users,
		generator:      generator,
	}
}

// PasswordGrant authenticates a first-party user and issues a full token
// family for the given client. Callers never receive a partial family: the
// response is built only after the record persisted.
func (s *OAuthService) PasswordGrant(ctx context.Context, clientID, username, password string) (*TokenResponse, error) {
	client, err := s.lookupClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, serrors.NewInvalidGrant("invalid username or password")
		}
		return nil, serrors.NewServerError("user directory unavailable")
	}
	if !user.Enabled {
		return nil, serrors.NewInvalidGrant("account is disabled")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, serrors.NewInvalidGrant("invalid username or password")
	}

	resp, err := s.issueFamily(ctx, client, username, domain.GrantTypePassword, user.Authorities, nil)
	if err != nil {
		return nil, err
	}

	metrics.TokensIssuedTotal.Inc()
	log.Info().Str("username", username).Str("client_id", clientID).Msg("Password grant succeeded")
	resp.Username = username
	resp.ClientID = clientID
	return resp, nil
}

// Refresh performs one token rotation: it validates the presented refresh
// token, re-derives the principal's current authorities, mints a new
// access+refresh pair and persists it as a new record. The prior record is
// left untouched; the old refresh token stays usable until its own expiry.
// There is no refresh-token reuse detection.
func (s *OAuthService) Refresh(ctx context.Context, refreshToken, clientID string) (*TokenResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, serrors.NewInvalidRequest("refresh_token is required")
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, serrors.NewInvalidClient("client_id is required")
	}

	record, err := s.authorizations.FindByToken(ctx, refreshToken, domain.TokenKindRefreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, serrors.NewInvalidGrant("refresh token is invalid")
		}
		return nil, serrors.NewServerError("authorization store unavailable")
	}
	if record.RefreshToken == nil || record.RefreshToken.Expired(time.Now()) {
		return nil, serrors.NewInvalidGrant("refresh token has expired")
	}

	client, err := s.lookupClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.ID != record.RegisteredClientID {
		return nil, serrors.NewInvalidClient("client does not own this refresh token")
	}

	// Authorities may have changed since the old family was issued, so they
	// are re-derived instead of copied from the old record.
	var authorities []string
	user, err := s.users.FindByUsername(ctx, record.PrincipalName)
	switch {
	case err == nil:
		authorities = user.Authorities
	case errors.Is(err, domain.ErrUserNotFound):
		// Machine principals have no directory entry.
	default:
		return nil, serrors.NewServerError("user directory unavailable")
	}

	resp, err := s.issueFamily(ctx, client, record.PrincipalName, record.GrantType, authorities, record.Attributes)
	if err != nil {
		return nil, err
	}

	metrics.TokensRefreshedTotal.Inc()
	log.Info().Str("principal", record.PrincipalName).Str("client_id", clientID).Msg("Refresh rotation completed")
	return resp, nil
}

// Logout removes the authorization record owning the presented access
// token, revoking the whole family. Unknown tokens are treated as already
// logged out.
func (s *OAuthService) Logout(ctx context.Context, accessToken, clientID string) error {
	if strings.TrimSpace(accessToken) == "" {
		return serrors.NewInvalidRequest("access token is required")
	}

	record, err := s.authorizations.FindByToken(ctx, accessToken, domain.TokenKindAccessToken)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil
		}
		return serrors.NewServerError("authorization store unavailable")
	}

	if clientID != "" {
		client, lookupErr := s.lookupClient(ctx, clientID)
		if lookupErr != nil {
			return lookupErr
		}
		if client.ID != record.RegisteredClientID {
			return serrors.NewInvalidClient("client does not own this token")
		}
	}

	if err := s.authorizations.Remove(ctx, record.ID); err != nil {
		return serrors.NewServerError("failed to revoke authorization")
	}
	log.Info().Str("principal", record.PrincipalName).Str("record_id", record.ID).Msg("Authorization revoked on logout")
	return nil
}

// issueFamily mints a new access (+refresh, when the client supports the
// refresh_token grant) pair and persists it as a new authorization record.
// A persistence failure yields an error, never a token the client could not
// later refresh.
func (s *OAuthService) issueFamily(
	ctx context.Context,
	client *domain.RegisteredClient,
	principal, grantType string,
	authorities []string,
	attributes map[string]any,
) (*TokenResponse, error) {
	accessCtx := TokenContext{
		Client:        client,
		PrincipalName: principal,
		GrantType:     grantType,
		Scopes:        client.Scopes,
		Authorities:   authorities,
		Kind:          domain.TokenKindAccessToken,
	}
	access, err := s.generator.Generate(ctx, accessCtx)
	if err != nil {
		log.Error().Err(err).Str("client_id", client.ClientID).Msg("Access token generation failed")
		return nil, serrors.NewServerError("failed to generate access token")
	}

	record := &domain.AuthorizationRecord{
		ID:                 uuid.NewString(),
		RegisteredClientID: client.ID,
		PrincipalName:      principal,
		GrantType:          grantType,
		AuthorizedScopes:   client.Scopes,
		Attributes:         attributes,
		AccessToken: &domain.AccessTokenCell{
			AuthorizationToken: domain.AuthorizationToken{
				Value:     access.Value,
				IssuedAt:  access.IssuedAt,
				ExpiresAt: access.ExpiresAt,
				Metadata:  map[string]any{"jti": access.ID, "format": string(access.Format)},
			},
			TokenType: "Bearer",
			Scopes:    client.Scopes,
		},
		CreatedAt: time.Now(),
	}

	var refresh *GeneratedToken
	if client.SupportsGrantType(domain.GrantTypeRefreshToken) {
		refreshCtx := accessCtx
		refreshCtx.Kind = domain.TokenKindRefreshToken
		refresh, err = s.generator.Generate(ctx, refreshCtx)
		if err != nil {
			log.Error().Err(err).Str("client_id", client.ClientID).Msg("Refresh token generation failed")
			return nil, serrors.NewServerError("failed to generate refresh token")
		}
		record.RefreshToken = &domain.AuthorizationToken{
			Value:     refresh.Value,
			IssuedAt:  refresh.IssuedAt,
			ExpiresAt: refresh.ExpiresAt,
			Metadata:  map[string]any{"jti": refresh.ID},
		}
	}

	if err := s.authorizations.Save(ctx, record); err != nil {
		log.Error().Err(err).Str("record_id", record.ID).Msg("Failed to persist authorization record")
		return nil, serrors.NewServerError("failed to persist authorization")
	}

	resp := &TokenResponse{
		AccessToken: access.Value,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(access.ExpiresAt).Seconds()),
		Scope:       strings.Join(client.Scopes, " "),
	}
	if refresh != nil {
		resp.RefreshToken = refresh.Value
	}
	return resp, nil
}

func (s *OAuthService) lookupClient(ctx context.Context, clientID string) (*domain.RegisteredClient, error) {
	client, err := s.clients.FindByClientID(ctx, strings.TrimSpace(clientID))
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) {
			return nil, serrors.NewInvalidClient(fmt.Sprintf("client %q is not registered", clientID))
		}
		return nil, serrors.NewServerError("client store unavailable")
	}
	return client, nil
}
