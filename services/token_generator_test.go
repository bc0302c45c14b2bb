package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/iam/domain"
	"go.pilab.hu/iam/internal/crypto"
)

func testClient(format domain.AccessTokenFormat) *domain.RegisteredClient {
	return &domain.RegisteredClient{
		ID:         "client-internal-1",
		ClientID:   "web-app",
		GrantTypes: []string{domain.GrantTypePassword, domain.GrantTypeRefreshToken},
		Scopes:     []string{"profile", "email"},
		TokenSettings: domain.TokenSettings{
			AccessTokenTTL:    time.Hour,
			RefreshTokenTTL:   24 * time.Hour,
			AccessTokenFormat: format,
			SigningAlgorithm:  "RS256",
		},
	}
}

func newTestDispatcher(t *testing.T, serviceClientID string) (*FormatDispatcher, *KeyRing) {
	t.Helper()
	ring := NewKeyRing(newFakeSigningKeyRepo(), time.Hour)
	jwtGen := NewJWTTokenGenerator(ring, "https://iam.example.com")
	return NewFormatDispatcher(jwtGen, serviceClientID), ring
}

func TestOpaqueTokensCarryNoStructure(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, "")
	tc := TokenContext{
		Client:        testClient(domain.TokenFormatOpaque),
		PrincipalName: "alice",
		GrantType:     domain.GrantTypePassword,
		Kind:          domain.TokenKindAccessToken,
	}

	token, err := dispatcher.Generate(context.Background(), tc)
	require.NoError(t, err)

	assert.Equal(t, domain.TokenFormatOpaque, token.Format)
	assert.NotEmpty(t, token.ID)
	assert.WithinDuration(t, token.IssuedAt.Add(time.Hour), token.ExpiresAt, time.Second)

	// An opaque token must not parse as a signed token.
	_, _, err = jwt.NewParser().ParseUnverified(token.Value, jwt.MapClaims{})
	assert.Error(t, err)
}

func TestSelfContainedTokenClaims(t *testing.T) {
	dispatcher, ring := newTestDispatcher(t, "")
	tc := TokenContext{
		Client:        testClient(domain.TokenFormatSelfContained),
		PrincipalName: "alice",
		GrantType:     domain.GrantTypePassword,
		Authorities:   []string{"ROLE_USER", "ROLE_ADMIN"},
		Kind:          domain.TokenKindAccessToken,
	}

	token, err := dispatcher.Generate(context.Background(), tc)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenFormatSelfContained, token.Format)

	signingKey, err := ring.CurrentSigningKey(context.Background())
	require.NoError(t, err)
	pub, err := crypto.DecodePublicKey(signingKey.PublicKey)
	require.NoError(t, err)

	parsed, err := jwt.Parse(token.Value, func(tok *jwt.Token) (any, error) {
		require.Equal(t, "RS256", tok.Method.Alg())
		require.Equal(t, signingKey.KeyID, tok.Header["kid"])
		return pub, nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "https://iam.example.com", claims["iss"])
	assert.Equal(t, "alice", claims["sub"])
	assert.Equal(t, token.ID, claims["jti"])
	aud, err := claims.GetAudience()
	require.NoError(t, err)
	assert.Equal(t, jwt.ClaimStrings{"web-app"}, aud)
	assert.ElementsMatch(t, []any{"ROLE_USER", "ROLE_ADMIN"}, claims["authorities"])

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.WithinDuration(t, token.IssuedAt.Add(time.Hour), exp.Time, time.Second)
}

func TestRefreshTokensAreAlwaysOpaque(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, "")
	tc := TokenContext{
		Client:        testClient(domain.TokenFormatSelfContained),
		PrincipalName: "alice",
		GrantType:     domain.GrantTypeRefreshToken,
		Kind:          domain.TokenKindRefreshToken,
	}

	token, err := dispatcher.Generate(context.Background(), tc)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenFormatOpaque, token.Format)
	assert.False(t, strings.Contains(token.Value, "."))
	assert.WithinDuration(t, token.IssuedAt.Add(24*time.Hour), token.ExpiresAt, time.Second)
}

func TestServiceClientOverrideForcesOpaque(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, "openapi")

	client := testClient(domain.TokenFormatSelfContained)
	client.ClientID = "openapi"
	tc := TokenContext{
		Client:        client,
		PrincipalName: "svc",
		GrantType:     domain.GrantTypeClientCredentials,
		Kind:          domain.TokenKindAccessToken,
	}

	token, err := dispatcher.Generate(context.Background(), tc)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenFormatOpaque, token.Format)
}

func TestUnknownFormatFailsTheGrant(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, "")
	tc := TokenContext{
		Client:        testClient("SAML_ASSERTION"),
		PrincipalName: "alice",
		Kind:          domain.TokenKindAccessToken,
	}

	_, err := dispatcher.Generate(context.Background(), tc)
	require.ErrorIs(t, err, ErrNoTokenGenerator)
}

func TestMissingTokenLifetimeFailsTheGrant(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, "")

	t.Run("opaque access token", func(t *testing.T) {
		client := testClient(domain.TokenFormatOpaque)
		client.TokenSettings.AccessTokenTTL = 0

		_, err := dispatcher.Generate(context.Background(), TokenContext{
			Client:        client,
			PrincipalName: "alice",
			Kind:          domain.TokenKindAccessToken,
		})
		require.ErrorContains(t, err, "lifetime is not configured")
	})

	t.Run("self-contained access token", func(t *testing.T) {
		client := testClient(domain.TokenFormatSelfContained)
		client.TokenSettings.AccessTokenTTL = -time.Minute

		_, err := dispatcher.Generate(context.Background(), TokenContext{
			Client:        client,
			PrincipalName: "alice",
			Kind:          domain.TokenKindAccessToken,
		})
		require.ErrorContains(t, err, "lifetime is not configured")
	})

	t.Run("refresh token", func(t *testing.T) {
		client := testClient(domain.TokenFormatOpaque)
		client.TokenSettings.RefreshTokenTTL = 0

		_, err := dispatcher.Generate(context.Background(), TokenContext{
			Client:        client,
			PrincipalName: "alice",
			Kind:          domain.TokenKindRefreshToken,
		})
		require.ErrorContains(t, err, "lifetime is not configured")
	})
}

func TestFormatFallbackWhenSigningUnavailable(t *testing.T) {
	repo := newFakeSigningKeyRepo()
	ring := NewKeyRing(repo, time.Hour)
	jwtGen := NewJWTTokenGenerator(ring, "https://iam.example.com")

	// Seed a corrupt active key so signing fails at decode time.
	key, err := ring.CurrentSigningKey(context.Background())
	require.NoError(t, err)
	key.PrivateKey = "not-a-key"
	require.NoError(t, repo.Save(context.Background(), key))

	dispatcher := NewFormatDispatcher(jwtGen, "")

	client := testClient(domain.TokenFormatSelfContained)
	tc := TokenContext{Client: client, PrincipalName: "alice", Kind: domain.TokenKindAccessToken}

	// Fallback disabled: the grant fails.
	_, err = dispatcher.Generate(context.Background(), tc)
	require.Error(t, err)

	// Fallback enabled: an opaque token is issued instead.
	client.TokenSettings.AllowFormatFallback = true
	token, err := dispatcher.Generate(context.Background(), tc)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenFormatOpaque, token.Format)
}
