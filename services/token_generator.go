package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/iam/domain"
	"go.pilab.hu/iam/internal/crypto"
)

// ErrNoTokenGenerator is returned when a client's configured token format
// does not resolve to a generator. The grant fails; there is no silent
// fallback.
var ErrNoTokenGenerator = errors.New("no token generator for configured format")

// TokenContext carries everything a generator needs to mint one token.
type TokenContext struct {
	Client        *domain.RegisteredClient
	PrincipalName string
	GrantType     string
	Scopes        []string
	// Authorities are the principal's granted authorities at issuance time.
	Authorities []string
	Kind        domain.TokenKind
}

// GeneratedToken is the outcome of minting a single token.
type GeneratedToken struct {
	Value     string
	ID        string // jti
	IssuedAt  time.Time
	ExpiresAt time.Time
	Format    domain.AccessTokenFormat
}

// TokenGenerator mints one token for a token context.
type TokenGenerator interface {
	Generate(ctx context.Context, tc TokenContext) (*GeneratedToken, error)
}

// RandomToken returns a cryptographically random, base64url-encoded value
// with numBytes bytes of entropy and no embedded structure.
func RandomToken(numBytes int) (string, error) {
	buf := make([]byte, numBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// OpaqueTokenGenerator mints random reference tokens.
type OpaqueTokenGenerator struct{}

// Generate implements TokenGenerator.
func (g *OpaqueTokenGenerator) Generate(_ context.Context, tc TokenContext) (*GeneratedToken, error) {
	ttl, err := tokenTTL(tc)
	if err != nil {
		return nil, err
	}

	value, err := RandomToken(32)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &GeneratedToken{
		Value:     value,
		ID:        uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		Format:    domain.TokenFormatOpaque,
	}, nil
}

// JWTTokenGenerator mints RS256-signed self-contained tokens using the key
// ring's current signing key.
type JWTTokenGenerator struct {
	keyRing *KeyRing
	issuer  string
}

// NewJWTTokenGenerator creates a signed-token generator.
func NewJWTTokenGenerator(keyRing *KeyRing, issuer string) *JWTTokenGenerator {
	return &JWTTokenGenerator{keyRing: keyRing, issuer: issuer}
}

// Generate implements TokenGenerator.
func (g *JWTTokenGenerator) Generate(ctx context.Context, tc TokenContext) (*GeneratedToken, error) {
	ttl, err := tokenTTL(tc)
	if err != nil {
		return nil, err
	}

	signingKey, err := g.keyRing.CurrentSigningKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot obtain signing key: %w", err)
	}
	privateKey, err := crypto.DecodePrivateKey(signingKey.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("cannot decode signing key %s: %w", signingKey.KeyID, err)
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	jti := uuid.NewString()

	claims := jwt.MapClaims{
		"iss": g.issuer,
		"sub": tc.PrincipalName,
		"aud": jwt.ClaimStrings{tc.Client.ClientID},
		"iat": jwt.NewNumericDate(now).Unix(),
		"nbf": jwt.NewNumericDate(now).Unix(),
		"exp": jwt.NewNumericDate(expiresAt).Unix(),
		"jti": jti,
	}
	if len(tc.Authorities) > 0 {
		claims["authorities"] = tc.Authorities
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = signingKey.KeyID

	signed, err := token.SignedString(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &GeneratedToken{
		Value:     signed,
		ID:        jti,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		Format:    domain.TokenFormatSelfContained,
	}, nil
}

// FormatDispatcher selects the generator for a token context from the
// client's configured access-token format. Two rules override the
// configuration: refresh tokens are always opaque (they are never presented
// to resource servers), and the designated service-to-service client always
// receives opaque tokens even if its format is misconfigured.
type FormatDispatcher struct {
	opaque          *OpaqueTokenGenerator
	jwt             *JWTTokenGenerator
	serviceClientID string
}

// NewFormatDispatcher creates the per-client token format dispatcher.
// serviceClientID is the hard opaque override; empty disables it.
func NewFormatDispatcher(jwtGen *JWTTokenGenerator, serviceClientID string) *FormatDispatcher {
	return &FormatDispatcher{
		opaque:          &OpaqueTokenGenerator{},
		jwt:             jwtGen,
		serviceClientID: serviceClientID,
	}
}

// Generate implements TokenGenerator.
func (d *FormatDispatcher) Generate(ctx context.Context, tc TokenContext) (*GeneratedToken, error) {
	if tc.Kind == domain.TokenKindRefreshToken {
		return d.opaque.Generate(ctx, tc)
	}

	if d.serviceClientID != "" && tc.Client.ClientID == d.serviceClientID {
		log.Debug().Str("client_id", tc.Client.ClientID).Msg("Service client override, issuing opaque token")
		return d.opaque.Generate(ctx, tc)
	}

	switch tc.Client.TokenSettings.AccessTokenFormat {
	case domain.TokenFormatOpaque:
		return d.opaque.Generate(ctx, tc)
	case domain.TokenFormatSelfContained:
		token, err := d.jwt.Generate(ctx, tc)
		if err != nil && tc.Client.TokenSettings.AllowFormatFallback {
			log.Warn().Err(err).Str("client_id", tc.Client.ClientID).
				Msg("Signed token generation failed, falling back to opaque token")
			return d.opaque.Generate(ctx, tc)
		}
		return token, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrNoTokenGenerator, tc.Client.TokenSettings.AccessTokenFormat)
	}
}

// tokenTTL resolves the lifetime for the requested token kind. A client
// with a zero or negative lifetime fails the grant; minting a token that
// expires at issuance would only surface later as inexplicable rejections.
func tokenTTL(tc TokenContext) (time.Duration, error) {
	ttl := tc.Client.TokenSettings.AccessTokenTTL
	if tc.Kind == domain.TokenKindRefreshToken {
		ttl = tc.Client.TokenSettings.RefreshTokenTTL
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("token lifetime is not configured for client %q (%s)", tc.Client.ClientID, tc.Kind)
	}
	return ttl, nil
}
