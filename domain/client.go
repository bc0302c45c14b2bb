package domain

import "time"

// AccessTokenFormat selects how access tokens are rendered for a client.
type AccessTokenFormat string

const (
	// TokenFormatOpaque issues random reference tokens, meaningful only via
	// store lookup.
	TokenFormatOpaque AccessTokenFormat = "OPAQUE"
	// TokenFormatSelfContained issues signed tokens carrying their claims.
	TokenFormatSelfContained AccessTokenFormat = "SELF_CONTAINED"
)

// Grant type values accepted by the token endpoint.
const (
	GrantTypePassword          = "password"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeAuthorizationCode = "authorization_code"
)

// TokenSettings holds the per-client token issuance policy.
type TokenSettings struct {
	AccessTokenTTL       time.Duration     `bson:"access_token_ttl" json:"access_token_ttl"`
	RefreshTokenTTL      time.Duration     `bson:"refresh_token_ttl" json:"refresh_token_ttl"`
	AuthorizationCodeTTL time.Duration     `bson:"authorization_code_ttl" json:"authorization_code_ttl"`
	ReuseRefreshTokens   bool              `bson:"reuse_refresh_tokens" json:"reuse_refresh_tokens"`
	AccessTokenFormat    AccessTokenFormat `bson:"access_token_format" json:"access_token_format"`
	SigningAlgorithm     string            `bson:"signing_algorithm" json:"signing_algorithm"`

	// AllowFormatFallback permits falling back to an opaque token when
	// signed-token generation fails. Off by default: a signing failure
	// fails the grant.
	AllowFormatFallback bool `bson:"allow_format_fallback" json:"allow_format_fallback"`
}

// RegisteredClient is the static configuration of one OAuth client.
// Instances are immutable during a request and cached with explicit
// invalidation on save.
type RegisteredClient struct {
	ID           string `bson:"_id" json:"id"`
	ClientID     string `bson:"client_id" json:"client_id"`
	ClientSecret string `bson:"client_secret,omitempty" json:"-"` // bcrypt hash
	ClientName   string `bson:"client_name,omitempty" json:"client_name,omitempty"`

	AuthenticationMethods []string `bson:"authentication_methods,omitempty" json:"authentication_methods,omitempty"`
	GrantTypes            []string `bson:"grant_types" json:"grant_types"`
	RedirectURIs          []string `bson:"redirect_uris,omitempty" json:"redirect_uris,omitempty"`
	Scopes                []string `bson:"scopes,omitempty" json:"scopes,omitempty"`
	RequireConsent        bool     `bson:"require_consent" json:"require_consent"`
	RequirePKCE           bool     `bson:"require_pkce" json:"require_pkce"`

	TokenSettings TokenSettings `bson:"token_settings" json:"token_settings"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// SupportsGrantType reports whether the client is allowed to use the given
// grant type.
func (c *RegisteredClient) SupportsGrantType(grantType string) bool {
	for _, gt := range c.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}
