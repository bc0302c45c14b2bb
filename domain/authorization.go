package domain

import "time"

// TokenKind identifies which slot of an AuthorizationRecord a token value
// belongs to.
type TokenKind string

const (
	TokenKindAccessToken       TokenKind = "access_token"
	TokenKindRefreshToken      TokenKind = "refresh_token"
	TokenKindAuthorizationCode TokenKind = "authorization_code"
	TokenKindIDToken           TokenKind = "id_token"
)

// AuthorizationToken is one token cell of an authorization record.
type AuthorizationToken struct {
	Value     string         `bson:"value" json:"value"`
	IssuedAt  time.Time      `bson:"issued_at" json:"issued_at"`
	ExpiresAt time.Time      `bson:"expires_at" json:"expires_at"`
	Metadata  map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// Expired reports whether the token's expiry has passed.
func (t *AuthorizationToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// AccessTokenCell extends the plain token cell with the bearer type and the
// scopes granted to the access token.
type AccessTokenCell struct {
	AuthorizationToken `bson:",inline"`

	TokenType string   `bson:"token_type" json:"token_type"`
	Scopes    []string `bson:"scopes,omitempty" json:"scopes,omitempty"`
}

// AuthorizationRecord is the persisted state of one issued token family:
// the authorization code, access, refresh and ID tokens minted for a single
// grant, plus the owning client and principal. A record is created when a
// grant succeeds; refresh rotation creates a new record instead of mutating
// the old one. Records are never eagerly purged, they die by expiry.
type AuthorizationRecord struct {
	ID                 string         `bson:"_id" json:"id"`
	RegisteredClientID string         `bson:"registered_client_id" json:"registered_client_id"`
	PrincipalName      string         `bson:"principal_name" json:"principal_name"`
	GrantType          string         `bson:"grant_type" json:"grant_type"`
	AuthorizedScopes   []string       `bson:"authorized_scopes,omitempty" json:"authorized_scopes,omitempty"`
	Attributes         map[string]any `bson:"attributes,omitempty" json:"attributes,omitempty"`

	AuthorizationCode *AuthorizationToken `bson:"authorization_code,omitempty" json:"authorization_code,omitempty"`
	AccessToken       *AccessTokenCell    `bson:"access_token,omitempty" json:"access_token,omitempty"`
	RefreshToken      *AuthorizationToken `bson:"refresh_token,omitempty" json:"refresh_token,omitempty"`
	IDToken           *AuthorizationToken `bson:"id_token,omitempty" json:"id_token,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// AccessTokenJTI returns the unique token id recorded for the access token,
// or "" when none was recorded (opaque tokens issued before persistence of
// the jti, or records without an access token).
func (r *AuthorizationRecord) AccessTokenJTI() string {
	if r.AccessToken == nil || r.AccessToken.Metadata == nil {
		return ""
	}
	jti, _ := r.AccessToken.Metadata["jti"].(string)
	return jti
}

// Attribute returns a string attribute of the record, or "" when absent.
func (r *AuthorizationRecord) Attribute(key string) string {
	if r.Attributes == nil {
		return ""
	}
	v, _ := r.Attributes[key].(string)
	return v
}
