package domain

import "time"

// ClientCredential is a machine-client identity (app id / app secret pair),
// distinct from the RegisteredClient it is linked to. Only the bcrypt hash
// of the secret is persisted; the plaintext is returned once at creation
// and cannot be retrieved again.
type ClientCredential struct {
	ID                 string    `bson:"_id" json:"id"`
	AppID              string    `bson:"app_id" json:"app_id"`
	AppSecret          string    `bson:"app_secret" json:"-"` // bcrypt hash
	RegisteredClientID string    `bson:"registered_client_id" json:"registered_client_id"`
	Enabled            bool      `bson:"enabled" json:"enabled"`
	Remark             string    `bson:"remark,omitempty" json:"remark,omitempty"`
	CreatedAt          time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time `bson:"updated_at" json:"updated_at"`
}

// CredentialCreateResult carries the plaintext secret back to the creator,
// exactly once. It is never persisted.
type CredentialCreateResult struct {
	Credential *ClientCredential `json:"credential"`
	AppSecret  string            `json:"app_secret"`
}

// Resource describes a protected API surface. The rate-limit fields are
// declared configuration consumed by an external policy engine; nothing in
// this server enforces them.
type Resource struct {
	ID     string `bson:"_id" json:"id"`
	Code   string `bson:"code" json:"code"`
	Name   string `bson:"name" json:"name"`
	Path   string `bson:"path" json:"path"`
	Method string `bson:"method" json:"method"`

	QPSLimit         int64 `bson:"qps_limit,omitempty" json:"qps_limit,omitempty"`
	BurstLimit       int64 `bson:"burst_limit,omitempty" json:"burst_limit,omitempty"`
	DailyQuota       int64 `bson:"daily_quota,omitempty" json:"daily_quota,omitempty"`
	ConcurrencyLimit int64 `bson:"concurrency_limit,omitempty" json:"concurrency_limit,omitempty"`

	Enabled   bool      `bson:"enabled" json:"enabled"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// CredentialResourceRel links a credential to one resource it may call.
type CredentialResourceRel struct {
	CredentialID string    `bson:"credential_id" json:"credential_id"`
	ResourceID   string    `bson:"resource_id" json:"resource_id"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}
