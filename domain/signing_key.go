package domain

import "time"

// SigningKey is one asymmetric signing key of the key ring. Key material is
// stored as base64-encoded DER (PKCS#8 private, PKIX public). Among the
// non-expired rows the most recently created one is used for signing; all
// non-expired active rows are published for verification so tokens signed
// by an outgoing key stay verifiable during rotation. Rows are deactivated
// once expired but never hard-deleted.
type SigningKey struct {
	KeyID      string    `bson:"_id" json:"key_id"`
	KeyType    string    `bson:"key_type" json:"key_type"`
	Algorithm  string    `bson:"algorithm" json:"algorithm"`
	PublicKey  string    `bson:"public_key" json:"public_key"`
	PrivateKey string    `bson:"private_key" json:"-"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt  time.Time `bson:"expires_at" json:"expires_at"`
	IsActive   bool      `bson:"is_active" json:"is_active"`
}

// Expired reports whether the key's lifetime has passed.
func (k *SigningKey) Expired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}
