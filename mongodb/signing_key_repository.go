package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/iam/domain"
)

// SigningKeyRepository implements domain.SigningKeyRepository on MongoDB.
type SigningKeyRepository struct {
	coll *mongo.Collection
}

// NewSigningKeyRepository creates the repository and ensures the active-key
// lookup index.
func NewSigningKeyRepository(ctx context.Context, db *mongo.Database) (*SigningKeyRepository, error) {
	repo := &SigningKeyRepository{coll: db.Collection(SigningKeysCollection)}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	}
	if _, err := repo.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create signing key indexes: %w", err)
	}
	return repo, nil
}

// Save stores a new key ring entry.
func (r *SigningKeyRepository) Save(ctx context.Context, key *domain.SigningKey) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": key.KeyID}, key, opts)
	return err
}

// FindCurrent returns the newest active, non-expired key.
func (r *SigningKeyRepository) FindCurrent(ctx context.Context) (*domain.SigningKey, error) {
	filter := bson.M{
		"is_active":  true,
		"expires_at": bson.M{"$gt": time.Now()},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var key domain.SigningKey
	err := r.coll.FindOne(ctx, filter, opts).Decode(&key)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrSigningKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// FindVerification returns every active, non-expired key, newest first.
func (r *SigningKeyRepository) FindVerification(ctx context.Context) ([]*domain.SigningKey, error) {
	filter := bson.M{
		"is_active":  true,
		"expires_at": bson.M{"$gt": time.Now()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var keys []*domain.SigningKey
	if err := cursor.All(ctx, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// FindByKeyID returns the key with the given kid.
func (r *SigningKeyRepository) FindByKeyID(ctx context.Context, keyID string) (*domain.SigningKey, error) {
	var key domain.SigningKey
	err := r.coll.FindOne(ctx, bson.M{"_id": keyID}).Decode(&key)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrSigningKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// DeactivateExpired flips is_active off on every key past its expiry.
func (r *SigningKeyRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	filter := bson.M{
		"is_active":  true,
		"expires_at": bson.M{"$lte": now},
	}
	res, err := r.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"is_active": false}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
