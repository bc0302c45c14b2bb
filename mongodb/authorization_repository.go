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

// AuthorizationRepository implements domain.AuthorizationRepository on
// MongoDB.
type AuthorizationRepository struct {
	coll *mongo.Collection
}

// NewAuthorizationRepository creates the repository and ensures lookup
// indexes on the three token value fields.
func NewAuthorizationRepository(ctx context.Context, db *mongo.Database) (*AuthorizationRepository, error) {
	repo := &AuthorizationRepository{coll: db.Collection(AuthorizationsCollection)}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "access_token.value", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "refresh_token.value", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "authorization_code.value", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "principal_name", Value: 1}}},
	}
	if _, err := repo.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create authorization indexes: %w", err)
	}
	return repo, nil
}

// Save upserts the record by id.
func (r *AuthorizationRepository) Save(ctx context.Context, record *domain.AuthorizationRecord) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": record.ID}, record, opts)
	return err
}

// FindByID returns the record with the given id.
func (r *AuthorizationRepository) FindByID(ctx context.Context, id string) (*domain.AuthorizationRecord, error) {
	var record domain.AuthorizationRecord
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByToken looks the record up by one of its token values. With
// kind == "" the access, refresh and code slots are tried in that order.
func (r *AuthorizationRepository) FindByToken(ctx context.Context, value string, kind domain.TokenKind) (*domain.AuthorizationRecord, error) {
	kinds := []domain.TokenKind{kind}
	if kind == "" {
		kinds = []domain.TokenKind{
			domain.TokenKindAccessToken,
			domain.TokenKindRefreshToken,
			domain.TokenKindAuthorizationCode,
		}
	}

	for _, k := range kinds {
		field, err := tokenValueField(k)
		if err != nil {
			return nil, err
		}
		var record domain.AuthorizationRecord
		err = r.coll.FindOne(ctx, bson.M{field: value}).Decode(&record)
		if err == nil {
			return &record, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
	}
	return nil, domain.ErrRecordNotFound
}

// Remove deletes the record.
func (r *AuthorizationRepository) Remove(ctx context.Context, id string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// DeleteExpired removes records whose every token slot has expired. Records
// with a missing slot treat that slot as expired.
func (r *AuthorizationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	deadSlot := func(field string) bson.M {
		return bson.M{"$or": bson.A{
			bson.M{field: bson.M{"$exists": false}},
			bson.M{field + ".expires_at": bson.M{"$lte": now}},
		}}
	}
	filter := bson.M{"$and": bson.A{
		deadSlot("access_token"),
		deadSlot("refresh_token"),
		deadSlot("authorization_code"),
		deadSlot("id_token"),
	}}
	res, err := r.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func tokenValueField(kind domain.TokenKind) (string, error) {
	switch kind {
	case domain.TokenKindAccessToken:
		return "access_token.value", nil
	case domain.TokenKindRefreshToken:
		return "refresh_token.value", nil
	case domain.TokenKindAuthorizationCode:
		return "authorization_code.value", nil
	case domain.TokenKindIDToken:
		return "id_token.value", nil
	default:
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
}
