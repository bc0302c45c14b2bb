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

// CredentialRepository implements domain.CredentialRepository on MongoDB,
// spanning the credentials collection and the credential-resource relation
// collection.
type CredentialRepository struct {
	creds *mongo.Collection
	rels  *mongo.Collection
}

// NewCredentialRepository creates the repository and ensures lookup indexes.
func NewCredentialRepository(ctx context.Context, db *mongo.Database) (*CredentialRepository, error) {
	repo := &CredentialRepository{
		creds: db.Collection(CredentialsCollection),
		rels:  db.Collection(CredentialRelsCollection),
	}

	credIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "app_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := repo.creds.Indexes().CreateOne(ctx, credIndex); err != nil {
		return nil, fmt.Errorf("failed to create credential index: %w", err)
	}

	relIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "credential_id", Value: 1}, {Key: "resource_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := repo.rels.Indexes().CreateOne(ctx, relIndex); err != nil {
		return nil, fmt.Errorf("failed to create credential relation index: %w", err)
	}
	return repo, nil
}

// Save upserts the credential by id.
func (r *CredentialRepository) Save(ctx context.Context, credential *domain.ClientCredential) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.creds.ReplaceOne(ctx, bson.M{"_id": credential.ID}, credential, opts)
	return err
}

// FindByAppID returns the credential with the given public app id.
func (r *CredentialRepository) FindByAppID(ctx context.Context, appID string) (*domain.ClientCredential, error) {
	var credential domain.ClientCredential
	err := r.creds.FindOne(ctx, bson.M{"app_id": appID}).Decode(&credential)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	return &credential, nil
}

// ResourceIDs returns the credential's authorized resource ids in insertion
// order. Introspection joins the matching resource codes in this order.
func (r *CredentialRepository) ResourceIDs(ctx context.Context, credentialID string) ([]string, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.rels.Find(ctx, bson.M{"credential_id": credentialID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rels []domain.CredentialResourceRel
	if err := cursor.All(ctx, &rels); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rels))
	for _, rel := range rels {
		ids = append(ids, rel.ResourceID)
	}
	return ids, nil
}

// AssignResource records that the credential may call the resource. Assigning
// the same pair twice is a no-op.
func (r *CredentialRepository) AssignResource(ctx context.Context, credentialID, resourceID string) error {
	filter := bson.M{"credential_id": credentialID, "resource_id": resourceID}
	update := bson.M{"$setOnInsert": bson.M{
		"credential_id": credentialID,
		"resource_id":   resourceID,
		"created_at":    time.Now(),
	}}
	_, err := r.rels.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}
