package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/iam/domain"
)

// ResourceRepository implements domain.ResourceRepository on MongoDB.
type ResourceRepository struct {
	coll *mongo.Collection
}

// NewResourceRepository creates the repository and ensures a unique index on
// the resource code.
func NewResourceRepository(ctx context.Context, db *mongo.Database) (*ResourceRepository, error) {
	repo := &ResourceRepository{coll: db.Collection(ResourcesCollection)}

	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := repo.coll.Indexes().CreateOne(ctx, index); err != nil {
		return nil, fmt.Errorf("failed to create resource index: %w", err)
	}
	return repo, nil
}

// Save upserts the resource by id.
func (r *ResourceRepository) Save(ctx context.Context, resource *domain.Resource) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": resource.ID}, resource, opts)
	return err
}

// FindByIDs returns the resources with the given ids, preserving the order
// of the ids argument. Unknown ids are skipped, not errors.
func (r *ResourceRepository) FindByIDs(ctx context.Context, ids []string) ([]*domain.Resource, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cursor, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var found []*domain.Resource
	if err := cursor.All(ctx, &found); err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Resource, len(found))
	for _, resource := range found {
		byID[resource.ID] = resource
	}
	ordered := make([]*domain.Resource, 0, len(found))
	for _, id := range ids {
		if resource, ok := byID[id]; ok {
			ordered = append(ordered, resource)
		}
	}
	return ordered, nil
}
