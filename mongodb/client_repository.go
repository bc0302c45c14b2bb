package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/iam/domain"
)

// ClientRepository implements domain.ClientRepository on MongoDB.
type ClientRepository struct {
	coll *mongo.Collection
}

// NewClientRepository creates the repository and ensures a unique index on
// client_id.
func NewClientRepository(ctx context.Context, db *mongo.Database) (*ClientRepository, error) {
	repo := &ClientRepository{coll: db.Collection(ClientsCollection)}

	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "client_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := repo.coll.Indexes().CreateOne(ctx, index); err != nil {
		return nil, fmt.Errorf("failed to create client index: %w", err)
	}
	return repo, nil
}

// Save upserts the registered client by id.
func (r *ClientRepository) Save(ctx context.Context, client *domain.RegisteredClient) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": client.ID}, client, opts)
	return err
}

// FindByID returns the client with the given internal id.
func (r *ClientRepository) FindByID(ctx context.Context, id string) (*domain.RegisteredClient, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByClientID returns the client with the given public client_id.
func (r *ClientRepository) FindByClientID(ctx context.Context, clientID string) (*domain.RegisteredClient, error) {
	return r.findOne(ctx, bson.M{"client_id": clientID})
}

func (r *ClientRepository) findOne(ctx context.Context, filter bson.M) (*domain.RegisteredClient, error) {
	var client domain.RegisteredClient
	err := r.coll.FindOne(ctx, filter).Decode(&client)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}
