package database

import (
	"context"
	"fmt"
	"time"

	"github.com/techpress/core/internal/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectTimeout = 10 * time.Second

// Store is the mongo-backed document store. Analysis documents are partial
// records; all writes go through MergeSet so sibling fields are never clobbered.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a mongo connection and verifies it with a ping.
func Connect(cfg *config.AppConfig) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &Store{client: client, db: client.Database(cfg.MongoDatabase)}, nil
}

// Ping verifies the connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Get loads the document with the given id into out. The second return is
// false when the document does not exist.
func (s *Store) Get(ctx context.Context, collection, id string, out interface{}) (bool, error) {
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MergeSet upserts the document with the given id, applying set on every
// write and setOnInsert only when the document is created. Fields absent from
// set are left untouched.
func (s *Store) MergeSet(ctx context.Context, collection, id string, set map[string]interface{}, setOnInsert map[string]interface{}) error {
	update := bson.M{"$set": bson.M(set)}
	if len(setOnInsert) > 0 {
		update["$setOnInsert"] = bson.M(setOnInsert)
	}
	_, err := s.db.Collection(collection).UpdateOne(
		ctx,
		bson.M{"_id": id},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}
