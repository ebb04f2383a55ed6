package kv

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type (
	MongoStore struct {
		collection *mongo.Collection
	}

	mongoDoc struct {
		Key   string `bson:"_id"`
		Value []byte `bson:"value"`
	}
)

// NewMongoStore uses one collection per namespace, keyed by _id.
func NewMongoStore(db *mongo.Database, namespace string) *MongoStore {
	return &MongoStore{
		collection: db.Collection(namespace),
	}
}

func (r *MongoStore) Get(ctx context.Context, key string) ([]byte, error) {
	filter := bson.M{
		"_id": key,
	}

	var doc mongoDoc
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return doc.Value, nil
}

func (r *MongoStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"_id": key},
		mongoDoc{Key: key, Value: value},
		options.Replace().SetUpsert(true))
	return err
}

// PutBatch upserts every entry with one ordered bulk write. Transactions are
// not used so standalone servers work.
func (r *MongoStore) PutBatch(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(entries))
	for k, v := range entries {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": k}).
			SetReplacement(mongoDoc{Key: k, Value: v}).
			SetUpsert(true))
	}

	_, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return err
}

func (r *MongoStore) Close() error { return nil }
