package cache

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a persistent-tier Store backed by a MongoDB collection,
// for deployments that need the cache to survive process restarts and
// be shared across instances (spec.md §4.3 "persistent backend ... MAY
// be a shared external store"). Collection documents are
// {_id: key, value: []byte, written_at: time.Time}; a TTL index on
// written_at gives the backend its own expiry independent of any
// application-level check, mirroring the persistence style of the
// teacher's file-backed FileTxStore (src/chainadapter/storage/file.go)
// generalized to an external database.
type MongoStore struct {
	collection *mongo.Collection
}

type mongoDoc struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	WrittenAt time.Time `bson:"written_at"`
}

// NewMongoStore wires collection with a TTL index on written_at so
// documents older than ttl are reaped server-side; ttl <= 0 disables
// the index and leaves expiry to the caller.
func NewMongoStore(ctx context.Context, collection *mongo.Collection, ttl time.Duration) (*MongoStore, error) {
	s := &MongoStore{collection: collection}
	if ttl > 0 {
		_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "written_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())),
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MongoStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	var doc mongoDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{Value: doc.Value, WrittenAt: doc.WrittenAt}, true, nil
}

// Put upserts the document, giving last-writer-wins semantics under
// concurrent writers for the same key (spec.md §5).
func (s *MongoStore) Put(ctx context.Context, key string, entry Entry) error {
	doc := mongoDoc{Key: key, Value: entry.Value, WrittenAt: entry.WrittenAt}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.collection.Database().Client().Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	return s.collection.Database().Client().Disconnect(context.Background())
}
