package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoBackend struct {
	collection *mongo.Collection
	key        string
	client     *mongo.Client
}

type mongoDocument struct {
	Key     string    `bson:"_id"`
	Payload string    `bson:"payload"`
	SavedAt time.Time `bson:"saved_at"`
}

// NewMongoBackend stores the snapshot as a single document keyed by key.
func NewMongoBackend(collection *mongo.Collection, key string) *MongoBackend {
	return &MongoBackend{collection: collection, key: key}
}

func (b *MongoBackend) Load(ctx context.Context) (*Snapshot, error) {
	var doc mongoDocument
	err := b.collection.FindOne(ctx, bson.M{"_id": b.key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: mongo find: %w", err)
	}
	return Decode([]byte(doc.Payload))
}

func (b *MongoBackend) Save(ctx context.Context, snap *Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}

	doc := mongoDocument{Key: b.key, Payload: string(data), SavedAt: time.Now().UTC()}
	_, err = b.collection.ReplaceOne(ctx, bson.M{"_id": b.key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("snapshot: mongo upsert: %w", err)
	}
	return nil
}

// Close disconnects the client only when the backend opened it itself.
func (b *MongoBackend) Close() error {
	if b.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.client.Disconnect(ctx)
}
