package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "catalog_barcodes"

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection(collectionName)}
}

// CreateIndexes makes barcode unique so a scan resolves to one entry.
func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "barcode", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create barcode index: %w", err)
	}
	return nil
}

func (m *MongoRepository) FindByBarcode(ctx context.Context, barcode string) (*Entry, error) {
	var entry Entry
	err := m.collection.FindOne(ctx, bson.M{"barcode": barcode}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to find barcode: %w", err)
	}
	return &entry, nil
}

func (m *MongoRepository) Upsert(ctx context.Context, entry *Entry) error {
	filter := bson.M{"barcode": entry.Barcode}
	update := bson.M{"$set": entry}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert catalog entry: %w", err)
	}
	return nil
}

// Close disconnects the underlying client.
func (m *MongoRepository) Close(ctx context.Context) error {
	return m.collection.Database().Client().Disconnect(ctx)
}
