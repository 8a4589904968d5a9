package catalog

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Scans are single-document reads.
const (
	catalogPoolSize       = 10
	catalogSelectTimeout  = 3 * time.Second
	catalogConnectTimeout = 5 * time.Second
	catalogAppName        = "pos-service-catalog"
)

// OpenMongoRepository connects to the catalog database, pings it and
// ensures the barcode index.
func OpenMongoRepository(ctx context.Context, uri, database string) (*MongoRepository, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetAppName(catalogAppName).
		SetConnectTimeout(catalogConnectTimeout).
		SetServerSelectionTimeout(catalogSelectTimeout).
		SetMaxPoolSize(catalogPoolSize).
		SetReadPreference(readpref.PrimaryPreferred())

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("catalog: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.PrimaryPreferred()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("catalog: ping %s: %w", database, err)
	}

	repo := NewMongoRepository(client.Database(database))
	if err := repo.CreateIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return repo, nil
}
