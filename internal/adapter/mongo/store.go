// Package mongo stores item documents in MongoDB, one collection per locale.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
)

const runsCollection = "ingest_runs"

// Store is a MongoDB document store bound to one database.
// Run history goes to <database>_meta so dropping the database keeps it.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	meta   *mongo.Database
	log    *slog.Logger
}

// Connect opens a client for url and pings the primary.
func Connect(ctx context.Context, url, database string, connectTimeout time.Duration, logger *slog.Logger) (*Store, error) {
	opts := options.Client().ApplyURI(url)
	if connectTimeout > 0 {
		opts.SetConnectTimeout(connectTimeout).SetServerSelectionTimeout(connectTimeout)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w: %w", domain.ErrConnection, err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("mongo: ping: %w: %w", domain.ErrConnection, err)
	}

	return &Store{
		client: client,
		db:     client.Database(database),
		meta:   client.Database(database + "_meta"),
		log:    logger.With("adapter", "mongo", "database", database),
	}, nil
}

// DropDatabase removes the database with every collection in it.
func (s *Store) DropDatabase(ctx context.Context) error {
	if err := s.db.Drop(ctx); err != nil {
		return fmt.Errorf("mongo: drop %s: %w: %w", s.db.Name(), domain.ErrStorage, err)
	}
	s.log.InfoContext(ctx, "database dropped")
	return nil
}

// InsertMany converts each body to a BSON document and inserts all of them
// in one ordered call. Returns the number of inserted documents.
func (s *Store) InsertMany(ctx context.Context, collection string, docs []domain.ItemDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	batch := make([]any, 0, len(docs))
	for _, d := range docs {
		doc, err := toBSON(d)
		if err != nil {
			return 0, fmt.Errorf("mongo: insert %s: %w", collection, err)
		}
		batch = append(batch, doc)
	}

	res, err := s.db.Collection(collection).InsertMany(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("mongo: insert %s: %w: %w", collection, domain.ErrStorage, err)
	}
	return len(res.InsertedIDs), nil
}

// toBSON decodes relaxed extended JSON, so plain JSON numbers keep their width.
func toBSON(d domain.ItemDocument) (bson.D, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON(d.Body, false, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %w", d.Key, domain.ErrParse, err)
	}
	return doc, nil
}

// CountDocuments returns the number of documents in collection.
func (s *Store) CountDocuments(ctx context.Context, collection string) (int64, error) {
	n, err := s.db.Collection(collection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("mongo: count %s: %w: %w", collection, domain.ErrStorage, err)
	}
	return n, nil
}

// RecordRun appends a run to <database>_meta.ingest_runs.
func (s *Store) RecordRun(ctx context.Context, run domain.RunRecord) error {
	locales := make(bson.A, 0, len(run.Locales))
	for _, l := range run.Locales {
		locales = append(locales, bson.D{
			{Key: "locale", Value: l.Locale},
			{Key: "collection", Value: l.Collection},
			{Key: "fetched", Value: l.Fetched},
			{Key: "inserted", Value: l.Inserted},
			{Key: "skipped", Value: l.Skipped},
			{Key: "duration_ms", Value: l.DurationMS},
			{Key: "error", Value: l.Error},
		})
	}

	doc := bson.D{
		{Key: "_id", Value: run.ID.String()},
		{Key: "database", Value: s.db.Name()},
		{Key: "started_at", Value: run.StartedAt},
		{Key: "finished_at", Value: run.FinishedAt},
		{Key: "manifest_version", Value: run.ManifestVersion},
		{Key: "dry_run", Value: run.DryRun},
		{Key: "failed", Value: run.Failed()},
		{Key: "error", Value: run.Error},
		{Key: "locales", Value: locales},
	}

	if _, err := s.meta.Collection(runsCollection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo: record run %s: %w: %w", run.ID, domain.ErrStorage, err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
