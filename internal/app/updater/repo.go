package updater

import (
	"context"
	"time"

	"github.com/heartmarshall/d2-itemdb-updater/internal/adapter/bungie"
	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
)

// DocumentStore is the storage side of an ingest run.
type DocumentStore interface {
	DropDatabase(ctx context.Context) error
	InsertMany(ctx context.Context, collection string, docs []domain.ItemDocument) (int, error)
	CountDocuments(ctx context.Context, collection string) (int64, error)
	RecordRun(ctx context.Context, run domain.RunRecord) error
}

// DefinitionSource is the remote side of an ingest run.
type DefinitionSource interface {
	FetchManifest(ctx context.Context) (*bungie.Manifest, error)
	FetchDefinitions(ctx context.Context, url string, locale domain.Locale) (domain.RawCollection, error)
}

// MetricsObserver receives run outcomes. Push failures are logged only.
type MetricsObserver interface {
	ObserveLocale(locale string, fetched, inserted, skipped int, d time.Duration, err error)
	ObserveRun(d time.Duration, failed bool, finishedAt time.Time)
	Push(ctx context.Context) error
}
