package updater

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
)

// Loader writes a locale's documents into its collection with one bulk insert.
// The collection is expected to be empty; the pipeline drops the database first.
type Loader struct {
	store  DocumentStore
	entity string
	log    *slog.Logger
}

// NewLoader creates a Loader for the given entity kind.
func NewLoader(store DocumentStore, entity string, log *slog.Logger) *Loader {
	return &Loader{store: store, entity: entity, log: log}
}

// Load materializes docs and inserts them. Zero documents means no store call.
// A count that differs from the insert result is logged, not returned.
func (l *Loader) Load(ctx context.Context, locale domain.Locale, docs iter.Seq[domain.ItemDocument]) (int, error) {
	collection := domain.CollectionName(l.entity, locale)
	batch := slices.Collect(docs)
	if len(batch) == 0 {
		l.log.WarnContext(ctx, "nothing to load", slog.String("collection", collection))
		return 0, nil
	}

	inserted, err := l.store.InsertMany(ctx, collection, batch)
	if err != nil {
		if !errors.Is(err, domain.ErrStorage) {
			err = fmt.Errorf("%w: %w", domain.ErrStorage, err)
		}
		return 0, fmt.Errorf("load %s: %w", collection, err)
	}

	count, err := l.store.CountDocuments(ctx, collection)
	switch {
	case err != nil:
		l.log.WarnContext(ctx, "count after insert failed",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
	case count != int64(inserted):
		l.log.WarnContext(ctx, "collection count mismatch",
			slog.String("collection", collection),
			slog.Int("inserted", inserted),
			slog.Int64("count", count),
		)
	}

	l.log.InfoContext(ctx, "collection loaded",
		slog.String("collection", collection),
		slog.Int("inserted", inserted),
	)
	return inserted, nil
}
