package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var docColumns = []string{"key", "hash", "doc"}

// DocStore keeps item documents in PostgreSQL. The logical database is a
// schema; every collection is a table (key text primary key, hash bigint, doc jsonb).
// Run history lives in public.ingest_runs.
type DocStore struct {
	pool   *pgxpool.Pool
	tx     *TxManager
	schema string
	log    *slog.Logger
}

// Open connects, applies migrations and returns a store for database.
func Open(ctx context.Context, url, database string, connectTimeout time.Duration, logger *slog.Logger) (*DocStore, error) {
	if database == "public" {
		return nil, fmt.Errorf("postgres: database %q would drop the run history: %w", database, domain.ErrValidation)
	}

	pool, err := NewPool(ctx, url, connectTimeout)
	if err != nil {
		return nil, err
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return NewDocStore(pool, database, logger), nil
}

// NewDocStore wraps an existing pool. Migrations must already be applied.
func NewDocStore(pool *pgxpool.Pool, database string, logger *slog.Logger) *DocStore {
	return &DocStore{
		pool:   pool,
		tx:     NewTxManager(pool),
		schema: database,
		log:    logger.With("adapter", "postgres", "schema", database),
	}
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return fmt.Errorf("postgres: goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("postgres: goose up: %w: %w", domain.ErrStorage, err)
	}
	return nil
}

// DropDatabase removes the schema with every collection in it and recreates it empty.
func (s *DocStore) DropDatabase(ctx context.Context) error {
	schema := pgx.Identifier{s.schema}.Sanitize()

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := QuerierFromCtx(ctx, s.pool)
		if _, err := q.Exec(ctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			return err
		}
		_, err := q.Exec(ctx, "CREATE SCHEMA "+schema)
		return err
	})
	if err != nil {
		return mapError(err, "drop", s.schema)
	}

	s.log.InfoContext(ctx, "schema dropped")
	return nil
}

// InsertMany creates the collection table if needed and loads docs with one COPY
// inside a transaction. Returns the number of rows copied.
func (s *DocStore) InsertMany(ctx context.Context, collection string, docs []domain.ItemDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	table := pgx.Identifier{s.schema, collection}
	var copied int64

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := QuerierFromCtx(ctx, s.pool)

		ddl := "CREATE TABLE IF NOT EXISTS " + table.Sanitize() +
			" (key text PRIMARY KEY, hash bigint NOT NULL, doc jsonb NOT NULL)"
		if _, err := q.Exec(ctx, ddl); err != nil {
			return err
		}

		n, err := q.CopyFrom(ctx, table, docColumns, pgx.CopyFromSlice(len(docs), func(i int) ([]any, error) {
			d := docs[i]
			return []any{d.Key, d.Hash, []byte(d.Body)}, nil
		}))
		copied = n
		return err
	})
	if err != nil {
		return 0, mapError(err, "insert", collection)
	}

	return int(copied), nil
}

// CountDocuments returns the number of rows in collection; a missing table counts as empty.
func (s *DocStore) CountDocuments(ctx context.Context, collection string) (int64, error) {
	query, args, err := psql.Select("count(*)").
		From(pgx.Identifier{s.schema, collection}.Sanitize()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("postgres: build count query: %w", err)
	}

	var n int64
	if err := QuerierFromCtx(ctx, s.pool).QueryRow(ctx, query, args...).Scan(&n); err != nil {
		if isUndefinedTable(err) {
			return 0, nil
		}
		return 0, mapError(err, "count", collection)
	}
	return n, nil
}

// RecordRun appends a run to public.ingest_runs.
func (s *DocStore) RecordRun(ctx context.Context, run domain.RunRecord) error {
	locales, err := json.Marshal(run.Locales)
	if err != nil {
		return fmt.Errorf("postgres: encode locales: %w", err)
	}

	query, args, err := psql.Insert("public.ingest_runs").
		Columns("id", "database_name", "started_at", "finished_at", "manifest_version", "dry_run", "failed", "error", "locales").
		Values(run.ID, s.schema, run.StartedAt, run.FinishedAt, run.ManifestVersion, run.DryRun, run.Failed(), run.Error, locales).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build insert run query: %w", err)
	}

	if _, err := QuerierFromCtx(ctx, s.pool).Exec(ctx, query, args...); err != nil {
		return mapError(err, "record run", run.ID.String())
	}
	return nil
}

// Close releases the pool.
func (s *DocStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}
