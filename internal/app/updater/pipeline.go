package updater

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/heartmarshall/d2-itemdb-updater/pkg/ctxutil"
)

const finishTimeout = 30 * time.Second

// Pipeline runs one ingest: drop, manifest, then one concurrent
// fetch-transform-load per active locale.
type Pipeline struct {
	log     *slog.Logger
	store   DocumentStore
	source  DefinitionSource
	metrics MetricsObserver
	loader  *Loader
	cfg     Config
}

// NewPipeline creates a new Pipeline. metrics may be nil.
func NewPipeline(log *slog.Logger, store DocumentStore, source DefinitionSource, metrics MetricsObserver, cfg Config) *Pipeline {
	return &Pipeline{
		log:     log,
		store:   store,
		source:  source,
		metrics: metrics,
		loader:  NewLoader(store, cfg.Entity, log),
		cfg:     cfg,
	}
}

// Run executes the ingest. A non-nil error means the run aborted before the
// locale fan-out; locale failures are reported in the Summary only.
// The summary is returned in both cases.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
		DryRun:    p.cfg.DryRun,
	}
	ctx = ctxutil.WithRunID(ctx, summary.RunID)

	log := p.log.With("run_id", summary.RunID.String())
	p = p.withLogger(log)

	err := p.run(ctx, summary)
	summary.Err = err
	summary.FinishedAt = time.Now()

	p.finish(ctx, summary)
	return summary, err
}

func (p *Pipeline) withLogger(log *slog.Logger) *Pipeline {
	cp := *p
	cp.log = log
	cp.loader = NewLoader(p.store, p.cfg.Entity, log)
	return &cp
}

func (p *Pipeline) run(ctx context.Context, summary *Summary) error {
	if p.cfg.DryRun {
		p.log.InfoContext(ctx, "dry run: database left untouched")
	} else {
		if err := p.store.DropDatabase(ctx); err != nil {
			return fmt.Errorf("drop database: %w", err)
		}
	}

	manifest, err := p.source.FetchManifest(ctx)
	if err != nil {
		return fmt.Errorf("fetch manifest: %w", err)
	}
	summary.ManifestVersion = manifest.Version()

	urls := make([]string, len(p.cfg.Locales))
	for i, l := range p.cfg.Locales {
		u, err := manifest.ResolveAssetURL(l, p.cfg.Entity)
		if err != nil {
			return fmt.Errorf("resolve %s asset for %s: %w", p.cfg.Entity, l, err)
		}
		urls[i] = u
	}

	p.log.InfoContext(ctx, "starting locale pipelines",
		slog.Int("locales", len(p.cfg.Locales)),
		slog.String("manifest_version", summary.ManifestVersion),
	)

	results := make([]LocaleResult, len(p.cfg.Locales))
	var g errgroup.Group
	for i, l := range p.cfg.Locales {
		g.Go(func() error {
			results[i] = p.runLocale(ctx, l, urls[i])
			return nil
		})
	}
	_ = g.Wait()

	summary.Locales = results
	return nil
}

// finish logs the summary, records the run and pushes metrics. All best effort.
func (p *Pipeline) finish(ctx context.Context, summary *Summary) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	attrs := []any{
		slog.Int("succeeded", len(summary.Succeeded())),
		slog.Int("failed", len(summary.Failed())),
		slog.Duration("duration", summary.Duration()),
	}
	if summary.Err != nil {
		p.log.ErrorContext(ctx, "run aborted", append(attrs, slog.String("error", summary.Err.Error()))...)
	} else {
		p.log.InfoContext(ctx, "run completed", attrs...)
	}

	if !summary.DryRun {
		if err := p.store.RecordRun(ctx, summary.Record()); err != nil {
			p.log.WarnContext(ctx, "record run failed", slog.String("error", err.Error()))
		}
	}

	if p.metrics == nil {
		return
	}
	for _, r := range summary.Locales {
		p.metrics.ObserveLocale(r.Locale.Suffix, r.Fetched, r.Inserted, r.Skipped, r.Duration, r.Err)
	}
	p.metrics.ObserveRun(summary.Duration(), summary.HasErrors(), summary.FinishedAt)
	if err := p.metrics.Push(ctx); err != nil {
		p.log.WarnContext(ctx, "push metrics failed", slog.String("error", err.Error()))
	}
}
