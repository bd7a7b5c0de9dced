// Command updater refreshes the local item database from the Bungie.net
// Destiny 2 manifest: it drops the database, downloads the item definitions
// of every active locale and bulk-loads them, one collection per locale.
//
// Flags:
//
//	--config   path to a YAML (or legacy JSON) config file; overrides CONFIG_PATH
//	--locales  comma-separated locales to ingest, e.g. "en,zh-chs,zh-cht"
//	--dry-run  fetch and transform without touching the database
//
// Exit codes: 0 = every locale loaded, 1 = fatal error or any locale failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/heartmarshall/d2-itemdb-updater/internal/adapter/bungie"
	"github.com/heartmarshall/d2-itemdb-updater/internal/adapter/debugcache"
	"github.com/heartmarshall/d2-itemdb-updater/internal/adapter/mongo"
	"github.com/heartmarshall/d2-itemdb-updater/internal/adapter/postgres"
	"github.com/heartmarshall/d2-itemdb-updater/internal/adapter/s3archive"
	"github.com/heartmarshall/d2-itemdb-updater/internal/app"
	"github.com/heartmarshall/d2-itemdb-updater/internal/app/updater"
	"github.com/heartmarshall/d2-itemdb-updater/internal/config"
	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
	"github.com/heartmarshall/d2-itemdb-updater/internal/metrics"
)

// Compile-time interface assertions.
var (
	_ updater.DocumentStore    = (*mongo.Store)(nil)
	_ updater.DocumentStore    = (*postgres.DocStore)(nil)
	_ updater.DefinitionSource = (*bungie.Client)(nil)
	_ updater.MetricsObserver  = (*metrics.Metrics)(nil)
	_ bungie.PayloadSink       = (*debugcache.FileSink)(nil)
	_ bungie.PayloadSink       = (*s3archive.Archive)(nil)
)

type closableStore interface {
	updater.DocumentStore
	Close(ctx context.Context) error
}

func main() {
	os.Exit(run())
}

func run() int {
	configFlag := flag.String("config", "", "path to config file (overrides CONFIG_PATH)")
	localesFlag := flag.String("locales", "", "comma-separated locales to ingest (overrides ingest.locales)")
	dryRunFlag := flag.Bool("dry-run", false, "fetch and transform without touching the database")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configFlag != "" {
		cfg, err = config.LoadFile(*configFlag, true)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Printf("load config: %v", err)
		return 1
	}

	logger := app.NewLogger(cfg.Log)

	// CLI flags override config.
	if *dryRunFlag {
		cfg.Ingest.DryRun = true
	}
	if *localesFlag != "" {
		locales, err := domain.ParseLocales(*localesFlag)
		if err != nil || len(locales) == 0 {
			logger.Error("invalid --locales", slog.String("value", *localesFlag), slog.Any("error", err))
			return 1
		}
		cfg.Ingest.Locales = locales
	}

	logBanner(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Ingest.RunTimeout)
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("connect to storage", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("close storage", slog.String("error", err.Error()))
		}
	}()

	sink, err := buildSink(ctx, cfg)
	if err != nil {
		logger.Error("configure payload archive", slog.String("error", err.Error()))
		return 1
	}

	client := bungie.NewClient(bungie.Options{
		BaseURL:              cfg.Bungie.BaseURL,
		ManifestPath:         cfg.Bungie.ManifestPath,
		APIKey:               cfg.Bungie.APIKey,
		Timeout:              cfg.HTTP.Timeout,
		UseSystemProxy:       cfg.HTTP.UseSystemProxy,
		RetryAttempts:        cfg.HTTP.RetryAttempts,
		RetryInitialInterval: cfg.HTTP.RetryInitialInterval,
		RetryMaxInterval:     cfg.HTTP.RetryMaxInterval,
	}, sink, logger)

	pipeline := updater.NewPipeline(logger, store, client, metrics.New(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job), updater.Config{
		Locales: cfg.Ingest.Locales,
		Entity:  cfg.Ingest.Entity,
		DryRun:  cfg.Ingest.DryRun,
	})

	summary, err := pipeline.Run(ctx)
	if err != nil {
		logger.Error("update failed", slog.String("error", err.Error()))
		return 1
	}

	if summary.HasErrors() {
		for _, r := range summary.Failed() {
			logger.Warn("locale not updated",
				slog.String("locale", r.Locale.Suffix),
				slog.String("collection", r.Collection),
				slog.String("error", r.Err.Error()),
			)
		}
		return 1
	}

	logger.Info("update completed successfully", slog.String("run_id", summary.RunID.String()))
	return 0
}

func logBanner(logger *slog.Logger, cfg *config.Config) {
	codes := make([]string, 0, len(cfg.Ingest.Locales))
	for _, l := range cfg.Ingest.Locales {
		codes = append(codes, l.Code)
	}

	logger.Info("d2 item database updater",
		slog.String("version", app.BuildVersion()),
		slog.String("storage", cfg.Storage.RedactedURL()),
		slog.String("database", cfg.Storage.Database),
		slog.Bool("use_system_proxy", cfg.HTTP.UseSystemProxy),
		slog.String("locales", strings.Join(codes, ",")),
		slog.Bool("dry_run", cfg.Ingest.DryRun),
		slog.Bool("archive", cfg.Archive.Enabled()),
	)
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (closableStore, error) {
	s := cfg.Storage
	switch s.Driver() {
	case config.DriverMongo:
		return mongo.Connect(ctx, s.URL, s.Database, s.ConnectTimeout, logger)
	case config.DriverPostgres:
		return postgres.Open(ctx, s.URL, s.Database, s.ConnectTimeout, logger)
	default:
		return nil, fmt.Errorf("unsupported storage url %q", s.RedactedURL())
	}
}

func buildSink(ctx context.Context, cfg *config.Config) (bungie.PayloadSink, error) {
	sinks := debugcache.Multi{debugcache.NewFileSink(cfg.Ingest.DebugDir)}

	if cfg.Archive.Enabled() {
		archive, err := s3archive.New(ctx, s3archive.Options{
			Bucket:    cfg.Archive.S3Bucket,
			Prefix:    cfg.Archive.S3Prefix,
			Region:    cfg.Archive.S3Region,
			Endpoint:  cfg.Archive.S3Endpoint,
			AccessKey: cfg.Archive.S3AccessKey,
			SecretKey: cfg.Archive.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, archive)
	}
	return sinks, nil
}
