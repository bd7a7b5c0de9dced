package updater

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
	"github.com/heartmarshall/d2-itemdb-updater/pkg/ctxutil"
)

// runLocale fetches, transforms and loads one locale. Every failure, including
// a panic, ends up in the returned result; nothing escapes to the caller.
func (p *Pipeline) runLocale(ctx context.Context, locale domain.Locale, url string) (res LocaleResult) {
	start := time.Now()
	log := p.log.With("locale", locale.Suffix)
	ctx = ctxutil.WithLocale(ctx, locale.Suffix)

	res = LocaleResult{
		Locale:     locale,
		Collection: domain.CollectionName(p.cfg.Entity, locale),
	}

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("locale %s: panic: %v", locale.Suffix, r)
		}
		res.Duration = time.Since(start)

		if res.Err != nil {
			log.ErrorContext(ctx, "locale failed",
				slog.String("error", res.Err.Error()),
				slog.Duration("duration", res.Duration),
			)
			return
		}
		log.InfoContext(ctx, "locale completed",
			slog.Int("fetched", res.Fetched),
			slog.Int("inserted", res.Inserted),
			slog.Int("skipped", res.Skipped),
			slog.Duration("duration", res.Duration),
		)
	}()

	records, err := p.source.FetchDefinitions(ctx, url, locale)
	if err != nil {
		res.Err = err
		return res
	}
	res.Fetched = len(records)

	var stats TransformStats
	docs := Transform(log, records, &stats)

	if p.cfg.DryRun {
		for range docs {
		}
	} else {
		res.Inserted, res.Err = p.loader.Load(ctx, locale, docs)
	}

	res.Accepted = stats.Accepted
	res.Skipped = stats.Skipped
	return res
}
