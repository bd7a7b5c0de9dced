package updater

import (
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
)

// LocaleResult holds the outcome of one locale pipeline.
type LocaleResult struct {
	Locale     domain.Locale
	Collection string
	Fetched    int
	Accepted   int
	Inserted   int
	Skipped    int
	Duration   time.Duration
	Err        error
}

// Summary is the outcome of a run. Err is set when the run aborted before
// or instead of the locale fan-out.
type Summary struct {
	RunID           uuid.UUID
	StartedAt       time.Time
	FinishedAt      time.Time
	ManifestVersion string
	DryRun          bool
	Locales         []LocaleResult
	Err             error
}

// Succeeded returns the locales that completed without error.
func (s *Summary) Succeeded() []LocaleResult {
	var out []LocaleResult
	for _, r := range s.Locales {
		if r.Err == nil {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the locales that ended with an error.
func (s *Summary) Failed() []LocaleResult {
	var out []LocaleResult
	for _, r := range s.Locales {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// HasErrors reports whether the run aborted or any locale failed.
func (s *Summary) HasErrors() bool {
	return s.Err != nil || len(s.Failed()) > 0
}

// Duration is the wall time of the run.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Record converts the summary to its persisted form.
func (s *Summary) Record() domain.RunRecord {
	rec := domain.RunRecord{
		ID:              s.RunID,
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
		ManifestVersion: s.ManifestVersion,
		DryRun:          s.DryRun,
		Locales:         make([]domain.LocaleRun, 0, len(s.Locales)),
	}
	if s.Err != nil {
		rec.Error = s.Err.Error()
	}
	for _, r := range s.Locales {
		lr := domain.LocaleRun{
			Locale:     r.Locale.Suffix,
			Collection: r.Collection,
			Fetched:    r.Fetched,
			Inserted:   r.Inserted,
			Skipped:    r.Skipped,
			DurationMS: r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			lr.Error = r.Err.Error()
		}
		rec.Locales = append(rec.Locales, lr)
	}
	return rec
}
