package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunRecord is the persisted history entry of one ingest run.
type RunRecord struct {
	ID              uuid.UUID   `json:"id"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      time.Time   `json:"finished_at"`
	ManifestVersion string      `json:"manifest_version"`
	DryRun          bool        `json:"dry_run"`
	Error           string      `json:"error,omitempty"`
	Locales         []LocaleRun `json:"locales"`
}

// LocaleRun is the per-locale part of a RunRecord.
type LocaleRun struct {
	Locale     string `json:"locale"`
	Collection string `json:"collection"`
	Fetched    int    `json:"fetched"`
	Inserted   int    `json:"inserted"`
	Skipped    int    `json:"skipped"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Failed reports whether any locale of the run failed or the run itself aborted.
func (r RunRecord) Failed() bool {
	if r.Error != "" {
		return true
	}
	for _, l := range r.Locales {
		if l.Error != "" {
			return true
		}
	}
	return false
}
