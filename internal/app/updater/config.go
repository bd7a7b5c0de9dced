package updater

import "github.com/heartmarshall/d2-itemdb-updater/internal/domain"

// Config holds settings for a single ingest run.
type Config struct {
	Locales []domain.Locale
	Entity  string
	DryRun  bool
}
