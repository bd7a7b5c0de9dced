package config

import (
	"fmt"
	"strings"

	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
)

// Validate performs business-rule validation on the loaded configuration
// and fills derived fields (Ingest.Locales). Load calls it automatically.
func (c *Config) Validate() error {
	var errs []domain.FieldError

	if c.Storage.Driver() == "" {
		errs = append(errs, domain.FieldError{
			Field:   "storage.url",
			Message: fmt.Sprintf("unsupported scheme in %q (want mongodb://, mongodb+srv://, postgres://)", c.Storage.RedactedURL()),
		})
	}
	if strings.TrimSpace(c.Storage.Database) == "" {
		errs = append(errs, domain.FieldError{Field: "storage.database", Message: "required"})
	}
	if c.Storage.ConnectTimeout <= 0 {
		errs = append(errs, domain.FieldError{Field: "storage.connect_timeout", Message: "must be > 0"})
	}

	if c.HTTP.Timeout <= 0 {
		errs = append(errs, domain.FieldError{Field: "http.timeout", Message: "must be > 0"})
	}
	if c.HTTP.RetryAttempts < 1 {
		errs = append(errs, domain.FieldError{Field: "http.retry_attempts", Message: fmt.Sprintf("must be >= 1 (got %d)", c.HTTP.RetryAttempts)})
	}
	if c.HTTP.RetryAttempts > 1 && c.HTTP.RetryInitialInterval <= 0 {
		errs = append(errs, domain.FieldError{Field: "http.retry_initial_interval", Message: "must be > 0 when retrying"})
	}

	if !strings.HasPrefix(c.Bungie.BaseURL, "http://") && !strings.HasPrefix(c.Bungie.BaseURL, "https://") {
		errs = append(errs, domain.FieldError{Field: "bungie.base_url", Message: "must be an http(s) URL"})
	}
	c.Bungie.BaseURL = strings.TrimRight(c.Bungie.BaseURL, "/")

	if strings.TrimSpace(c.Ingest.Entity) == "" {
		errs = append(errs, domain.FieldError{Field: "ingest.entity", Message: "required"})
	}
	if c.Ingest.RunTimeout <= 0 {
		errs = append(errs, domain.FieldError{Field: "ingest.run_timeout", Message: "must be > 0"})
	}
	locales, err := domain.ParseLocales(c.Ingest.LocalesRaw)
	switch {
	case err != nil:
		errs = append(errs, domain.FieldError{Field: "ingest.locales", Message: err.Error()})
	case len(locales) == 0:
		errs = append(errs, domain.FieldError{Field: "ingest.locales", Message: "at least one locale required"})
	default:
		c.Ingest.Locales = locales
	}

	if c.Archive.Enabled() && (c.Archive.S3AccessKey == "") != (c.Archive.S3SecretKey == "") {
		errs = append(errs, domain.FieldError{Field: "archive.s3_access_key", Message: "access key and secret key must be set together"})
	}

	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}
