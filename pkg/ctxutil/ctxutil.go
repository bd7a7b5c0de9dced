package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	runIDKey  ctxKey = "run_id"
	localeKey ctxKey = "locale"
)

// WithRunID stores the ingest run ID in the context.
func WithRunID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromCtx extracts the run ID from the context.
// Returns uuid.Nil and false if the value is missing, nil UUID, or wrong type.
func RunIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(runIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// WithLocale stores the collection suffix of the locale being processed.
func WithLocale(ctx context.Context, suffix string) context.Context {
	return context.WithValue(ctx, localeKey, suffix)
}

// LocaleFromCtx returns the locale suffix, or an empty string if absent.
func LocaleFromCtx(ctx context.Context) string {
	s, _ := ctx.Value(localeKey).(string)
	return s
}
