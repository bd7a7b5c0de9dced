package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
)

const (
	codeUndefinedTable  = "42P01"
	codeUniqueViolation = "23505"
)

// mapError converts pgx/pgconn errors to domain.ErrStorage.
// context.DeadlineExceeded and context.Canceled are NOT mapped; they pass through.
func mapError(err error, op, target string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("postgres: %s %s: %w", op, target, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return fmt.Errorf("postgres: %s %s: %w: duplicate key: %w", op, target, domain.ErrStorage, err)
	}

	return fmt.Errorf("postgres: %s %s: %w: %w", op, target, domain.ErrStorage, err)
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUndefinedTable
}
