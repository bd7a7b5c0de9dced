package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
)

// NewPool parses the connection URL, opens a pool and pings it so a bad URL
// or an unreachable server fails before any destructive step.
func NewPool(ctx context.Context, url string, connectTimeout time.Duration) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse url: %w: %w", domain.ErrConnection, err)
	}
	if connectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = connectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w: %w", domain.ErrConnection, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout(connectTimeout))
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w: %w", domain.ErrConnection, err)
	}

	return pool, nil
}

func pingTimeout(connectTimeout time.Duration) time.Duration {
	if connectTimeout <= 0 {
		return 10 * time.Second
	}
	return connectTimeout
}
