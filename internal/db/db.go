// Package db opens the PostgreSQL pool and runs schema migrations.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cubbscratchstudios/splat/internal/config"
)

const (
	defaultMaxConns        = 8
	defaultMaxConnIdleTime = 5 * time.Minute
)

// Open creates the process-wide pool. Callers acquire connections per operation; nothing holds one across calls.
func Open(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = defaultMaxConns
	poolCfg.MaxConnIdleTime = defaultMaxConnIdleTime
	return pgxpool.NewWithConfig(ctx, poolCfg)
}
