// Package db provides database connection infrastructure.
// This is part of the platform layer and contains no business logic.
package db

import (
	"context"
	"time"

	"salesbot_backend/platform/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool creates a new database connection pool with production-ready settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDatabaseURL())
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PoolHealth adapts a pool to the readiness checker used by the router.
type PoolHealth struct {
	pool *pgxpool.Pool
}

// NewPoolHealth wraps pool. A nil pool always reports healthy (file backend).
func NewPoolHealth(pool *pgxpool.Pool) *PoolHealth {
	return &PoolHealth{pool: pool}
}

// Ping checks the database connection.
func (h *PoolHealth) Ping(ctx context.Context) error {
	if h == nil || h.pool == nil {
		return nil
	}
	return h.pool.Ping(ctx)
}
