// Package db owns the pgx connection pool and the embedded goose
// migrations for the control-plane database.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool sizing floor. The API serves many short queries per request;
// URL parameters still win when they ask for more.
const minPoolConns = 8

// NewCorePool connects a pgx pool to the control-plane database and
// verifies it with a bounded ping. Connections are recycled hourly so
// long-lived workers pick up failovers without a restart.
func NewCorePool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns < minPoolConns {
		cfg.MaxConns = minPoolConns
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
