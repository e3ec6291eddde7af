// Package db owns the pgx pool shared by the subscriber registry and the
// delivery store.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// Every delivery state transition is an upsert, so the pool is sized
	// for attempt fan-out rather than API traffic.
	maxConns    = 10
	pingTimeout = 5 * time.Second
)

// Connect opens the pool and verifies it with a ping, so a bad DSN fails at
// startup instead of on the first delivery.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}
