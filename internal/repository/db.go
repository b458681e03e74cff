// Package repository persists violation telemetry to Postgres. The
// database is optional: without a DSN the server runs log-only.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/virtarena/arena-server-go/internal/config"
	"go.uber.org/zap"
)

// DB wraps the pgx connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewDB connects to Postgres and verifies the connection.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{pool: pool, logger: logger}, nil
}

// Pool exposes the underlying pgx pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Stats returns pool statistics.
func (db *DB) Stats() *pgxpool.Stat {
	return db.pool.Stat()
}

// Close shuts the pool down.
func (db *DB) Close() {
	db.pool.Close()
}

// EnsureSchema creates the violations table if it does not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS violations (
    id            BIGSERIAL PRIMARY KEY,
    session_id    TEXT        NOT NULL,
    kind          TEXT        NOT NULL,
    detail        TEXT        NOT NULL DEFAULT '',
    speed_count   INT         NOT NULL,
    teleport_count INT        NOT NULL,
    accel_count   INT         NOT NULL,
    rate_count    INT         NOT NULL,
    rapid_count   INT         NOT NULL,
    struct_count  INT         NOT NULL,
    total_count   INT         NOT NULL,
    recorded_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS violations_session_idx ON violations (session_id, recorded_at);
`
	if _, err := db.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure violations schema: %w", err)
	}
	return nil
}
