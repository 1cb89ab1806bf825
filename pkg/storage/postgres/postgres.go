// Package postgres stores the roster and attendance events in PostgreSQL
// with the pgvector extension.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrCodeEU/facetrack/pkg/logging"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool manages a PostgreSQL connection pool.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects to url, verifies the connection and initializes the schema.
func NewPool(ctx context.Context, url string, maxConns int) (*Pool, error) {
	if url == "" {
		return nil, errors.New("database URL is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Component("postgres").Info("Connected to PostgreSQL")
	return &Pool{pool: pool}, nil
}

// initSchema creates the vector extension and tables if they don't exist.
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS identities (
			name TEXT PRIMARY KEY,
			embedding VECTOR(128) NOT NULL,
			enrolled_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS attendance_events (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			event_type TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS attendance_events_name_idx ON attendance_events (name, recorded_at);
	`)
	return err
}

// Close closes the connection pool.
func (p *Pool) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Reset drops all application tables.
func (p *Pool) Reset(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		DROP TABLE IF EXISTS attendance_events CASCADE;
		DROP TABLE IF EXISTS identities CASCADE;
	`)
	if err != nil {
		return fmt.Errorf("reset schema: %w", err)
	}
	return initSchema(ctx, p.pool)
}
