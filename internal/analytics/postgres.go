package analytics

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS request_records (
	id          BIGSERIAL PRIMARY KEY,
	user_id     TEXT NOT NULL,
	provider    TEXT,
	capability  TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	latency_ms  BIGINT NOT NULL,
	tokens      BIGINT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
)`

const insertRecordSQL = `
INSERT INTO request_records (user_id, provider, capability, outcome, latency_ms, tokens, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// PostgresSink writes request records to Postgres. It is the collaborator
// boundary: the core emits records, this stores them.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to databaseURL and ensures the records table
// exists.
func NewPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("analytics: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("analytics: ensure schema: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

// Write inserts one record.
func (s *PostgresSink) Write(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, insertRecordSQL,
		rec.UserID, rec.Provider, rec.Capability, string(rec.Outcome),
		rec.Latency.Milliseconds(), rec.Tokens, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("analytics: insert record: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close(context.Context) error {
	s.pool.Close()
	return nil
}
