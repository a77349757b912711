// Package postgres provides the PostgreSQL-backed repositories for calls,
// agents, and transcripts, built on a shared pgx connection pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the three tables on first start. Idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS agents (
    uuid        TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    config      JSONB NOT NULL,
    is_active   BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS calls (
    id           TEXT PRIMARY KEY,
    agent_name   TEXT NOT NULL,
    client_type  TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL,
    phone_number TEXT NOT NULL DEFAULT '',
    start_time   TIMESTAMPTZ NOT NULL,
    end_time     TIMESTAMPTZ,
    metadata     JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS calls_start_time_idx ON calls (start_time DESC);
CREATE INDEX IF NOT EXISTS calls_client_type_idx ON calls (client_type);

CREATE TABLE IF NOT EXISTS transcripts (
    id        BIGSERIAL PRIMARY KEY,
    call_id   TEXT NOT NULL,
    role      TEXT NOT NULL,
    content   TEXT NOT NULL,
    timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS transcripts_call_idx ON transcripts (call_id, id);
`

// Store owns the pgx pool and hands out the repository views.
type Store struct {
	pool        *pgxpool.Pool
	calls       *Calls
	agents      *Agents
	transcripts *Transcripts
}

// NewStore connects to dsn, applies the schema, and returns the store.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}

	s := &Store{pool: pool}
	s.calls = &Calls{pool: pool}
	s.agents = &Agents{pool: pool}
	s.transcripts = newTranscripts(pool)
	return s, nil
}

// Calls returns the call repository.
func (s *Store) Calls() *Calls { return s.calls }

// Agents returns the agent repository.
func (s *Store) Agents() *Agents { return s.agents }

// Transcripts returns the transcript repository.
func (s *Store) Transcripts() *Transcripts { return s.transcripts }

// Ping verifies database connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close stops the transcript worker and releases the pool.
func (s *Store) Close() {
	_ = s.transcripts.Close()
	s.pool.Close()
}
