package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/actionguard/gateway/internal/policy"
)

// PostgresStore is a PolicyStore backed by a pgx connection pool, for
// multi-instance gateway deployments that need policies visible to every
// instance without a cache-invalidation side channel.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connString and ensures the policies table
// exists.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS policies (
		id BIGSERIAL PRIMARY KEY,
		project_id TEXT NOT NULL,
		raw_document JSONB NOT NULL,
		active BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_policies_project_id ON policies(project_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_policies_active_unique ON policies(project_id) WHERE active;
	`)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, projectID string) (*policy.Policy, error) {
	var rawJSON []byte
	err := s.pool.QueryRow(ctx,
		"SELECT raw_document FROM policies WHERE project_id = $1 AND active",
		projectID,
	).Scan(&rawJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}

	var raw policy.RawPolicy
	if err := json.Unmarshal(rawJSON, &raw); err != nil {
		return nil, fmt.Errorf("decode stored policy: %w", err)
	}
	return policy.Load(&raw)
}

func (s *PostgresStore) Put(ctx context.Context, projectID string, raw *policy.RawPolicy) (*policy.Policy, error) {
	p, err := policy.Load(raw)
	if err != nil {
		return nil, err
	}

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"UPDATE policies SET active = false WHERE project_id = $1 AND active", projectID,
	); err != nil {
		return nil, fmt.Errorf("archive previous policy: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO policies (project_id, raw_document, active) VALUES ($1, $2, true)",
		projectID, rawJSON,
	); err != nil {
		return nil, fmt.Errorf("insert policy: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) History(ctx context.Context, projectID string, limit int) ([]*policy.Policy, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		"SELECT raw_document FROM policies WHERE project_id = $1 AND NOT active ORDER BY created_at DESC LIMIT $2",
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []*policy.Policy
	for rows.Next() {
		var rawJSON []byte
		if err := rows.Scan(&rawJSON); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var raw policy.RawPolicy
		if err := json.Unmarshal(rawJSON, &raw); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		p, err := policy.Load(&raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
func (s *PostgresStore) Close() error                   { s.pool.Close(); return nil }
