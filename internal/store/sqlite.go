package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/actionguard/gateway/internal/policy"
)

// SQLiteStore is a single-instance PolicyStore backed by SQLite, grounded
// on the same connection/WAL pattern used for the audit log but repointed
// at a `policies` table keyed by project_id with an `active` flag rather
// than an append-only event log.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteStoreConfig configures the SQLite-backed PolicyStore.
type SQLiteStoreConfig struct {
	DBPath string
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed PolicyStore.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = "policies.db"
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS policies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL,
		raw_document TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_policies_project_id ON policies(project_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_policies_active_unique ON policies(project_id) WHERE active = 1;
	`)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, projectID string) (*policy.Policy, error) {
	var rawJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT raw_document FROM policies WHERE project_id = ? AND active = 1",
		projectID,
	).Scan(&rawJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}

	var raw policy.RawPolicy
	if err := json.Unmarshal([]byte(rawJSON), &raw); err != nil {
		return nil, fmt.Errorf("decode stored policy: %w", err)
	}
	return policy.Load(&raw)
}

func (s *SQLiteStore) Put(ctx context.Context, projectID string, raw *policy.RawPolicy) (*policy.Policy, error) {
	p, err := policy.Load(raw)
	if err != nil {
		return nil, err
	}

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE policies SET active = 0 WHERE project_id = ? AND active = 1", projectID,
	); err != nil {
		return nil, fmt.Errorf("archive previous policy: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO policies (project_id, raw_document, active) VALUES (?, ?, 1)",
		projectID, string(rawJSON),
	); err != nil {
		return nil, fmt.Errorf("insert policy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) History(ctx context.Context, projectID string, limit int) ([]*policy.Policy, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT raw_document FROM policies WHERE project_id = ? AND active = 0 ORDER BY created_at DESC LIMIT ?",
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []*policy.Policy
	for rows.Next() {
		var rawJSON string
		if err := rows.Scan(&rawJSON); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var raw policy.RawPolicy
		if err := json.Unmarshal([]byte(rawJSON), &raw); err != nil {
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

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteStore) Close() error                   { return s.db.Close() }
