package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore is a Postgres-backed audit Sink for multi-instance
// gateway deployments that need a shared audit trail.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a pgx-backed connection pool against connString
// and ensures the audit_log table exists.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS audit_log (
		id BIGSERIAL PRIMARY KEY,
		action_id TEXT,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
		latency_ms DOUBLE PRECISION,
		project_id TEXT NOT NULL,
		agent_name TEXT NOT NULL,
		action_type TEXT NOT NULL,
		params TEXT,
		allowed BOOLEAN NOT NULL,
		reason TEXT,
		policy_version TEXT,
		matched_effect TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_log_project_id ON audit_log(project_id);
	`)
	return err
}

// Insert adds a single audit entry.
func (s *PostgresStore) Insert(ctx context.Context, e *Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (action_id, timestamp, latency_ms, project_id, agent_name, action_type, params, allowed, reason, policy_version, matched_effect)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ActionID, e.Timestamp, e.LatencyMs, e.ProjectID, e.AgentName, e.ActionType, e.Params,
		e.Allowed, e.Reason, e.PolicyVersion, e.MatchedEffect,
	)
	return err
}

// InsertBatch inserts multiple entries as a single multi-row statement.
func (s *PostgresStore) InsertBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	const numFields = 11
	placeholders := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries)*numFields)

	for i, e := range entries {
		base := i * numFields
		ph := make([]string, numFields)
		for j := 0; j < numFields; j++ {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			e.ActionID, e.Timestamp, e.LatencyMs, e.ProjectID, e.AgentName, e.ActionType, e.Params,
			e.Allowed, e.Reason, e.PolicyVersion, e.MatchedEffect,
		)
	}

	query := "INSERT INTO audit_log (action_id, timestamp, latency_ms, project_id, agent_name, action_type, params, allowed, reason, policy_version, matched_effect) VALUES " +
		strings.Join(placeholders, ", ")

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

var postgresOrderByColumns = map[string]bool{
	"id": true, "timestamp": true, "project_id": true,
	"agent_name": true, "action_type": true, "allowed": true, "latency_ms": true,
}

// Query retrieves audit entries matching opts.
func (s *PostgresStore) Query(ctx context.Context, opts QueryOptions) ([]*Entry, error) {
	var conditions []string
	var args []interface{}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.StartTime != nil {
		conditions = append(conditions, "timestamp >= "+next(*opts.StartTime))
	}
	if opts.EndTime != nil {
		conditions = append(conditions, "timestamp <= "+next(*opts.EndTime))
	}
	if opts.ProjectID != "" {
		conditions = append(conditions, "project_id = "+next(opts.ProjectID))
	}
	if opts.AgentName != "" {
		conditions = append(conditions, "agent_name = "+next(opts.AgentName))
	}
	if opts.ActionType != "" {
		conditions = append(conditions, "action_type = "+next(opts.ActionType))
	}
	if opts.Allowed != nil {
		conditions = append(conditions, "allowed = "+next(*opts.Allowed))
	}

	query := "SELECT id, action_id, timestamp, latency_ms, project_id, agent_name, action_type, params, allowed, reason, policy_version, matched_effect FROM audit_log"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	orderBy := "timestamp"
	if opts.OrderBy != "" {
		if !postgresOrderByColumns[opts.OrderBy] {
			return nil, fmt.Errorf("invalid order by column: %s", opts.OrderBy)
		}
		orderBy = opts.OrderBy
	}
	order := "ASC"
	if opts.OrderDesc {
		order = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", orderBy, order)

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(
			&e.ID, &e.ActionID, &e.Timestamp, &e.LatencyMs,
			&e.ProjectID, &e.AgentName, &e.ActionType, &e.Params,
			&e.Allowed, &e.Reason, &e.PolicyVersion, &e.MatchedEffect,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetStats returns aggregate statistics, optionally since a cutoff time.
func (s *PostgresStore) GetStats(ctx context.Context, since *time.Time) (*Stats, error) {
	query := `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN allowed THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN NOT allowed THEN 1 ELSE 0 END), 0),
		COUNT(DISTINCT project_id),
		COUNT(DISTINCT agent_name),
		COALESCE(AVG(latency_ms), 0)
	FROM audit_log
	`
	var args []interface{}
	if since != nil {
		query += " WHERE timestamp >= $1"
		args = append(args, *since)
	}

	var stats Stats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.TotalDecisions, &stats.AllowedCount, &stats.BlockedCount,
		&stats.UniqueProjects, &stats.UniqueAgents, &stats.AvgLatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return &stats, nil
}

// Prune deletes entries older than olderThan, returning the count removed.
func (s *PostgresStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_log WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return result.RowsAffected()
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
