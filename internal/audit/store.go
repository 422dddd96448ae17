package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Store is a SQLite-backed audit Sink for single-instance deployments.
type Store struct {
	db     *sql.DB
	dbPath string
}

// StoreConfig configures a SQLite audit store.
type StoreConfig struct {
	DBPath string // ":memory:" for in-memory (tests)
}

// NewStore opens (creating if needed) a SQLite-backed audit store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = "audit.db"
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{db: db, dbPath: cfg.DBPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action_id TEXT,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		latency_ms REAL,

		project_id TEXT NOT NULL,
		agent_name TEXT NOT NULL,
		action_type TEXT NOT NULL,
		params TEXT,

		allowed INTEGER NOT NULL,
		reason TEXT,
		policy_version TEXT,
		matched_effect TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_project_id ON audit_log(project_id);
	CREATE INDEX IF NOT EXISTS idx_audit_agent_name ON audit_log(agent_name);
	CREATE INDEX IF NOT EXISTS idx_audit_action_type ON audit_log(action_type);
	CREATE INDEX IF NOT EXISTS idx_audit_allowed ON audit_log(allowed);
	`
	_, err := s.db.Exec(schema)
	return err
}

const insertColumns = `
	action_id, timestamp, latency_ms,
	project_id, agent_name, action_type, params,
	allowed, reason, policy_version, matched_effect
`

// Insert adds a single audit entry.
func (s *Store) Insert(ctx context.Context, e *Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (`+insertColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ActionID, e.Timestamp, e.LatencyMs,
		e.ProjectID, e.AgentName, e.ActionType, e.Params,
		e.Allowed, e.Reason, e.PolicyVersion, e.MatchedEffect,
	)
	return err
}

// InsertBatch inserts multiple entries within a single transaction.
func (s *Store) InsertBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO audit_log (`+insertColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx,
			e.ActionID, e.Timestamp, e.LatencyMs,
			e.ProjectID, e.AgentName, e.ActionType, e.Params,
			e.Allowed, e.Reason, e.PolicyVersion, e.MatchedEffect,
		)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}

	return tx.Commit()
}

// allowedOrderByColumns whitelists ORDER BY columns to keep Query's
// caller-supplied OrderBy from reaching SQL string interpolation unvetted.
var allowedOrderByColumns = map[string]bool{
	"id": true, "timestamp": true, "project_id": true,
	"agent_name": true, "action_type": true, "allowed": true, "latency_ms": true,
}

// Query retrieves audit entries matching opts.
func (s *Store) Query(ctx context.Context, opts QueryOptions) ([]*Entry, error) {
	var conditions []string
	var args []interface{}

	if opts.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *opts.StartTime)
	}
	if opts.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *opts.EndTime)
	}
	if opts.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, opts.ProjectID)
	}
	if opts.AgentName != "" {
		conditions = append(conditions, "agent_name = ?")
		args = append(args, opts.AgentName)
	}
	if opts.ActionType != "" {
		conditions = append(conditions, "action_type = ?")
		args = append(args, opts.ActionType)
	}
	if opts.Allowed != nil {
		conditions = append(conditions, "allowed = ?")
		args = append(args, *opts.Allowed)
	}

	query := "SELECT id, action_id, timestamp, latency_ms, " +
		"project_id, agent_name, action_type, params, " +
		"allowed, reason, policy_version, matched_effect FROM audit_log"

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	orderBy := "timestamp"
	if opts.OrderBy != "" {
		if !allowedOrderByColumns[opts.OrderBy] {
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
func (s *Store) GetStats(ctx context.Context, since *time.Time) (*Stats, error) {
	query := `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN allowed = 1 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN allowed = 0 THEN 1 ELSE 0 END), 0),
		COUNT(DISTINCT project_id),
		COUNT(DISTINCT agent_name),
		AVG(latency_ms)
	FROM audit_log
	`
	var args []interface{}
	if since != nil {
		query += " WHERE timestamp >= ?"
		args = append(args, *since)
	}

	var stats Stats
	var avgLatency sql.NullFloat64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.TotalDecisions, &stats.AllowedCount, &stats.BlockedCount,
		&stats.UniqueProjects, &stats.UniqueAgents, &avgLatency,
	)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	if avgLatency.Valid {
		stats.AvgLatencyMs = avgLatency.Float64
	}
	return &stats, nil
}

// Prune deletes entries older than olderThan, returning the count removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_log WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return result.RowsAffected()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	log.Info().Str("path", s.dbPath).Msg("closing audit store")
	return s.db.Close()
}
