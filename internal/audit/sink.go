package audit

import (
	"context"
	"time"
)

// Sink is the audit persistence boundary the Decision Pipeline writes to.
// Implementations: SQLite (single instance), Postgres (multi-instance).
type Sink interface {
	Insert(ctx context.Context, entry *Entry) error
	InsertBatch(ctx context.Context, entries []*Entry) error
	Query(ctx context.Context, opts QueryOptions) ([]*Entry, error)
	GetStats(ctx context.Context, since *time.Time) (*Stats, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
