// Package quota implements the Quota Engine (C4): sliding-window request
// and aggregate counters sharing one CounterStore backend.
package quota

import (
	"context"
	"time"
)

// CounterStore is the shared state backend for both counter kinds. Every
// operation on a given key must be observed as atomic with respect to
// concurrent callers on that key; cross-key operations require no
// ordering.
type CounterStore interface {
	// TryConsume admits or refuses one unit of weight 1 against key's
	// sliding window.
	TryConsume(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (admitted bool, current float64, err error)

	// TryAdd admits or refuses weight against key's sliding window.
	TryAdd(ctx context.Context, key string, weight float64, max float64, window time.Duration, now time.Time) (admitted bool, current float64, err error)

	// Rollback removes the most recently recorded entry for key, used
	// when a request counter increment must be undone because a
	// downstream aggregate check refused. Backends that cannot support
	// rollback report it with ErrRollbackUnsupported; Engine.Check has no
	// check-both-limits-first fallback and returns a failed rollback after
	// an aggregate refusal as an error.
	Rollback(ctx context.Context, key string, now time.Time) error
}

// ErrRollbackUnsupported is the error a backend that cannot remove a
// single recorded entry returns from Rollback. MemoryStore and RedisStore
// both support rollback and never return it.
var ErrRollbackUnsupported = rollbackUnsupportedError{}

type rollbackUnsupportedError struct{}

func (rollbackUnsupportedError) Error() string { return "rollback not supported by this backend" }
