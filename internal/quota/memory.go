package quota

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	at     time.Time
	weight float64
}

type keyState struct {
	mu      sync.Mutex
	entries []entry
}

// MemoryStore is an in-process CounterStore backed by a bounded list of
// (timestamp, weight) entries per key, guarded by a per-key mutex.
// Suitable for single-instance deployments and tests.
type MemoryStore struct {
	keys sync.Map // map[string]*keyState
}

// NewMemoryStore constructs an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) stateFor(key string) *keyState {
	v, _ := s.keys.LoadOrStore(key, &keyState{})
	return v.(*keyState)
}

func prune(entries []entry, cutoff time.Time) []entry {
	out := entries[:0]
	for _, e := range entries {
		if e.at.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

func sum(entries []entry) float64 {
	var total float64
	for _, e := range entries {
		total += e.weight
	}
	return total
}

func (s *MemoryStore) tryRecord(ctx context.Context, key string, weight, limit float64, window time.Duration, now time.Time) (bool, float64, error) {
	st := s.stateFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	cutoff := now.Add(-window)
	st.entries = prune(st.entries, cutoff)

	current := sum(st.entries)
	if current+weight > limit {
		return false, current, nil
	}

	st.entries = append(st.entries, entry{at: now, weight: weight})
	return true, current + weight, nil
}

// TryConsume implements CounterStore.
func (s *MemoryStore) TryConsume(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, float64, error) {
	return s.tryRecord(ctx, key, 1, float64(limit), window, now)
}

// TryAdd implements CounterStore.
func (s *MemoryStore) TryAdd(ctx context.Context, key string, weight float64, max float64, window time.Duration, now time.Time) (bool, float64, error) {
	return s.tryRecord(ctx, key, weight, max, window, now)
}

// Rollback implements CounterStore by removing the most recent entry.
func (s *MemoryStore) Rollback(ctx context.Context, key string, now time.Time) error {
	v, ok := s.keys.Load(key)
	if !ok {
		return nil
	}
	st := v.(*keyState)
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.entries) == 0 {
		return nil
	}
	// Remove the newest entry (the one just recorded by the caller that
	// is now rolling back).
	newest := 0
	for i := range st.entries {
		if st.entries[i].at.After(st.entries[newest].at) {
			newest = i
		}
	}
	st.entries = append(st.entries[:newest], st.entries[newest+1:]...)
	return nil
}
