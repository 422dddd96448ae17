package store

import (
	"context"
	"sync"

	"github.com/actionguard/gateway/internal/policy"
)

// MemoryStore is an in-process PolicyStore for tests and single-process
// development use.
type MemoryStore struct {
	mu       sync.RWMutex
	active   map[string]Record
	archived map[string][]*policy.Policy
}

// NewMemoryStore constructs an empty in-memory PolicyStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		active:   make(map[string]Record),
		archived: make(map[string][]*policy.Policy),
	}
}

func (s *MemoryStore) Get(ctx context.Context, projectID string) (*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.active[projectID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Policy, nil
}

func (s *MemoryStore) Put(ctx context.Context, projectID string, raw *policy.RawPolicy) (*policy.Policy, error) {
	p, err := policy.Load(raw)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.active[projectID]; ok {
		s.archived[projectID] = append(s.archived[projectID], prev.Policy)
	}
	s.active[projectID] = Record{ProjectID: projectID, Raw: raw, Policy: p}
	return p, nil
}

func (s *MemoryStore) History(ctx context.Context, projectID string, limit int) ([]*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.archived[projectID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]*policy.Policy, limit)
	for i := 0; i < limit; i++ {
		out[i] = all[len(all)-1-i]
	}
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                   { return nil }
