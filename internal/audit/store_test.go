package audit

import (
	"context"
	"testing"
	"time"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name   string
		config StoreConfig
	}{
		{name: "in-memory database", config: StoreConfig{DBPath: ":memory:"}},
		{name: "default config", config: StoreConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore(tt.config)
			if err != nil {
				t.Fatalf("NewStore() error = %v", err)
			}
			defer store.Close()

			ctx := context.Background()
			if err := store.Ping(ctx); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
		})
	}
}

func TestStore_InsertAndQuery(t *testing.T) {
	store, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	entry := &Entry{
		ActionID:      "act_123",
		Timestamp:     time.Now(),
		LatencyMs:     42.5,
		ProjectID:     "proj_a",
		AgentName:     "agent1",
		ActionType:    "transfer",
		Params:        `{"amount":100}`,
		Allowed:       true,
		PolicyVersion: "v1",
	}

	if err := store.Insert(ctx, entry); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	entries, err := store.Query(ctx, QueryOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Query() returned %d entries, want 1", len(entries))
	}

	e := entries[0]
	if e.ProjectID != "proj_a" {
		t.Errorf("ProjectID = %s, want proj_a", e.ProjectID)
	}
	if e.ActionType != "transfer" {
		t.Errorf("ActionType = %s, want transfer", e.ActionType)
	}
	if !e.Allowed {
		t.Error("Allowed should be true")
	}
	if e.LatencyMs != 42.5 {
		t.Errorf("LatencyMs = %f, want 42.5", e.LatencyMs)
	}
}

func TestStore_InsertBatch(t *testing.T) {
	store, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	var entries []*Entry
	for i := 0; i < 10; i++ {
		entries = append(entries, &Entry{
			ProjectID: "proj", AgentName: "agent", ActionType: "transfer", Allowed: true,
			Timestamp: time.Now(),
		})
	}

	if err := store.InsertBatch(ctx, entries); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	retrieved, err := store.Query(ctx, QueryOptions{Limit: 20})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(retrieved) != 10 {
		t.Errorf("Query() returned %d entries, want 10", len(retrieved))
	}
}

func TestStore_InsertBatchEmpty(t *testing.T) {
	store, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	if err := store.InsertBatch(context.Background(), nil); err != nil {
		t.Errorf("InsertBatch() with empty slice should not error, got %v", err)
	}
}

func TestStore_QueryFilters(t *testing.T) {
	store, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	entries := []*Entry{
		{ProjectID: "proj_a", AgentName: "agent1", ActionType: "transfer", Timestamp: now.Add(-2 * time.Hour), Allowed: true},
		{ProjectID: "proj_a", AgentName: "agent1", ActionType: "delete", Timestamp: now.Add(-1 * time.Hour), Allowed: false},
		{ProjectID: "proj_b", AgentName: "agent2", ActionType: "transfer", Timestamp: now.Add(-30 * time.Minute), Allowed: true},
	}
	for _, e := range entries {
		if err := store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	tests := []struct {
		name        string
		opts        QueryOptions
		expectCount int
	}{
		{name: "filter by project", opts: QueryOptions{ProjectID: "proj_a"}, expectCount: 2},
		{name: "filter by agent", opts: QueryOptions{AgentName: "agent1"}, expectCount: 2},
		{name: "filter by action type", opts: QueryOptions{ActionType: "transfer"}, expectCount: 2},
		{name: "filter by allowed", opts: QueryOptions{Allowed: boolPtr(true)}, expectCount: 2},
		{name: "filter by blocked", opts: QueryOptions{Allowed: boolPtr(false)}, expectCount: 1},
		{name: "filter by time range", opts: QueryOptions{StartTime: timePtr(now.Add(-90 * time.Minute)), EndTime: timePtr(now)}, expectCount: 2},
		{name: "limit", opts: QueryOptions{Limit: 2}, expectCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := store.Query(ctx, tt.opts)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(results) != tt.expectCount {
				t.Errorf("Query() returned %d entries, want %d", len(results), tt.expectCount)
			}
		})
	}
}

func TestStore_GetStats(t *testing.T) {
	store, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	entries := []*Entry{
		{ProjectID: "proj_a", AgentName: "agent1", ActionType: "transfer", Timestamp: now.Add(-1 * time.Hour), Allowed: true, LatencyMs: 10},
		{ProjectID: "proj_a", AgentName: "agent1", ActionType: "transfer", Timestamp: now.Add(-1 * time.Hour), Allowed: false, LatencyMs: 20},
		{ProjectID: "proj_b", AgentName: "agent2", ActionType: "transfer", Timestamp: now.Add(-30 * time.Minute), Allowed: true, LatencyMs: 30},
	}
	for _, e := range entries {
		if err := store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	stats, err := store.GetStats(ctx, nil)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.TotalDecisions != 3 {
		t.Errorf("TotalDecisions = %d, want 3", stats.TotalDecisions)
	}
	if stats.AllowedCount != 2 {
		t.Errorf("AllowedCount = %d, want 2", stats.AllowedCount)
	}
	if stats.UniqueProjects != 2 {
		t.Errorf("UniqueProjects = %d, want 2", stats.UniqueProjects)
	}
}

func TestStore_Prune(t *testing.T) {
	store, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	entries := []*Entry{
		{ProjectID: "proj", AgentName: "agent", ActionType: "x", Timestamp: now.Add(-48 * time.Hour), Allowed: true},
		{ProjectID: "proj", AgentName: "agent", ActionType: "x", Timestamp: now.Add(-1 * time.Hour), Allowed: true},
	}
	for _, e := range entries {
		if err := store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	deleted, err := store.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Prune() deleted %d, want 1", deleted)
	}

	remaining, err := store.Query(ctx, QueryOptions{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("Query() returned %d entries after prune, want 1", len(remaining))
	}
}

func boolPtr(b bool) *bool       { return &b }
func timePtr(t time.Time) *time.Time { return &t }
