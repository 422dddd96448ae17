package quota

import (
	"context"
	"testing"
	"time"

	"github.com/actionguard/gateway/internal/action"
	"github.com/actionguard/gateway/internal/policy"
)

// fakeStore lets tests script admit/refuse decisions and records whether
// Rollback was called, to verify the ordering contract in engine.go.
type fakeStore struct {
	consumeAdmit bool
	addAdmit     bool
	rolledBack   []string
}

func (f *fakeStore) TryConsume(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, float64, error) {
	return f.consumeAdmit, 1, nil
}

func (f *fakeStore) TryAdd(ctx context.Context, key string, weight, max float64, window time.Duration, now time.Time) (bool, float64, error) {
	return f.addAdmit, weight, nil
}

func (f *fakeStore) Rollback(ctx context.Context, key string, now time.Time) error {
	f.rolledBack = append(f.rolledBack, key)
	return nil
}

func TestEngine_AggregateRefusalRollsBackRequestCounter(t *testing.T) {
	store := &fakeStore{consumeAdmit: true, addAdmit: false}
	e := NewEngine(store)

	rule := &policy.Rule{
		ActionType: "transfer",
		RateLimit:  &policy.RateLimit{MaxRequests: 10, WindowSeconds: 60},
		AggregateLimit: &policy.AggregateLimit{
			Field: "amount", Max: 100, WindowSeconds: 60,
		},
	}
	act := action.Action{
		AgentName: "agent", ActionType: "transfer",
		Params: action.ValueFromJSON(map[string]interface{}{"amount": 50.0}),
	}

	v, err := e.Check(context.Background(), "proj", act, rule, time.Now(), true)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if v.Admitted {
		t.Fatal("expected refusal")
	}
	if len(store.rolledBack) != 1 {
		t.Fatalf("expected rollback of request counter, got %v", store.rolledBack)
	}
}

func TestEngine_RequestRefusalSkipsAggregate(t *testing.T) {
	store := &fakeStore{consumeAdmit: false, addAdmit: true}
	e := NewEngine(store)

	rule := &policy.Rule{
		ActionType: "transfer",
		RateLimit:  &policy.RateLimit{MaxRequests: 10, WindowSeconds: 60},
		AggregateLimit: &policy.AggregateLimit{
			Field: "amount", Max: 100, WindowSeconds: 60,
		},
	}
	act := action.Action{AgentName: "agent", ActionType: "transfer", Params: action.Object(nil)}

	v, err := e.Check(context.Background(), "proj", act, rule, time.Now(), true)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if v.Admitted {
		t.Fatal("expected refusal from request counter")
	}
	if len(store.rolledBack) != 0 {
		t.Errorf("aggregate should never have been recorded, nothing to roll back, got %v", store.rolledBack)
	}
}

func TestEngine_NonCommitRollsBackEvenOnAdmission(t *testing.T) {
	store := &fakeStore{consumeAdmit: true, addAdmit: true}
	e := NewEngine(store)

	rule := &policy.Rule{
		ActionType: "transfer",
		RateLimit:  &policy.RateLimit{MaxRequests: 10, WindowSeconds: 60},
		AggregateLimit: &policy.AggregateLimit{
			Field: "amount", Max: 100, WindowSeconds: 60,
		},
	}
	act := action.Action{
		AgentName: "agent", ActionType: "transfer",
		Params: action.ValueFromJSON(map[string]interface{}{"amount": 50.0}),
	}

	v, err := e.Check(context.Background(), "proj", act, rule, time.Now(), false)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !v.Admitted {
		t.Fatal("expected admission to reflect live counter state")
	}
	if len(store.rolledBack) != 2 {
		t.Fatalf("expected both counters rolled back for a non-commit check, got %v", store.rolledBack)
	}
}

func TestEngine_ExtractionFailureTreatedAsZero(t *testing.T) {
	store := &fakeStore{consumeAdmit: true, addAdmit: true}
	e := NewEngine(store)

	rule := &policy.Rule{
		ActionType:     "transfer",
		AggregateLimit: &policy.AggregateLimit{Field: "missing.field", Max: 100, WindowSeconds: 60},
	}
	act := action.Action{AgentName: "agent", ActionType: "transfer", Params: action.Object(nil)}

	v, err := e.Check(context.Background(), "proj", act, rule, time.Now(), true)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !v.Admitted {
		t.Fatal("expected admission when aggregate field cannot be extracted")
	}
}
