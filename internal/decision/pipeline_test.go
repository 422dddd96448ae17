package decision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/actionguard/gateway/internal/action"
	"github.com/actionguard/gateway/internal/audit"
	"github.com/actionguard/gateway/internal/policy"
	"github.com/actionguard/gateway/internal/quota"
	"github.com/actionguard/gateway/internal/store"
)

// fakeSink is an in-memory audit.Sink for tests, avoiding a real
// database dependency for pipeline-level assertions.
type fakeSink struct {
	mu      sync.Mutex
	entries []*audit.Entry
	failing bool
}

func (f *fakeSink) Insert(ctx context.Context, e *audit.Entry) error {
	return f.InsertBatch(ctx, []*audit.Entry{e})
}

func (f *fakeSink) InsertBatch(ctx context.Context, entries []*audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("sink unavailable")
	}
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeSink) Query(ctx context.Context, opts audit.QueryOptions) ([]*audit.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries, nil
}

func (f *fakeSink) GetStats(ctx context.Context, since *time.Time) (*audit.Stats, error) {
	return &audit.Stats{}, nil
}

func (f *fakeSink) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeSink) Ping(ctx context.Context) error { return nil }
func (f *fakeSink) Close() error                   { return nil }

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func newTestPipeline(t *testing.T, sink *fakeSink, failClosed bool) (*Pipeline, store.PolicyStore) {
	t.Helper()
	ps := store.NewMemoryStore()
	w := audit.NewWriter(sink, audit.WriterConfig{BufferSize: 10, FlushInterval: 10 * time.Millisecond})
	w.Start()
	t.Cleanup(w.Stop)

	p := NewPipeline(Config{
		Store:       ps,
		Quota:       quota.NewEngine(quota.NewMemoryStore()),
		AuditWriter: w,
		Clock:       FixedClock{Time: time.Unix(1700000000, 0)},
		FailClosed:  failClosed,
	})
	return p, ps
}

func putPolicy(t *testing.T, ps store.PolicyStore, projectID string, raw *policy.RawPolicy) {
	t.Helper()
	if _, err := ps.Put(context.Background(), projectID, raw); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
}

func TestDecide_UnconfiguredProjectAllows(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeSink{}, false)
	act := action.Action{ProjectID: "unconfigured", AgentName: "a", ActionType: "pay_invoice", Params: action.Object(nil)}

	d, err := p.Decide(context.Background(), act, Options{})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if !d.Allowed {
		t.Errorf("Allowed = false, want true for unconfigured project")
	}
	if d.ActionID == "" {
		t.Errorf("ActionID is empty, want a generated id")
	}
}

func TestDecide_S1_AllowedPayment(t *testing.T) {
	sink := &fakeSink{}
	p, ps := newTestPipeline(t, sink, false)
	putPolicy(t, ps, "proj", &policy.RawPolicy{
		Name: "p", Version: "v1", Default: "block",
		Rules: []map[string]interface{}{
			{
				"action_type": "pay_invoice",
				"constraints": map[string]interface{}{
					"amount":   map[string]interface{}{"max": 10000.0, "min": 0.0},
					"currency": map[string]interface{}{"in": []interface{}{"USD", "EUR"}},
				},
			},
		},
	})

	act := action.Action{
		ProjectID: "proj", AgentName: "invoice_agent", ActionType: "pay_invoice",
		Params: action.ValueFromJSON(map[string]interface{}{"amount": 5000.0, "currency": "USD"}),
	}
	d, err := p.Decide(context.Background(), act, Options{})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if !d.Allowed || d.Reason != "" {
		t.Errorf("Decide() = %+v, want allowed with no reason", d)
	}
	if d.ActionID == "" {
		t.Errorf("ActionID empty, want non-empty")
	}

	time.Sleep(30 * time.Millisecond)
	if sink.count() != 1 {
		t.Errorf("sink.count() = %d, want 1", sink.count())
	}
}

func TestDecide_DefaultBlockWithNoMatch(t *testing.T) {
	sink := &fakeSink{}
	p, ps := newTestPipeline(t, sink, false)
	putPolicy(t, ps, "proj", &policy.RawPolicy{Name: "p", Version: "v1", Default: "block", Rules: []map[string]interface{}{}})

	act := action.Action{ProjectID: "proj", AgentName: "a", ActionType: "delete_everything", Params: action.Object(nil)}
	d, err := p.Decide(context.Background(), act, Options{})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Allowed {
		t.Errorf("Allowed = true, want false")
	}
	if d.Reason == "" {
		t.Errorf("Reason is empty, want a non-empty block reason")
	}
}

func TestDecide_Simulation_NoAuditNoActionID(t *testing.T) {
	sink := &fakeSink{}
	p, ps := newTestPipeline(t, sink, false)
	putPolicy(t, ps, "proj", &policy.RawPolicy{Name: "p", Version: "v1", Default: "block"})

	act := action.Action{ProjectID: "proj", AgentName: "a", ActionType: "anything", Params: action.Object(nil)}
	d, err := p.Decide(context.Background(), act, Options{Simulate: true})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.ActionID != "" {
		t.Errorf("ActionID = %q, want empty for simulation", d.ActionID)
	}
	if !d.Simulated {
		t.Errorf("Simulated = false, want true")
	}

	time.Sleep(30 * time.Millisecond)
	if sink.count() != 0 {
		t.Errorf("sink.count() = %d, want 0 for simulation", sink.count())
	}
}

func TestDecide_RateLimitBlocksSecondRequest(t *testing.T) {
	sink := &fakeSink{}
	p, ps := newTestPipeline(t, sink, false)
	putPolicy(t, ps, "proj", &policy.RawPolicy{
		Name: "p", Version: "v1", Default: "block",
		Rules: []map[string]interface{}{
			{
				"action_type": "call_tool",
				"rate_limit":  map[string]interface{}{"max_requests": 1.0, "window_seconds": 60.0},
			},
		},
	})

	act := action.Action{ProjectID: "proj", AgentName: "agent", ActionType: "call_tool", Params: action.Object(nil)}
	d1, err := p.Decide(context.Background(), act, Options{})
	if err != nil || !d1.Allowed {
		t.Fatalf("first Decide() = %+v, err = %v, want allowed", d1, err)
	}

	d2, err := p.Decide(context.Background(), act, Options{})
	if err != nil {
		t.Fatalf("second Decide() error = %v", err)
	}
	if d2.Allowed {
		t.Errorf("second Decide() Allowed = true, want false (rate limited)")
	}
}

func TestDecide_SimulatedCallObservesExhaustedQuotaWithoutConsumingIt(t *testing.T) {
	sink := &fakeSink{}
	p, ps := newTestPipeline(t, sink, false)
	putPolicy(t, ps, "proj", &policy.RawPolicy{
		Name: "p", Version: "v1", Default: "block",
		Rules: []map[string]interface{}{
			{
				"action_type": "call_tool",
				"rate_limit":  map[string]interface{}{"max_requests": 1.0, "window_seconds": 60.0},
			},
		},
	})

	act := action.Action{ProjectID: "proj", AgentName: "agent", ActionType: "call_tool", Params: action.Object(nil)}

	d1, err := p.Decide(context.Background(), act, Options{})
	if err != nil || !d1.Allowed {
		t.Fatalf("first Decide() = %+v, err = %v, want allowed", d1, err)
	}

	for i := 0; i < 3; i++ {
		sim, err := p.Decide(context.Background(), act, Options{Simulate: true})
		if err != nil {
			t.Fatalf("simulated Decide() error = %v", err)
		}
		if sim.Allowed {
			t.Fatalf("simulated Decide() Allowed = true, want false against exhausted quota")
		}
	}

	d2, err := p.Decide(context.Background(), act, Options{})
	if err != nil {
		t.Fatalf("non-simulated Decide() error = %v", err)
	}
	if d2.Allowed {
		t.Errorf("non-simulated Decide() after simulated peeks Allowed = true, want false (quota still exhausted by the real first call, unaffected by the peeks)")
	}
}

func TestDecide_PolicyUpdateInvalidatesCache(t *testing.T) {
	sink := &fakeSink{}
	p, ps := newTestPipeline(t, sink, false)
	putPolicy(t, ps, "proj", &policy.RawPolicy{Name: "p", Version: "v1", Default: "allow", Rules: []map[string]interface{}{}})

	act := action.Action{ProjectID: "proj", AgentName: "a", ActionType: "x", Params: action.Object(nil)}
	d1, _ := p.Decide(context.Background(), act, Options{})
	if d1.PolicyVersion != "v1" {
		t.Fatalf("PolicyVersion = %s, want v1", d1.PolicyVersion)
	}

	putPolicy(t, ps, "proj", &policy.RawPolicy{Name: "p", Version: "v2", Default: "block", Rules: []map[string]interface{}{}})
	p.InvalidatePolicy("proj")

	d2, _ := p.Decide(context.Background(), act, Options{})
	if d2.PolicyVersion != "v2" {
		t.Errorf("PolicyVersion = %s, want v2 after invalidate", d2.PolicyVersion)
	}
	if d2.Allowed {
		t.Errorf("Allowed = true, want false under new default=block policy")
	}
}

type failingStore struct {
	store.PolicyStore
}

func (failingStore) Get(ctx context.Context, projectID string) (*policy.Policy, error) {
	return nil, errors.New("store unreachable")
}

func TestDecide_FailClosedBlocksOnInfraFault(t *testing.T) {
	sink := &fakeSink{}
	w := audit.NewWriter(sink, audit.WriterConfig{})
	w.Start()
	t.Cleanup(w.Stop)

	p := NewPipeline(Config{
		Store:       failingStore{},
		Quota:       quota.NewEngine(quota.NewMemoryStore()),
		AuditWriter: w,
		Clock:       FixedClock{Time: time.Now()},
		FailClosed:  true,
	})

	act := action.Action{ProjectID: "proj", AgentName: "a", ActionType: "x", Params: action.Object(nil)}
	d, err := p.Decide(context.Background(), act, Options{})
	if err != nil {
		t.Fatalf("Decide() error = %v, want nil (fail-closed absorbs the fault)", err)
	}
	if d.Allowed {
		t.Errorf("Allowed = true, want false under fail-closed")
	}
	if d.Reason != defaultFailClosedReason {
		t.Errorf("Reason = %q, want %q", d.Reason, defaultFailClosedReason)
	}
}

func TestDecide_FailOpenSurfacesInfraFault(t *testing.T) {
	sink := &fakeSink{}
	w := audit.NewWriter(sink, audit.WriterConfig{})
	w.Start()
	t.Cleanup(w.Stop)

	p := NewPipeline(Config{
		Store:       failingStore{},
		Quota:       quota.NewEngine(quota.NewMemoryStore()),
		AuditWriter: w,
		Clock:       FixedClock{Time: time.Now()},
		FailClosed:  false,
	})

	act := action.Action{ProjectID: "proj", AgentName: "a", ActionType: "x", Params: action.Object(nil)}
	_, err := p.Decide(context.Background(), act, Options{})
	if err == nil {
		t.Fatalf("Decide() error = nil, want an infra fault surfaced to the caller")
	}
}
