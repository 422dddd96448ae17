package rulematch

import (
	"testing"

	"github.com/actionguard/gateway/internal/action"
	"github.com/actionguard/gateway/internal/policy"
)

func loadPolicy(t *testing.T, def string, rules []map[string]interface{}) *policy.Policy {
	t.Helper()
	p, err := policy.Load(&policy.RawPolicy{Name: "t", Version: "v1", Default: def, Rules: rules})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return p
}

func TestMatch_AllowedAgentsIsGate(t *testing.T) {
	p := loadPolicy(t, "block", []map[string]interface{}{
		{"action_type": "transfer", "allowed_agents": []interface{}{"trusted-agent"}},
		{"action_type": "transfer"},
	})
	act := action.Action{AgentName: "other-agent", ActionType: "transfer", Params: action.Object(nil)}
	v := Match(act, p)
	if v.Outcome != OutcomeAllowPending {
		t.Fatalf("outcome = %v, want AllowPending (second rule should apply)", v.Outcome)
	}
}

func TestMatch_BlockedAgentsIsBar(t *testing.T) {
	p := loadPolicy(t, "allow", []map[string]interface{}{
		{"action_type": "transfer", "blocked_agents": []interface{}{"bad-agent"}},
	})
	act := action.Action{AgentName: "bad-agent", ActionType: "transfer", Params: action.Object(nil)}
	v := Match(act, p)
	if v.Outcome != OutcomeBlock {
		t.Fatalf("outcome = %v, want Block", v.Outcome)
	}
}

func TestMatch_BlockedAgentsWildcard(t *testing.T) {
	p := loadPolicy(t, "allow", []map[string]interface{}{
		{"action_type": "transfer", "blocked_agents": []interface{}{"*"}},
	})
	act := action.Action{AgentName: "anyone", ActionType: "transfer", Params: action.Object(nil)}
	v := Match(act, p)
	if v.Outcome != OutcomeBlock {
		t.Fatalf("outcome = %v, want Block for wildcard bar", v.Outcome)
	}
}

func TestMatch_ConstraintViolationBlocks(t *testing.T) {
	p := loadPolicy(t, "allow", []map[string]interface{}{
		{
			"action_type": "transfer",
			"constraints": map[string]interface{}{
				"amount": map[string]interface{}{"max": 100.0},
			},
		},
	})
	act := action.Action{
		AgentName: "agent", ActionType: "transfer",
		Params: action.ValueFromJSON(map[string]interface{}{"amount": 500.0}),
	}
	v := Match(act, p)
	if v.Outcome != OutcomeBlock {
		t.Fatalf("outcome = %v, want Block", v.Outcome)
	}
}

func TestMatch_MultipleFailingConstraintsReasonIsDeterministic(t *testing.T) {
	p := loadPolicy(t, "allow", []map[string]interface{}{
		{
			"action_type": "transfer",
			"constraints": map[string]interface{}{
				"zzz_field": map[string]interface{}{"max": 1.0},
				"aaa_field": map[string]interface{}{"max": 1.0},
				"mmm_field": map[string]interface{}{"max": 1.0},
			},
		},
	})
	act := action.Action{
		AgentName: "agent", ActionType: "transfer",
		Params: action.ValueFromJSON(map[string]interface{}{
			"zzz_field": 500.0, "aaa_field": 500.0, "mmm_field": 500.0,
		}),
	}

	var first string
	for i := 0; i < 20; i++ {
		v := Match(act, p)
		if v.Outcome != OutcomeBlock {
			t.Fatalf("outcome = %v, want Block", v.Outcome)
		}
		if i == 0 {
			first = v.Reason
		} else if v.Reason != first {
			t.Fatalf("reason varied across runs: got %q, first was %q", v.Reason, first)
		}
	}
	if first == "" {
		t.Fatal("expected a non-empty reason")
	}
}

func TestMatch_NoCandidateReturnsDefault(t *testing.T) {
	p := loadPolicy(t, "block", []map[string]interface{}{
		{"action_type": "transfer"},
	})
	act := action.Action{AgentName: "agent", ActionType: "delete", Params: action.Object(nil)}
	v := Match(act, p)
	if v.Outcome != OutcomeDefault || v.Default != policy.EffectBlock {
		t.Fatalf("outcome = %v default = %v, want Default(block)", v.Outcome, v.Default)
	}
}

func TestMatch_RuleEffectBlockOverridesNoViolation(t *testing.T) {
	p := loadPolicy(t, "allow", []map[string]interface{}{
		{"action_type": "transfer", "effect": "block"},
	})
	act := action.Action{AgentName: "agent", ActionType: "transfer", Params: action.Object(nil)}
	v := Match(act, p)
	if v.Outcome != OutcomeBlock {
		t.Fatalf("outcome = %v, want Block for rule with effect=block", v.Outcome)
	}
}

func TestMatch_RuleMatchedNoViolationAllowsPending(t *testing.T) {
	p := loadPolicy(t, "block", []map[string]interface{}{
		{"action_type": "transfer"},
	})
	act := action.Action{AgentName: "agent", ActionType: "transfer", Params: action.Object(nil)}
	v := Match(act, p)
	if v.Outcome != OutcomeAllowPending || v.Rule == nil {
		t.Fatalf("outcome = %v, want AllowPending with a rule", v.Outcome)
	}
}
