package constraint

import (
	"regexp"
	"testing"

	"github.com/actionguard/gateway/internal/action"
	"github.com/actionguard/gateway/internal/policy"
)

func params(t *testing.T, json map[string]interface{}) action.Value {
	t.Helper()
	return action.ValueFromJSON(json)
}

func TestEvaluate_MinSatisfied(t *testing.T) {
	p := params(t, map[string]interface{}{"amount": 100.0})
	r := Evaluate(p, "amount", policy.Constraint{HasMin: true, Min: 50})
	if !r.Satisfied {
		t.Errorf("expected satisfied, got %s", r.Reason)
	}
}

func TestEvaluate_MinViolated(t *testing.T) {
	p := params(t, map[string]interface{}{"amount": 10.0})
	r := Evaluate(p, "amount", policy.Constraint{HasMin: true, Min: 50})
	if r.Satisfied {
		t.Error("expected violation")
	}
}

func TestEvaluate_PathAbsent_MinIsViolation(t *testing.T) {
	p := params(t, map[string]interface{}{})
	r := Evaluate(p, "amount", policy.Constraint{HasMin: true, Min: 50})
	if r.Satisfied {
		t.Error("expected PathAbsent to violate min")
	}
}

func TestEvaluate_PathAbsent_NotInIsVacuouslySatisfied(t *testing.T) {
	p := params(t, map[string]interface{}{})
	r := Evaluate(p, "currency", policy.Constraint{
		HasNotIn: true,
		NotIn:    []action.Value{action.String("XMR")},
	})
	if !r.Satisfied {
		t.Errorf("expected PathAbsent to vacuously satisfy not_in, got %s", r.Reason)
	}
}

func TestEvaluate_NotInViolatedWhenPresent(t *testing.T) {
	p := params(t, map[string]interface{}{"currency": "XMR"})
	r := Evaluate(p, "currency", policy.Constraint{
		HasNotIn: true,
		NotIn:    []action.Value{action.String("XMR")},
	})
	if r.Satisfied {
		t.Error("expected violation for blacklisted value")
	}
}

func TestEvaluate_PatternPartialMatch(t *testing.T) {
	p := params(t, map[string]interface{}{"note": "contains FOO inside"})
	r := Evaluate(p, "note", policy.Constraint{HasPattern: true, Pattern: regexp.MustCompile("FOO")})
	if !r.Satisfied {
		t.Errorf("expected partial match to satisfy, got %s", r.Reason)
	}
}

func TestEvaluate_TypeMismatchIsViolation(t *testing.T) {
	p := params(t, map[string]interface{}{"amount": "not-a-number"})
	r := Evaluate(p, "amount", policy.Constraint{HasMin: true, Min: 1})
	if r.Satisfied {
		t.Error("expected type mismatch to violate, not error")
	}
}

func TestEvaluate_NestedPath(t *testing.T) {
	p := params(t, map[string]interface{}{
		"recipient": map[string]interface{}{"country": "US"},
	})
	r := Evaluate(p, "recipient.country", policy.Constraint{
		HasEquals: true,
		Equals:    action.String("US"),
	})
	if !r.Satisfied {
		t.Errorf("expected satisfied, got %s", r.Reason)
	}
}

func TestEvaluate_ArrayIndexPath(t *testing.T) {
	p := params(t, map[string]interface{}{
		"items": []interface{}{"a", "b"},
	})
	r := Evaluate(p, "items.1", policy.Constraint{
		HasEquals: true,
		Equals:    action.String("b"),
	})
	if !r.Satisfied {
		t.Errorf("expected satisfied, got %s", r.Reason)
	}
}
