// Package constraint evaluates a single (path, Constraint) tuple against
// an action's params tree (C2).
package constraint

import (
	"fmt"
	"math"

	"github.com/actionguard/gateway/internal/action"
	"github.com/actionguard/gateway/internal/policy"
)

// Result is the outcome of evaluating one constraint.
type Result struct {
	Satisfied bool
	Reason    string
}

func satisfied() Result { return Result{Satisfied: true} }

func violation(path, tag string, observed action.Value) Result {
	return Result{
		Satisfied: false,
		Reason:    fmt.Sprintf("constraint %q on path %q violated (observed %s)", tag, path, describe(observed)),
	}
}

func absentViolation(path, tag string) Result {
	return Result{
		Satisfied: false,
		Reason:    fmt.Sprintf("constraint %q on path %q violated (path absent)", tag, path),
	}
}

func describe(v action.Value) string {
	switch v.Kind() {
	case action.KindNull:
		return "null"
	case action.KindBool:
		b, _ := v.AsBool()
		return fmt.Sprintf("%v", b)
	case action.KindNumber:
		n, _ := v.AsNumber()
		return fmt.Sprintf("%v", n)
	case action.KindString:
		s, _ := v.AsString()
		return fmt.Sprintf("%q", s)
	case action.KindArray:
		return "array"
	case action.KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Evaluate checks constraint against the value at path in params, applying
// the per-tag PathAbsent rule: absence is a violation for min, max,
// pattern, equals, and in, but vacuously satisfied for not_in. When a
// Constraint carries multiple tags, all must be satisfied.
func Evaluate(params action.Value, path string, c policy.Constraint) Result {
	resolved, present := action.Resolve(params, path)

	if c.HasNotIn {
		if !present {
			// absence cannot be in the blacklist
		} else if matchesAny(resolved, c.NotIn) {
			return violation(path, "not_in", resolved)
		}
	}

	if !present {
		if c.HasMin {
			return absentViolation(path, "min")
		}
		if c.HasMax {
			return absentViolation(path, "max")
		}
		if c.HasPattern {
			return absentViolation(path, "pattern")
		}
		if c.HasEquals {
			return absentViolation(path, "equals")
		}
		if c.HasIn {
			return absentViolation(path, "in")
		}
		return satisfied()
	}

	if c.HasMin {
		n, ok := resolved.AsNumber()
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) || n < c.Min {
			return violation(path, "min", resolved)
		}
	}

	if c.HasMax {
		n, ok := resolved.AsNumber()
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) || n > c.Max {
			return violation(path, "max", resolved)
		}
	}

	if c.HasIn {
		if !matchesAny(resolved, c.In) {
			return violation(path, "in", resolved)
		}
	}

	if c.HasEquals {
		if !resolved.Equal(c.Equals) {
			return violation(path, "equals", resolved)
		}
	}

	if c.HasPattern {
		s, ok := resolved.AsString()
		if !ok || !c.Pattern.MatchString(s) {
			return violation(path, "pattern", resolved)
		}
	}

	return satisfied()
}

func matchesAny(v action.Value, candidates []action.Value) bool {
	for _, c := range candidates {
		if v.Equal(c) {
			return true
		}
	}
	return false
}
