// Package rulematch implements the Rule Matcher (C3): combining C1's
// candidate ordering with C2's constraint evaluation and the
// allowed/blocked agent gate-vs-bar asymmetry.
package rulematch

import (
	"fmt"
	"sort"

	"github.com/actionguard/gateway/internal/action"
	"github.com/actionguard/gateway/internal/constraint"
	"github.com/actionguard/gateway/internal/policy"
)

// Outcome tags the Verdict variant.
type Outcome int

const (
	OutcomeAllowPending Outcome = iota
	OutcomeBlock
	OutcomeDefault
)

// Verdict is the result of matching an Action against a Policy.
type Verdict struct {
	Outcome Outcome
	Reason  string
	Rule    *policy.Rule // set iff Outcome == OutcomeAllowPending
	Default policy.Effect
}

// Match walks the policy's ordered candidates for action.ActionType,
// applying the agent gate/bar and constraint checks in order,
// short-circuiting on the first violation.
func Match(act action.Action, p *policy.Policy) Verdict {
	candidates := p.Match(act.ActionType)

	for i := range candidates {
		rule := candidates[i]

		if len(rule.AllowedAgents) > 0 && !contains(rule.AllowedAgents, act.AgentName) {
			continue
		}

		if blockedByBar(rule.BlockedAgents, act.AgentName) {
			return Verdict{
				Outcome: OutcomeBlock,
				Reason:  fmt.Sprintf("agent %s is blocked for action %s", act.AgentName, act.ActionType),
			}
		}

		if v, blocked := evaluateConstraints(act, rule); blocked {
			return v
		}

		if rule.Effect == policy.EffectBlock {
			return Verdict{
				Outcome: OutcomeBlock,
				Reason:  fmt.Sprintf("rule for action %s has effect=block", act.ActionType),
			}
		}

		r := rule
		return Verdict{Outcome: OutcomeAllowPending, Rule: &r}
	}

	return Verdict{Outcome: OutcomeDefault, Default: p.Default}
}

func blockedByBar(blockedAgents []string, agentName string) bool {
	for _, a := range blockedAgents {
		if a == policy.WildcardAgent || a == agentName {
			return true
		}
	}
	return false
}

// evaluateConstraints checks rule.Constraints in a fixed, path-sorted
// order rather than map iteration order, so the reported Reason for a
// rule with multiple failing constraints is deterministic across runs.
func evaluateConstraints(act action.Action, rule policy.Rule) (Verdict, bool) {
	paths := make([]string, 0, len(rule.Constraints))
	for path := range rule.Constraints {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		result := constraint.Evaluate(act.Params, path, rule.Constraints[path])
		if !result.Satisfied {
			return Verdict{Outcome: OutcomeBlock, Reason: result.Reason}, true
		}
	}
	return Verdict{}, false
}

func contains(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}
