// Package policy implements the Policy Model (C1): an in-memory typed
// representation of a policy document, parsed and validated from an
// opaque rule object, plus action-type matching.
package policy

import (
	"regexp"

	"github.com/actionguard/gateway/internal/action"
)

// Effect is the verdict a Rule or a Policy's default produces absent any
// other blocking condition.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectBlock Effect = "block"
)

// Policy is a named, versioned, ordered sequence of rules plus a default
// effect applied when no rule matches.
type Policy struct {
	Name    string
	Version string
	Default Effect
	Rules   []Rule
}

// Rule scopes a set of constraints and quotas to an action type and an
// optional agent allow/block list.
type Rule struct {
	ActionType     string
	Effect         Effect
	Constraints    map[string]Constraint
	AllowedAgents  []string // nil means "no gate"
	BlockedAgents  []string // nil means "no bar"
	RateLimit      *RateLimit
	AggregateLimit *AggregateLimit

	// declIndex preserves declaration order for tie-breaking after the
	// literal-before-wildcard reordering in Match.
	declIndex int
}

// Constraint is a tagged variant over the six predicate kinds. Multiple
// compatible tags (e.g. Min+Max) may be set on a single entry.
type Constraint struct {
	HasMin bool
	Min    float64

	HasMax bool
	Max    float64

	HasIn bool
	In    []action.Value

	HasNotIn bool
	NotIn    []action.Value

	HasEquals bool
	Equals    action.Value

	HasPattern bool
	PatternSrc string
	Pattern    *regexp.Regexp
}

// RateLimit caps the number of requests admitted for a
// (project, agent, action_type) tuple within a rolling window.
type RateLimit struct {
	MaxRequests   int
	WindowSeconds int
}

// AggregateLimit caps the rolling sum of a numeric parameter field across
// allowed events for a (project, rule) tuple.
type AggregateLimit struct {
	Field         string
	Max           float64
	WindowSeconds int
}

// WildcardActionType is the rule action_type value that matches any
// action.
const WildcardActionType = "*"

// WildcardAgent is the blocked_agents entry meaning "all agents" (the
// documented escape hatch for disabling a rule's scope entirely).
const WildcardAgent = "*"
