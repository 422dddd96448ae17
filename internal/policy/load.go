package policy

import (
	"regexp"
	"regexp/syntax"

	"github.com/actionguard/gateway/internal/action"
	"github.com/actionguard/gateway/internal/gwerrors"
)

// RawPolicy is the loosely-typed shape a raw policy document decodes into
// (JSON or YAML, via encoding/json or yaml.v3 — both land on the same
// map[string]interface{}/[]interface{} tree through interface{} decoding).
type RawPolicy struct {
	Name    string                   `json:"name" yaml:"name"`
	Version string                   `json:"version" yaml:"version"`
	Default string                   `json:"default" yaml:"default"`
	Rules   []map[string]interface{} `json:"rules" yaml:"rules"`
}

// Load parses and validates a raw policy document, returning a
// *gwerrors.PolicyMalformed on any of the failure modes: negative limits,
// unknown constraint tags, a pattern that does not compile, a default
// outside {allow, block}, a non-string action_type, or rules not given as
// a sequence. Unknown top-level fields are tolerated.
func Load(raw *RawPolicy) (*Policy, error) {
	if raw == nil {
		return nil, gwerrors.NewPolicyMalformed("policy document is empty")
	}

	def, ok := effectFromString(raw.Default)
	if !ok {
		return nil, gwerrors.NewPolicyMalformed("default must be one of {allow, block}, got %q", raw.Default)
	}

	if raw.Rules == nil {
		return nil, gwerrors.NewPolicyMalformed("rules must be a sequence")
	}

	rules := make([]Rule, 0, len(raw.Rules))
	for i, rawRule := range raw.Rules {
		rule, err := loadRule(rawRule, i)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return &Policy{
		Name:    raw.Name,
		Version: raw.Version,
		Default: def,
		Rules:   rules,
	}, nil
}

func effectFromString(s string) (Effect, bool) {
	switch Effect(s) {
	case EffectAllow, EffectBlock:
		return Effect(s), true
	default:
		return "", false
	}
}

func loadRule(raw map[string]interface{}, index int) (Rule, error) {
	actionType, ok := raw["action_type"].(string)
	if !ok {
		return Rule{}, gwerrors.NewPolicyMalformed("rule[%d]: action_type must be a string", index)
	}
	if actionType == "" {
		return Rule{}, gwerrors.NewPolicyMalformed("rule[%d]: action_type must not be empty", index)
	}

	effect := EffectAllow
	if rawEffect, present := raw["effect"]; present {
		s, ok := rawEffect.(string)
		if !ok {
			return Rule{}, gwerrors.NewPolicyMalformed("rule[%d]: effect must be a string", index)
		}
		parsed, ok := effectFromString(s)
		if !ok {
			return Rule{}, gwerrors.NewPolicyMalformed("rule[%d]: effect must be one of {allow, block}, got %q", index, s)
		}
		effect = parsed
	}

	rule := Rule{
		ActionType: actionType,
		Effect:     effect,
		declIndex:  index,
	}

	if rawAllowed, present := raw["allowed_agents"]; present {
		agents, err := stringSlice(rawAllowed)
		if err != nil {
			return Rule{}, gwerrors.NewPolicyMalformed("rule[%d]: allowed_agents: %v", index, err)
		}
		rule.AllowedAgents = agents
	}

	if rawBlocked, present := raw["blocked_agents"]; present {
		agents, err := stringSlice(rawBlocked)
		if err != nil {
			return Rule{}, gwerrors.NewPolicyMalformed("rule[%d]: blocked_agents: %v", index, err)
		}
		rule.BlockedAgents = agents
	}

	if rawConstraints, present := raw["constraints"]; present {
		constraintMap, ok := rawConstraints.(map[string]interface{})
		if !ok {
			return Rule{}, gwerrors.NewPolicyMalformed("rule[%d]: constraints must be an object", index)
		}
		constraints := make(map[string]Constraint, len(constraintMap))
		for path, rawConstraint := range constraintMap {
			c, err := loadConstraint(rawConstraint)
			if err != nil {
				return Rule{}, gwerrors.NewPolicyMalformed("rule[%d]: constraint[%s]: %v", index, path, err)
			}
			constraints[path] = c
		}
		rule.Constraints = constraints
	}

	if rawLimit, present := raw["rate_limit"]; present {
		rl, err := loadRateLimit(rawLimit)
		if err != nil {
			return Rule{}, gwerrors.NewPolicyMalformed("rule[%d]: rate_limit: %v", index, err)
		}
		rule.RateLimit = rl
	}

	if rawAgg, present := raw["aggregate_limit"]; present {
		al, err := loadAggregateLimit(rawAgg)
		if err != nil {
			return Rule{}, gwerrors.NewPolicyMalformed("rule[%d]: aggregate_limit: %v", index, err)
		}
		rule.AggregateLimit = al
	}

	return rule, nil
}

var knownConstraintTags = map[string]bool{
	"min": true, "max": true, "in": true, "not_in": true,
	"equals": true, "pattern": true,
}

func loadConstraint(raw interface{}) (Constraint, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return Constraint{}, errNotObject
	}

	var c Constraint
	for tag, val := range m {
		if !knownConstraintTags[tag] {
			return Constraint{}, errUnknownTag(tag)
		}
		switch tag {
		case "min":
			n, ok := asFloat(val)
			if !ok {
				return Constraint{}, errNotNumber("min")
			}
			c.HasMin, c.Min = true, n
		case "max":
			n, ok := asFloat(val)
			if !ok {
				return Constraint{}, errNotNumber("max")
			}
			c.HasMax, c.Max = true, n
		case "in":
			items, ok := val.([]interface{})
			if !ok {
				return Constraint{}, errNotArray("in")
			}
			c.HasIn = true
			c.In = valueSlice(items)
		case "not_in":
			items, ok := val.([]interface{})
			if !ok {
				return Constraint{}, errNotArray("not_in")
			}
			c.HasNotIn = true
			c.NotIn = valueSlice(items)
		case "equals":
			c.HasEquals = true
			c.Equals = action.ValueFromJSON(val)
		case "pattern":
			s, ok := val.(string)
			if !ok {
				return Constraint{}, errNotString("pattern")
			}
			re, err := regexp.Compile(s)
			if err != nil {
				return Constraint{}, errPatternCompile(s, err)
			}
			if err := checkPatternCost(re); err != nil {
				return Constraint{}, err
			}
			c.HasPattern = true
			c.PatternSrc = s
			c.Pattern = re
		}
	}
	return c, nil
}

// maxPatternProgramSize bounds the compiled instruction count of a
// constraint pattern, rejecting absurdly expensive-to-run patterns at
// load time rather than letting them run unbounded at evaluation time.
const maxPatternProgramSize = 4096

func checkPatternCost(re *regexp.Regexp) error {
	if n := len(re.String()); n > 2048 {
		return errPatternTooExpensive(n)
	}
	parsed, err := syntax.Parse(re.String(), syntax.Perl)
	if err != nil {
		return errPatternCompile(re.String(), err)
	}
	prog, err := syntax.Compile(parsed.Simplify())
	if err != nil {
		return errPatternCompile(re.String(), err)
	}
	if n := len(prog.Inst); n > maxPatternProgramSize {
		return errPatternTooExpensive(n)
	}
	return nil
}

func loadRateLimit(raw interface{}) (*RateLimit, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errNotObject
	}
	max, ok := asFloat(m["max_requests"])
	if !ok {
		return nil, errNotNumber("max_requests")
	}
	window, ok := asFloat(m["window_seconds"])
	if !ok {
		return nil, errNotNumber("window_seconds")
	}
	if max < 0 {
		return nil, errNegative("max_requests")
	}
	if window < 0 {
		return nil, errNegative("window_seconds")
	}
	return &RateLimit{MaxRequests: int(max), WindowSeconds: int(window)}, nil
}

func loadAggregateLimit(raw interface{}) (*AggregateLimit, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errNotObject
	}
	field, ok := m["field"].(string)
	if !ok || field == "" {
		return nil, errNotString("field")
	}
	max, ok := asFloat(m["max"])
	if !ok {
		return nil, errNotNumber("max")
	}
	window, ok := asFloat(m["window_seconds"])
	if !ok {
		return nil, errNotNumber("window_seconds")
	}
	if max < 0 {
		return nil, errNegative("max")
	}
	if window < 0 {
		return nil, errNegative("window_seconds")
	}
	return &AggregateLimit{Field: field, Max: max, WindowSeconds: int(window)}, nil
}

func valueSlice(items []interface{}) []action.Value {
	out := make([]action.Value, len(items))
	for i, it := range items {
		out[i] = action.ValueFromJSON(it)
	}
	return out
}

func stringSlice(raw interface{}) ([]string, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, errNotArray("")
	}
	out := make([]string, len(items))
	for i, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, errNotString("")
		}
		out[i] = s
	}
	return out, nil
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
