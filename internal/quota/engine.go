package quota

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/actionguard/gateway/internal/action"
	"github.com/actionguard/gateway/internal/policy"
)

// Engine evaluates a matched Rule's rate and aggregate limits against a
// shared CounterStore: the request rate limit is checked first, then the
// aggregate limit, with the request counter's increment rolled back if
// the aggregate limit refuses.
type Engine struct {
	store CounterStore
}

// NewEngine constructs a quota Engine over store.
func NewEngine(store CounterStore) *Engine {
	return &Engine{store: store}
}

// Verdict is the outcome of a quota check.
type Verdict struct {
	Admitted bool
	Reason   string
}

// Check runs the rate limit (if any) and then the aggregate limit (if
// any) for a rule matched by act, in that order, rolling back the rate
// limit's increment if the aggregate limit refuses.
//
// When commit is false the check still runs against live counter state,
// so a simulated call against an already-exhausted quota correctly
// reports admitted=false, but any increment it made along the way is
// rolled back before returning, leaving the backend exactly as it found
// it.
func (e *Engine) Check(ctx context.Context, projectID string, act action.Action, rule *policy.Rule, now time.Time, commit bool) (Verdict, error) {
	var requestKey string
	var requestRecorded bool
	var aggKey string
	var aggRecorded bool

	rollbackAll := func() {
		if aggRecorded {
			_ = e.store.Rollback(ctx, aggKey, now)
		}
		if requestRecorded {
			_ = e.store.Rollback(ctx, requestKey, now)
		}
	}

	if rule.RateLimit != nil {
		requestKey = requestCounterKey(projectID, act.AgentName, act.ActionType)
		admitted, current, err := e.store.TryConsume(ctx, requestKey,
			rule.RateLimit.MaxRequests, time.Duration(rule.RateLimit.WindowSeconds)*time.Second, now)
		if err != nil {
			return Verdict{}, fmt.Errorf("request counter: %w", err)
		}
		if !admitted {
			return Verdict{
				Admitted: false,
				Reason: fmt.Sprintf("rate limit exceeded (%d/%d in last %ds)",
					int(current), rule.RateLimit.MaxRequests, rule.RateLimit.WindowSeconds),
			}, nil
		}
		requestRecorded = true
	}

	if rule.AggregateLimit != nil {
		value := extractAggregateValue(act.Params, rule.AggregateLimit.Field)
		aggKey = aggregateCounterKey(projectID, ruleIdentity(rule))
		admitted, current, err := e.store.TryAdd(ctx, aggKey,
			value, rule.AggregateLimit.Max, time.Duration(rule.AggregateLimit.WindowSeconds)*time.Second, now)
		if err != nil {
			if requestRecorded {
				_ = e.store.Rollback(ctx, requestKey, now)
			}
			return Verdict{}, fmt.Errorf("aggregate counter: %w", err)
		}
		if !admitted {
			if requestRecorded {
				if rbErr := e.store.Rollback(ctx, requestKey, now); rbErr != nil {
					return Verdict{}, fmt.Errorf("aggregate limit refused and rollback failed: %w", rbErr)
				}
			}
			return Verdict{
				Admitted: false,
				Reason: fmt.Sprintf("aggregate limit exceeded (current+value %g > max %g over last %ds)",
					current+value, rule.AggregateLimit.Max, rule.AggregateLimit.WindowSeconds),
			}, nil
		}
		aggRecorded = true
	}

	if !commit {
		rollbackAll()
	}

	return Verdict{Admitted: true}, nil
}

// extractAggregateValue resolves field against params, treating any
// extraction failure (absent path, non-numeric value) as 0 so an
// aggregate rule never blocks on an action whose value it cannot state.
func extractAggregateValue(params action.Value, field string) float64 {
	v, ok := action.Resolve(params, field)
	if !ok {
		return 0
	}
	n, ok := v.AsNumber()
	if !ok {
		return 0
	}
	return n
}

func requestCounterKey(projectID, agentName, actionType string) string {
	return strings.Join([]string{"req", projectID, agentName, actionType}, "|")
}

func aggregateCounterKey(projectID, ruleID string) string {
	return strings.Join([]string{"agg", projectID, ruleID}, "|")
}

// ruleIdentity derives a stable identity for a rule's aggregate counter.
// Rules have no explicit ID in the policy model, so identity is derived
// from the fields that make a rule's aggregate scope unique.
func ruleIdentity(rule *policy.Rule) string {
	field := ""
	if rule.AggregateLimit != nil {
		field = rule.AggregateLimit.Field
	}
	return fmt.Sprintf("%s|%s", rule.ActionType, field)
}
