package decision

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/actionguard/gateway/internal/action"
	"github.com/actionguard/gateway/internal/audit"
	"github.com/actionguard/gateway/internal/gwerrors"
	"github.com/actionguard/gateway/internal/policy"
	"github.com/actionguard/gateway/internal/quota"
	"github.com/actionguard/gateway/internal/resilience"
	"github.com/actionguard/gateway/internal/rulematch"
	"github.com/actionguard/gateway/internal/store"
)

// emptyPolicy is substituted for an unconfigured project: no rules, so
// nothing ever matches, and a default of allow so an absent policy never
// blocks a caller that hasn't opted into the gateway yet.
var emptyPolicy = &policy.Policy{Name: "", Version: "unconfigured", Default: policy.EffectAllow}

// Config wires a Pipeline's collaborators and process-wide options.
type Config struct {
	Store       store.PolicyStore
	Quota       *quota.Engine
	AuditWriter *audit.Writer
	Clock       Clock

	PolicyCacheTTL time.Duration

	FailClosed       bool
	FailClosedReason string
}

// Pipeline is the Decision Pipeline (C5): the single Decide entry point
// that orchestrates policy fetch, rule matching, quota checks, and audit
// emission.
type Pipeline struct {
	store       store.PolicyStore
	quota       *quota.Engine
	auditWriter *audit.Writer
	clock       Clock
	cache       *PolicyCache

	storeGuard *resilience.Wrapper
	quotaGuard *resilience.Wrapper

	failClosed       bool
	failClosedReason string
}

const defaultFailClosedReason = "service unavailable (fail-closed)"

// NewPipeline constructs a Pipeline from cfg.
func NewPipeline(cfg Config) *Pipeline {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock{}
	}
	ttl := cfg.PolicyCacheTTL
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	reason := cfg.FailClosedReason
	if reason == "" {
		reason = defaultFailClosedReason
	}

	return &Pipeline{
		store:            cfg.Store,
		quota:            cfg.Quota,
		auditWriter:      cfg.AuditWriter,
		clock:            clock,
		cache:            NewPolicyCache(ttl),
		storeGuard:       resilience.New(resilience.DefaultConfig("policy_store")),
		quotaGuard:       resilience.New(resilience.DefaultConfig("counter_store")),
		failClosed:       cfg.FailClosed,
		failClosedReason: reason,
	}
}

// Decide fetches the project's policy, matches the action against it,
// applies quota gates, and (unless simulated) emits an audit entry. It
// never returns an error for a policy-level outcome; errors surfaced
// here are infrastructure faults that fail-closed handling did not
// absorb.
func (p *Pipeline) Decide(ctx context.Context, act action.Action, opts Options) (Decision, error) {
	start := time.Now()
	now := p.clock.Now()

	pol, err := p.fetchPolicy(ctx, act.ProjectID, now)
	if err != nil {
		return p.handleFault(start, "policy_store", err)
	}

	verdict := rulematch.Match(act, pol)

	var allowed bool
	var reason string

	switch verdict.Outcome {
	case rulematch.OutcomeBlock:
		allowed, reason = false, verdict.Reason
	case rulematch.OutcomeDefault:
		if verdict.Default == policy.EffectBlock {
			allowed, reason = false, "no matching rule; policy default is block"
		} else {
			allowed = true
		}
	case rulematch.OutcomeAllowPending:
		allowed = true
		if verdict.Rule.RateLimit != nil || verdict.Rule.AggregateLimit != nil {
			qv, qerr := p.checkQuota(ctx, act.ProjectID, act, verdict.Rule, now, !opts.Simulate)
			if qerr != nil {
				return p.handleFault(start, "counter_store", qerr)
			}
			if !qv.Admitted {
				allowed, reason = false, qv.Reason
			}
		}
	default:
		return Decision{}, gwerrors.NewInternal("unhandled rulematch outcome %v", verdict.Outcome)
	}

	d := Decision{
		Allowed:       allowed,
		Reason:        reason,
		PolicyVersion: pol.Version,
		Timestamp:     now,
		Simulated:     opts.Simulate,
	}

	if opts.Simulate {
		d.ExecutionMs = elapsedMs(start)
		return d, nil
	}

	d.ActionID = newActionID()
	d.ExecutionMs = elapsedMs(start)

	p.emitAudit(act, d)

	return d, nil
}

func (p *Pipeline) fetchPolicy(ctx context.Context, projectID string, now time.Time) (*policy.Policy, error) {
	if pol, ok := p.cache.Get(projectID, now); ok {
		return pol, nil
	}

	var pol *policy.Policy
	err := p.storeGuard.Do(ctx, func(ctx context.Context) error {
		fetched, err := p.store.Get(ctx, projectID)
		if errors.Is(err, store.ErrNotFound) {
			pol = emptyPolicy
			return nil
		}
		if err != nil {
			return err
		}
		pol = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.cache.Set(projectID, pol, now)
	return pol, nil
}

func (p *Pipeline) checkQuota(ctx context.Context, projectID string, act action.Action, rule *policy.Rule, now time.Time, commit bool) (quota.Verdict, error) {
	var v quota.Verdict
	err := p.quotaGuard.Do(ctx, func(ctx context.Context) error {
		result, err := p.quota.Check(ctx, projectID, act, rule, now, commit)
		if err != nil {
			return err
		}
		v = result
		return nil
	})
	return v, err
}

// handleFault turns an infrastructure fault into a blocked Decision when
// the pipeline is configured to fail closed; otherwise the fault
// propagates to the caller untranslated into a policy outcome.
func (p *Pipeline) handleFault(start time.Time, component string, err error) (Decision, error) {
	if !p.failClosed {
		return Decision{}, err
	}

	log.Error().Err(err).Str("component", component).Msg("infrastructure fault, failing closed")
	return Decision{
		Allowed:     false,
		Reason:      p.failClosedReason,
		Timestamp:   time.Now(),
		ExecutionMs: elapsedMs(start),
	}, nil
}

// emitAudit constructs an Entry from act and d and submits it to the
// writer. Submission is asynchronous and non-blocking; a full buffer
// drops the oldest entry rather than delaying this return.
func (p *Pipeline) emitAudit(act action.Action, d Decision) {
	if p.auditWriter == nil {
		return
	}

	paramsJSON, err := action.ParamsToJSON(act.Params)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode audit params, submitting empty object")
		paramsJSON = []byte("{}")
	}

	matchedEffect := "allow"
	if !d.Allowed {
		matchedEffect = "block"
	}

	p.auditWriter.Write(&audit.Entry{
		ActionID:      d.ActionID,
		Timestamp:     d.Timestamp,
		LatencyMs:     d.ExecutionMs,
		ProjectID:     act.ProjectID,
		AgentName:     act.AgentName,
		ActionType:    act.ActionType,
		Params:        string(paramsJSON),
		Allowed:       d.Allowed,
		Reason:        d.Reason,
		PolicyVersion: d.PolicyVersion,
		MatchedEffect: matchedEffect,
	})
}

// InvalidatePolicy drops projectID's cached policy, making a just-applied
// UpsertPolicy visible on the very next Decide call rather than after the
// cache TTL elapses.
func (p *Pipeline) InvalidatePolicy(projectID string) {
	p.cache.Invalidate(projectID)
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

func newActionID() string {
	return "act_" + uuid.NewString()
}
