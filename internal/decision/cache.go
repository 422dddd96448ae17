package decision

import (
	"sync"
	"time"

	"github.com/actionguard/gateway/internal/policy"
)

// PolicyCache holds the most recently fetched policy per project, with a
// TTL after which the next Decide call refetches from the PolicyStore.
// Updates to a project's policy invalidate its entry immediately so a
// Decide call never observes a stale cached version past an explicit
// UpsertPolicy.
type PolicyCache struct {
	ttl     time.Duration
	entries sync.Map // project_id -> *cacheEntry
}

type cacheEntry struct {
	policy    *policy.Policy
	fetchedAt time.Time
}

// NewPolicyCache constructs a cache with the given TTL. A zero or
// negative TTL disables caching: every Get reports a miss.
func NewPolicyCache(ttl time.Duration) *PolicyCache {
	return &PolicyCache{ttl: ttl}
}

// Get returns the cached policy for projectID if present and not expired.
func (c *PolicyCache) Get(projectID string, now time.Time) (*policy.Policy, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	v, ok := c.entries.Load(projectID)
	if !ok {
		return nil, false
	}
	e := v.(*cacheEntry)
	if now.Sub(e.fetchedAt) > c.ttl {
		return nil, false
	}
	return e.policy, true
}

// Set installs p as the cached policy for projectID, replacing any
// existing entry as a single atomic swap.
func (c *PolicyCache) Set(projectID string, p *policy.Policy, now time.Time) {
	c.entries.Store(projectID, &cacheEntry{policy: p, fetchedAt: now})
}

// Invalidate removes projectID's cached entry, forcing the next Get to
// miss. Called after UpsertPolicy so updates are visible immediately
// rather than waiting out the TTL.
func (c *PolicyCache) Invalidate(projectID string) {
	c.entries.Delete(projectID)
}
