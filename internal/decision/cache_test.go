package decision

import (
	"testing"
	"time"

	"github.com/actionguard/gateway/internal/policy"
)

func TestPolicyCache_MissThenHit(t *testing.T) {
	c := NewPolicyCache(time.Minute)
	now := time.Unix(1700000000, 0)

	if _, ok := c.Get("proj", now); ok {
		t.Fatalf("Get() on empty cache returned a hit")
	}

	p := &policy.Policy{Name: "p", Version: "v1", Default: policy.EffectAllow}
	c.Set("proj", p, now)

	got, ok := c.Get("proj", now.Add(30*time.Second))
	if !ok || got.Version != "v1" {
		t.Fatalf("Get() = %+v, %v, want a hit for v1", got, ok)
	}
}

func TestPolicyCache_ExpiresAfterTTL(t *testing.T) {
	c := NewPolicyCache(time.Minute)
	now := time.Unix(1700000000, 0)

	c.Set("proj", &policy.Policy{Version: "v1"}, now)

	if _, ok := c.Get("proj", now.Add(2*time.Minute)); ok {
		t.Fatalf("Get() past TTL returned a hit, want a miss")
	}
}

func TestPolicyCache_Invalidate(t *testing.T) {
	c := NewPolicyCache(time.Minute)
	now := time.Unix(1700000000, 0)

	c.Set("proj", &policy.Policy{Version: "v1"}, now)
	c.Invalidate("proj")

	if _, ok := c.Get("proj", now); ok {
		t.Fatalf("Get() after Invalidate returned a hit, want a miss")
	}
}

func TestPolicyCache_ZeroTTLDisablesCache(t *testing.T) {
	c := NewPolicyCache(0)
	now := time.Unix(1700000000, 0)

	c.Set("proj", &policy.Policy{Version: "v1"}, now)
	if _, ok := c.Get("proj", now); ok {
		t.Fatalf("Get() with zero TTL returned a hit, want always-miss")
	}
}
