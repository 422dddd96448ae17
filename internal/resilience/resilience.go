// Package resilience wraps the Decision Pipeline's calls to PolicyStore
// and CounterStore with a circuit breaker, bounded retry, and a rate
// limiter (audit writes go through audit.Writer and are not wrapped), so
// a struggling infrastructure dependency degrades predictably instead of
// piling up latency on the Decide hot path.
package resilience

import (
	"context"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/actionguard/gateway/internal/gwerrors"
)

// Wrapper guards calls to a named infrastructure component.
type Wrapper struct {
	component string
	cb        *gobreaker.CircuitBreaker
	limiter   *rate.Limiter
	attempts  uint
}

// Config configures a Wrapper.
type Config struct {
	Component           string
	MaxRequestsPerSec    float64
	Burst                int
	ConsecutiveFailures  uint32
	OpenTimeout          time.Duration
	RetryAttempts        uint
}

// DefaultConfig returns sensible defaults for a given component name.
func DefaultConfig(component string) Config {
	return Config{
		Component:           component,
		MaxRequestsPerSec:   200,
		Burst:               50,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		RetryAttempts:       3,
	}
}

// New constructs a Wrapper from cfg.
func New(cfg Config) *Wrapper {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     cfg.Component,
		Timeout:  cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > cfg.ConsecutiveFailures
		},
	})

	return &Wrapper{
		component: cfg.Component,
		cb:        cb,
		limiter:   rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSec), cfg.Burst),
		attempts:  cfg.RetryAttempts,
	}
}

// Do runs fn under the rate limiter, circuit breaker, and bounded retry,
// wrapping any surviving failure as a gwerrors.InfraFault attributed to
// this Wrapper's component.
func (w *Wrapper) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := w.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return gwerrors.DeadlineExceeded(w.component)
		}
		return gwerrors.NewInfraFault(w.component, err)
	}

	_, err := w.cb.Execute(func() (interface{}, error) {
		return nil, retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
		).Do(func() error { return fn(ctx) })
	})

	if err != nil {
		if ctx.Err() != nil {
			return gwerrors.DeadlineExceeded(w.component)
		}
		return gwerrors.NewInfraFault(w.component, err)
	}
	return nil
}
