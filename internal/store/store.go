// Package store implements the PolicyStore boundary: durable storage of
// the single active policy document per project, with prior versions
// archived rather than overwritten in place.
package store

import (
	"context"
	"errors"

	"github.com/actionguard/gateway/internal/policy"
)

// ErrNotFound is returned by Get when no policy exists for a project.
// The Decision Pipeline treats this as an empty policy with
// default=allow rather than surfacing it as a fault.
var ErrNotFound = errors.New("policy: not found")

// Record pairs a stored Policy with the raw document it was parsed from,
// so PolicyStore implementations can archive exactly what was written.
type Record struct {
	ProjectID string
	Raw       *policy.RawPolicy
	Policy    *policy.Policy
}

// PolicyStore is the durable backing store for per-project active
// policies, behind one interface shared by memory, SQLite, and Postgres
// implementations.
type PolicyStore interface {
	// Get returns the active policy for projectID, or ErrNotFound.
	Get(ctx context.Context, projectID string) (*policy.Policy, error)

	// Put replaces the active policy for projectID, archiving whatever
	// was previously active. It is atomic with respect to concurrent
	// Get/Put calls on the same project.
	Put(ctx context.Context, projectID string, raw *policy.RawPolicy) (*policy.Policy, error)

	// History returns archived (non-active) policies for projectID, most
	// recent first.
	History(ctx context.Context, projectID string, limit int) ([]*policy.Policy, error)

	Ping(ctx context.Context) error
	Close() error
}
