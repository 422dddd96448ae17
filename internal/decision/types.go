// Package decision implements the Decision Pipeline (C5): the orchestrator
// that fetches a project's policy (through a cache), runs it through the
// Rule Matcher and Quota Engine, applies fail-closed handling, and emits
// an audit entry for every non-simulated call.
package decision

import "time"

// Decision is the immutable result of a Decide call.
type Decision struct {
	Allowed       bool      `json:"allowed"`
	ActionID      string    `json:"action_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Reason        string    `json:"reason,omitempty"`
	PolicyVersion string    `json:"policy_version,omitempty"`
	ExecutionMs   float64   `json:"execution_time_ms"`
	Simulated     bool      `json:"simulated"`
}

// Options controls a single Decide call.
type Options struct {
	Simulate bool
}
