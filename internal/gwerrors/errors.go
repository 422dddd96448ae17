// Package gwerrors defines the error taxonomy the decision pipeline and
// its collaborators use to distinguish policy outcomes from faults.
package gwerrors

import (
	"errors"
	"fmt"
)

// PolicyMalformed is returned by policy loading when a raw policy
// document fails validation. It never occurs on the Decide path.
type PolicyMalformed struct {
	Reason string
}

func (e *PolicyMalformed) Error() string {
	return fmt.Sprintf("policy malformed: %s", e.Reason)
}

// NewPolicyMalformed builds a PolicyMalformed with a formatted reason.
func NewPolicyMalformed(format string, args ...interface{}) error {
	return &PolicyMalformed{Reason: fmt.Sprintf(format, args...)}
}

// InfraFault wraps a failure in a collaborator (PolicyStore, CounterStore,
// AuditSink) or a deadline exceeded while waiting on one. It is the only
// error kind that propagates out of Decide, and only when fail-closed
// handling is disabled.
type InfraFault struct {
	Component string
	Err       error
}

func (e *InfraFault) Error() string {
	return fmt.Sprintf("infra fault (%s): %v", e.Component, e.Err)
}

func (e *InfraFault) Unwrap() error { return e.Err }

// NewInfraFault wraps err as an InfraFault attributed to component.
func NewInfraFault(component string, err error) error {
	if err == nil {
		return nil
	}
	return &InfraFault{Component: component, Err: err}
}

// DeadlineExceeded marks an InfraFault that originated from a context
// deadline rather than a collaborator-reported error.
func DeadlineExceeded(component string) error {
	return NewInfraFault(component, errors.New("deadline exceeded"))
}

// Internal marks an engine invariant violation. It is never silently
// swallowed; callers surface it as an InfraFault with distinct logging.
type Internal struct {
	Reason string
}

func (e *Internal) Error() string {
	return fmt.Sprintf("internal invariant violation: %s", e.Reason)
}

// NewInternal builds an Internal error and wraps it as an InfraFault so
// IsInfraFault reports it like any other fault. The Decision Pipeline
// returns it to the caller directly; fail-closed handling does not turn
// it into a blocked Decision.
func NewInternal(format string, args ...interface{}) error {
	return NewInfraFault("engine", &Internal{Reason: fmt.Sprintf(format, args...)})
}

// IsInfraFault reports whether err is (or wraps) an InfraFault.
func IsInfraFault(err error) bool {
	var f *InfraFault
	return errors.As(err, &f)
}

// IsPolicyMalformed reports whether err is (or wraps) a PolicyMalformed.
func IsPolicyMalformed(err error) bool {
	var m *PolicyMalformed
	return errors.As(err, &m)
}
