// Package domain holds domain-wide contracts and the error taxonomy.
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals a malformed event or request (bad scope, empty text).
	ErrValidation = errors.New("validation failed")
	// ErrPolicyViolation signals a write blocked by the policy enforcer.
	ErrPolicyViolation = errors.New("policy violation")
	// ErrNotFound signals a missing event.
	ErrNotFound = errors.New("not found")
	// ErrBackendUnavailable signals a failed or timed-out store call.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrEncoderUnavailable signals an encoder gateway failure or an open circuit breaker.
	ErrEncoderUnavailable = errors.New("encoder unavailable")
)

// PolicyViolationError wraps ErrPolicyViolation with the detector that fired.
type PolicyViolationError struct {
	Detector string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("%s: secret-shaped content (%s)", ErrPolicyViolation.Error(), e.Detector)
}

func (e *PolicyViolationError) Unwrap() error { return ErrPolicyViolation }

// NewPolicyViolation creates a policy violation error for the named detector.
func NewPolicyViolation(detector string) error {
	return &PolicyViolationError{Detector: detector}
}
