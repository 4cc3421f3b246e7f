package engram

import (
	"errors"
	"fmt"
)

// Sentinel errors for API failures. Use errors.Is() to check.
var (
	// ErrValidation signals a malformed request (bad scope, empty text).
	ErrValidation = errors.New("validation failed")
	// ErrPolicyViolation signals a write rejected by the secret scanner.
	ErrPolicyViolation = errors.New("policy violation")
	// ErrNotFound signals a missing event.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable signals a store or encoder failure behind the service.
	ErrUnavailable = errors.New("service unavailable")
	// ErrUnauthorized signals a missing or invalid API key.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError carries the full error response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	// Detector names the policy detector that rejected a write, when set.
	Detector string
}

func (e *APIError) Error() string {
	if e.Detector != "" {
		return fmt.Sprintf("engram: %s (%s, detector %s)", e.Message, e.Code, e.Detector)
	}
	return fmt.Sprintf("engram: %s (%s)", e.Message, e.Code)
}

// Unwrap maps the response code to a sentinel error.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "validation_failed", "bad_request":
		return ErrValidation
	case "policy_violation":
		return ErrPolicyViolation
	case "not_found":
		return ErrNotFound
	case "backend_unavailable", "encoder_unavailable":
		return ErrUnavailable
	case "unauthorized":
		return ErrUnauthorized
	default:
		return nil
	}
}
