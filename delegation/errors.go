package delegation

import (
	"errors"
	"fmt"
)

// Sentinel errors for delegation.
var (
	ErrForbidden      = errors.New("delegation: access denied")
	ErrModuleNotFound = errors.New("delegation: module not found")
	ErrNotInitialized = errors.New("delegation: module not initialized")

	// ErrNoAuthMethod indicates a module has neither token exchange nor
	// a static credential configured; no backend call is attempted.
	ErrNoAuthMethod = errors.New("delegation: no authentication method configured")
)

// AuthorizationError reports an insufficient role or command tier.
// The message is descriptive but never carries secrets.
type AuthorizationError struct {
	Subject  string
	Action   string
	Required string
	Reason   string
}

// Error returns the denial message.
func (e *AuthorizationError) Error() string {
	if e.Required != "" {
		return fmt.Sprintf("authorization denied: action %q requires %s: %s", e.Action, e.Required, e.Reason)
	}
	return fmt.Sprintf("authorization denied: action %q: %s", e.Action, e.Reason)
}

// Is reports whether this error matches ErrForbidden.
func (e *AuthorizationError) Is(target error) bool {
	return target == ErrForbidden
}

// ValidationError reports a malformed or disallowed operation, such as
// an unknown SQL keyword or a path traversal attempt.
type ValidationError struct {
	Reason string
}

// Error returns the validation message.
func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// BackendError reports a network, timeout, or non-success outcome from
// the downstream system.
type BackendError struct {
	Module string
	Status int
	Cause  error
}

// Error returns the backend failure message.
func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("backend %s returned status %d", e.Module, e.Status)
	}
	return fmt.Sprintf("backend %s call failed: %v", e.Module, e.Cause)
}

// Unwrap returns the cause error for errors.Is/As support.
func (e *BackendError) Unwrap() error {
	return e.Cause
}
