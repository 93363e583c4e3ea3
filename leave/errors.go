/*
errors.go - Error taxonomy for the leave lifecycle engine

CATEGORIES:
  ErrValidation      malformed or missing input; human-readable reason
  ErrPolicyViolation balance insufficient, notice too short, caps exceeded
  ErrUnauthorized    actor lacks the capability for this transition
  ErrConflict        stale version / concurrent transition; retryable
  ErrNotFound        unknown request or entity; terminal

USAGE:
  Match with errors.Is/As. Structured types carry the details callers
  surface to humans:

    if errors.Is(err, leave.ErrPolicyViolation) { ... 422 ... }

SEE ALSO:
  - ledger: InsufficientBalanceError is wrapped into ErrPolicyViolation
  - policy: ViolationError is wrapped into ErrPolicyViolation
*/
package leave

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	ErrValidation      = errors.New("validation error")
	ErrPolicyViolation = errors.New("policy violation")
	ErrUnauthorized    = errors.New("actor unauthorized")
	ErrConflict        = errors.New("concurrent transition conflict")
	ErrNotFound        = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the malformed or missing input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError reports an action not permitted from the current status.
type TransitionError struct {
	Action Action
	From   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a request in status %q", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrValidation }

// PolicyViolationError names the unmet policy precondition.
type PolicyViolationError struct {
	Code    string
	Message string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PolicyViolationError) Unwrap() error { return ErrPolicyViolation }

// AuthorizationError reports the missing capability.
type AuthorizationError struct {
	ActorID string
	Action  Action
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %s may not %s this request", e.ActorID, e.Action)
}

func (e *AuthorizationError) Unwrap() error { return ErrUnauthorized }

// =============================================================================
// HELPERS
// =============================================================================

// IsRetryable reports whether re-reading current state and retrying might
// succeed.
func IsRetryable(err error) bool { return errors.Is(err, ErrConflict) }

// IsClientError reports whether the error is the caller's fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrPolicyViolation) ||
		errors.Is(err, ErrUnauthorized)
}

// IsNotFound reports whether the error indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
