// Package shared contains common domain types and errors that are used across
// all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Every user-facing failure of a core operation is one of these
// and can be checked with errors.Is().
var (
	// Entity errors
	ErrNotFound            = errors.New("entity not found")
	ErrConstraintViolation = errors.New("constraint violation")

	// Validation errors
	ErrValidation = errors.New("validation error")

	// Phase errors
	ErrInvalidPhaseTransition = errors.New("operation not allowed in current olymp phase")

	// Queue errors
	ErrAlreadyQueued      = errors.New("participant already has an active queue entry")
	ErrNotQueued          = errors.New("participant has no active queue entry")
	ErrAlreadyAssigned    = errors.New("already assigned")
	ErrNotAssigned        = errors.New("examiner has no discussing entry")
	ErrAlreadyBusy        = errors.New("examiner is already busy")
	ErrAlreadyFree        = errors.New("examiner is already free")
	ErrNoAttemptsLeft     = errors.New("no attempts left for problem")
	ErrAlreadySolved      = errors.New("problem already solved")
	ErrProblemNotUnlocked = errors.New("problem is not unlocked")

	// Identity errors
	ErrMergeRequired = errors.New("user merge requires confirmation")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "olymp", "queue", "member"
	Op      string // Operation that failed, e.g., "Join", "Assign"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message, shown to bot users as is
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// ProblemNumberOutOfRange is the ProblemNotUnlocked flavour returned when a
// problem number points outside the blocks a participant has.
var ErrProblemNumberOutOfRange = NewDomainError("problem", "Locate", ErrProblemNotUnlocked, "Задача недоступна")

// userFacingKinds lists every kind that is reported to the bot user verbatim.
var userFacingKinds = []error{
	ErrNotFound,
	ErrConstraintViolation,
	ErrValidation,
	ErrInvalidPhaseTransition,
	ErrAlreadyQueued,
	ErrNotQueued,
	ErrAlreadyAssigned,
	ErrNotAssigned,
	ErrAlreadyBusy,
	ErrAlreadyFree,
	ErrNoAttemptsLeft,
	ErrAlreadySolved,
	ErrProblemNotUnlocked,
	ErrMergeRequired,
}

// IsUserFacing reports whether err belongs to the domain taxonomy, as opposed
// to an infrastructure failure that only the operator should see.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	for _, kind := range userFacingKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// UserMessage returns the message to show to a bot user for a domain error.
// Falls back to the kind text when the error carries no message.
func UserMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConstraintViolation checks if the error is a uniqueness or integrity failure.
func IsConstraintViolation(err error) bool {
	return errors.Is(err, ErrConstraintViolation)
}
