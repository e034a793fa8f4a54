// Package shared contains the error taxonomy and event contracts used across
// all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "profile", "leaderboard", "course"
	Op      string // Operation that failed, e.g., "Create", "Update"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
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

// Profile domain errors
var (
	ErrProfileNotFound      = NewDomainError("profile", "Find", ErrNotFound, "profile not found")
	ErrProfileAlreadyExists = NewDomainError("profile", "Create", ErrAlreadyExists, "profile already exists")
	ErrInvalidUserID        = NewDomainError("profile", "Validate", ErrInvalidID, "invalid user ID")
	ErrInvalidDisplayName   = NewDomainError("profile", "Validate", ErrInvalidInput, "invalid display name")
	ErrPointsMismatch       = NewDomainError("profile", "Toggle", ErrInvalidInput, "chapter points do not match the catalog")
)

// Course catalog errors
var (
	ErrModuleNotFound  = NewDomainError("course", "FindModule", ErrNotFound, "module not found")
	ErrChapterNotFound = NewDomainError("course", "FindChapter", ErrNotFound, "chapter not found")
	ErrInvalidCatalog  = NewDomainError("course", "Load", ErrInvalidFormat, "invalid course catalog")
)

// Leaderboard domain errors
var (
	ErrInvalidLimit       = NewDomainError("leaderboard", "Validate", ErrValueOutOfRange, "invalid leaderboard limit")
	ErrLeaderboardEmpty   = NewDomainError("leaderboard", "List", ErrNotFound, "leaderboard has not been loaded yet")
	ErrLeaderboardRefresh = NewDomainError("leaderboard", "Refresh", ErrServiceUnavailable, "leaderboard refresh failed")
)

// Early access errors
var (
	ErrAlreadyRegistered = NewDomainError("early_access", "Join", ErrAlreadyExists, "this email is already registered for early access")
	ErrInvalidEmail      = NewDomainError("early_access", "Validate", ErrInvalidInput, "invalid email")
)

// External service errors
var (
	ErrRecommenderUnavailable = NewDomainError("recommender", "Request", ErrServiceUnavailable, "recommendation service is unavailable")
	ErrRecommenderResponse    = NewDomainError("recommender", "Parse", ErrInvalidFormat, "invalid response from recommendation service")
	ErrAssistantUnavailable   = NewDomainError("assistant", "Request", ErrServiceUnavailable, "chat assistant is unavailable")
	ErrAssistantNoCredential  = NewDomainError("assistant", "Request", ErrUnauthorized, "chat assistant key is not configured")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsUnauthorized checks if the error is an authentication/authorization error.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}
