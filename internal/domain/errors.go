// Package domain contains the entity model and domain errors used throughout flocksync.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrNotFound           = errors.New("not found")
	ErrUnknownEntity      = errors.New("unknown entity type")
	ErrUnsupportedVerb    = errors.New("verb not supported for entity type")
	ErrInvalidCommand     = errors.New("invalid command")
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailInUse         = errors.New("email address is already in use")
	ErrWeakPassword       = errors.New("password should be at least 6 characters")
	ErrHubNotRunning      = errors.New("event hub is not running")
	ErrSubscriberClosed   = errors.New("subscriber is closed")
	ErrSubscriptionClosed = errors.New("subscription is closed")
	ErrStopped            = errors.New("component is stopped")
)

// Error codes for client responses.
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInvalidCommand     = "INVALID_COMMAND"
	ErrCodeInvalidPayload     = "INVALID_PAYLOAD"
	ErrCodeNotAuthenticated   = "NOT_AUTHENTICATED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailInUse         = "EMAIL_IN_USE"
	ErrCodeWeakPassword       = "WEAK_PASSWORD"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// RemoteError represents a failed operation against the remote tree.
type RemoteError struct {
	Op   string // Operation that failed (get, set, push, update, remove, query, subscribe)
	Path string // Remote path the operation targeted
	Err  error  // Underlying error
}

func (e *RemoteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// NewRemoteError creates a new RemoteError. A nil err yields nil so callers
// can wrap unconditionally.
func NewRemoteError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match validation failures with ErrInvalidPayload.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// CascadeError reports which step of a multi-step flock transaction failed.
// Steps that completed before the failure are left applied.
type CascadeError struct {
	Op   string // deleteFlock, unlinkFlock, joinFlock, addFlock, deleteChicken
	Step string // e.g. "query members", "remove eggs"
	Err  error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Step, e.Err)
}

func (e *CascadeError) Unwrap() error {
	return e.Err
}

// NewCascadeError creates a new CascadeError.
func NewCascadeError(op, step string, err error) *CascadeError {
	return &CascadeError{
		Op:   op,
		Step: step,
		Err:  err,
	}
}

// ErrorCode maps an error to the client-facing error code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrInvalidPayload):
		return ErrCodeInvalidPayload
	case errors.Is(err, ErrInvalidCommand), errors.Is(err, ErrUnknownEntity):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrNotAuthenticated):
		return ErrCodeNotAuthenticated
	case errors.Is(err, ErrInvalidCredentials):
		return ErrCodeInvalidCredentials
	case errors.Is(err, ErrEmailInUse):
		return ErrCodeEmailInUse
	case errors.Is(err, ErrWeakPassword):
		return ErrCodeWeakPassword
	default:
		return ErrCodeInternalError
	}
}
