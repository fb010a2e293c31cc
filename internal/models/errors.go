package models

import (
	"errors"
	"fmt"
)

// ValidationError is a client-correctable input error. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is matches any ValidationError for the same field with the same message
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Field == e.Field && t.Message == e.Message
}

// AuthorizationError means the actor can see the target but lacks the rights
// for the attempted operation.
type AuthorizationError struct {
	Action string
}

func (e *AuthorizationError) Error() string {
	if e.Action == "" {
		return "user not authorized to perform that action"
	}
	return fmt.Sprintf("user not authorized to %s", e.Action)
}

// NotFoundError covers soft-deleted, absent and concealed entities alike.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Entity)
}

// Is matches any NotFoundError for the same entity. An empty target entity
// matches every NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return t.Entity == "" || t.Entity == e.Entity
}

// TransientFetchError wraps a failed image or preview fetch. It is confined to
// the enrichment worker and makes the job eligible for retry.
type TransientFetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// NewNotAuthorized creates an AuthorizationError for an action
func NewNotAuthorized(action string) error {
	return &AuthorizationError{Action: action}
}

// IsValidationError reports whether err wraps a ValidationError
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsAuthorizationError reports whether err wraps an AuthorizationError
func IsAuthorizationError(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err wraps a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsTransientFetchError reports whether err wraps a TransientFetchError
func IsTransientFetchError(err error) bool {
	var target *TransientFetchError
	return errors.As(err, &target)
}
