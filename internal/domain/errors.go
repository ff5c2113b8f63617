package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface enables extensible error handling in the
// handler layer without switch statements over concrete types.
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// UnauthorizedError indicates authentication failure
	UnauthorizedError struct {
		Message string
	}
)

func (e *NotFoundError) Error() string     { return e.Message }
func (e *ValidationError) Error() string   { return e.Message }
func (e *UnauthorizedError) Error() string { return e.Message }

func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int   { return http.StatusBadRequest }
func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrVersionConflict is returned by the document store when a
	// conditional update loses an optimistic-concurrency race.
	ErrVersionConflict = errors.New("document version conflict")

	// ErrGenerationUnavailable wraps transient generation-provider
	// failures. Retryable.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrInvalidQuery indicates a malformed comparison query (e.g. k <= 0).
	ErrInvalidQuery = errors.New("invalid comparison query")

	// ErrUnknownRole indicates a role outside the closed enumeration.
	ErrUnknownRole = errors.New("unknown role")

	// ErrTerminalState indicates an operation on a document already in
	// a terminal lifecycle state.
	ErrTerminalState = errors.New("document in terminal state")
)

func (e *NotFoundError) Is(target error) bool     { return target == ErrNotFound }
func (e *ValidationError) Is(target error) bool   { return target == ErrValidation }
func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }

// TemplateInputError indicates the caller did not supply every
// variable a generation template declares. Never retried.
type TemplateInputError struct {
	TemplateID string
	Missing    []string
}

func (e *TemplateInputError) Error() string {
	return fmt.Sprintf("template %s: missing inputs %v", e.TemplateID, e.Missing)
}

func (e *TemplateInputError) StatusCode() int { return http.StatusBadRequest }

func (e *TemplateInputError) Is(target error) bool { return target == ErrValidation }

// RenderError indicates a non-retryable content problem during PDF
// production. The workflow fails the document immediately.
type RenderError struct {
	TemplateID string
	Cause      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render template %s: %v", e.TemplateID, e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// RetriesExhaustedError is surfaced when a retryable adapter call
// exhausts its attempt budget. The last underlying cause is attached.
type RetriesExhaustedError struct {
	Operation string
	Attempts  int
	Cause     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Operation, e.Attempts, e.Cause)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Cause }

// ConcurrentUpdateError is surfaced when the bounded read-modify-write
// retry loop keeps losing version-conflict races on the same document.
type ConcurrentUpdateError struct {
	DocumentID string
	Attempts   int
}

func (e *ConcurrentUpdateError) Error() string {
	return fmt.Sprintf("document %s: concurrent update not resolved after %d attempts", e.DocumentID, e.Attempts)
}

func (e *ConcurrentUpdateError) StatusCode() int { return http.StatusConflict }

func (e *ConcurrentUpdateError) Is(target error) bool { return target == ErrVersionConflict }
