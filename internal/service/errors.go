package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/pagescan/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// Callers check them with errors.Is; the API layer maps them to status codes.
var (
	// ErrNotFound is wrapped by every "not found" sentinel below.
	ErrNotFound = errors.New("not found")

	// ErrTokenNotFound is returned for unknown and for revoked tokens alike,
	// so a caller cannot tell which one it hit.
	ErrTokenNotFound = fmt.Errorf("%w: page token", ErrNotFound)

	// ErrPageNotFound indicates that the page does not exist.
	ErrPageNotFound = fmt.Errorf("%w: page", ErrNotFound)

	// ErrJobNotFound indicates that the scan job does not exist, or the page
	// has never been scanned.
	ErrJobNotFound = fmt.Errorf("%w: scan job", ErrNotFound)

	// ErrNotebookNotFound indicates that the notebook does not exist.
	ErrNotebookNotFound = fmt.Errorf("%w: notebook", ErrNotFound)

	// ErrPageConflict indicates the notebook already has a page at that index.
	// API layer should map this to HTTP 409 Conflict.
	ErrPageConflict = errors.New("page already registered at that index")

	// ErrOwnerResolution indicates routed content cannot be attributed to the
	// owner it was routed for.
	ErrOwnerResolution = errors.New("content owner could not be resolved")

	// ErrNotOwned indicates a resource is owned by a different user than the one making the request.
	// API layer should map this to HTTP 403 Forbidden.
	ErrNotOwned = errors.New("resource is owned by another user")

	// ErrNoImages indicates a submission carried no images.
	ErrNoImages = errors.New("at least one image is required")

	// ErrTokenExhausted indicates every token generation attempt collided.
	ErrTokenExhausted = errors.New("could not allocate a unique page token")
)

// maxTokenAttempts bounds token regeneration after a collision.
const maxTokenAttempts = 5

// ServiceError wraps unexpected errors from a service with context.
type ServiceError struct {
	// Service is the service that failed, e.g. "scan" or "page"
	Service string
	// Operation is the operation that failed, e.g. "submit"
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s service %s failed: %s: %v", e.Service, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s service %s failed: %s", e.Service, e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// storeSentinels maps store errors onto the service sentinels that replace them.
var storeSentinels = []struct {
	from error
	to   error
}{
	{store.ErrPageNotFound, ErrPageNotFound},
	{store.ErrScanJobNotFound, ErrJobNotFound},
	{store.ErrNotebookNotFound, ErrNotebookNotFound},
	{store.ErrPageIndexExists, ErrPageConflict},
}

// serviceSentinels are returned as-is rather than wrapped.
var serviceSentinels = []error{
	ErrNotFound,
	ErrPageConflict,
	ErrOwnerResolution,
	ErrNotOwned,
	ErrNoImages,
	ErrTokenExhausted,
}

// newServiceError returns known sentinels directly and wraps anything else.
// Domain errors such as domain.ErrInvalidTransition survive the wrap and
// are still found by errors.Is.
func newServiceError(service, operation, message string, err error) error {
	if err == nil {
		return nil
	}
	for _, s := range serviceSentinels {
		if errors.Is(err, s) {
			return err
		}
	}
	for _, m := range storeSentinels {
		if errors.Is(err, m.from) {
			return m.to
		}
	}
	return &ServiceError{
		Service:   service,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// NewScanServiceError wraps an error from the scan service.
func NewScanServiceError(operation, message string, err error) error {
	return newServiceError("scan", operation, message, err)
}

// NewPageServiceError wraps an error from the page registry.
func NewPageServiceError(operation, message string, err error) error {
	return newServiceError("page", operation, message, err)
}
