package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// Entity-specific variants below wrap it.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would violate a uniqueness
	// constraint.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored, or a stored row does not decode into a known shape.
	ErrInvalidEntity = errors.New("invalid entity")

	// Entity-specific "not found" errors

	// ErrPageNotFound indicates that the requested page does not exist.
	ErrPageNotFound = fmt.Errorf("%w: page", ErrNotFound)

	// ErrScanJobNotFound indicates that the requested scan job does not exist.
	ErrScanJobNotFound = fmt.Errorf("%w: scan job", ErrNotFound)

	// ErrNotebookNotFound indicates that the requested notebook does not exist.
	ErrNotebookNotFound = fmt.Errorf("%w: notebook", ErrNotFound)

	// ErrTranscriptNotFound indicates that a page has no routed transcript yet.
	ErrTranscriptNotFound = fmt.Errorf("%w: transcript", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrPageIndexExists indicates the notebook already has a page at that index.
	ErrPageIndexExists = fmt.Errorf("%w: page index", ErrDuplicate)

	// ErrTokenExists indicates a freshly generated token collided with an
	// existing one. Callers regenerate and retry.
	ErrTokenExists = fmt.Errorf("%w: page token", ErrDuplicate)

	// ErrUnresolvedJobExists indicates the page already has a pending or
	// processing job. Submit supersedes under a page lock, so seeing this
	// means the lock was bypassed.
	ErrUnresolvedJobExists = fmt.Errorf("%w: unresolved scan job", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
