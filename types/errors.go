package types

import "errors"

// Sentinel errors shared across the library.
//
// These provide type-safe error checking using errors.Is() and errors.As().
// Components wrap them with context using fmt.Errorf("...: %w", err); the
// transport layer maps each kind onto its response status.

// Error kinds surfaced to callers of the subscription service.
var (
	// ErrNotFound is returned when a subscription, event type, or offset
	// record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnprocessableEntity is returned when a creation request references
	// an unknown owning application, or zero or more than one event type,
	// or an event type that does not exist.
	ErrUnprocessableEntity = errors.New("unprocessable entity")

	// ErrConflict is returned when a session commits an offset for a
	// partition it does not own.
	ErrConflict = errors.New("conflict")

	// ErrForbidden is returned when the caller lacks a required read scope.
	// The decision is made upstream; this library only propagates it.
	ErrForbidden = errors.New("access forbidden")

	// ErrBackendUnavailable indicates the coordination store, the registry
	// backend, or the topic engine is unreachable. It is surfaced to the
	// caller and never retried transparently: an unnoticed retry after a
	// network partition could violate single-ownership.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Internal signals converted before reaching callers.
var (
	// ErrDuplicateSubscription signals that the uniqueness tuple of a
	// creation request already exists. The service converts it into a
	// success returning the pre-existing record; it is never surfaced.
	ErrDuplicateSubscription = errors.New("subscription already exists")
)

// Configuration and lifecycle errors.
var (
	// ErrInvalidConfig is returned when a configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreRequired is returned when a required coordination store is nil.
	ErrStoreRequired = errors.New("coordination store is required")

	// ErrRegistryRequired is returned when the subscription registry is nil.
	ErrRegistryRequired = errors.New("subscription registry is required")
)
