package nakadi

import "github.com/akinjanata/nakadi/types"

// Re-export sentinel errors from the types subpackage. Callers check them
// with errors.Is; the transport layer maps each kind onto a response status.
var (
	// ErrNotFound is returned for an unknown subscription id.
	ErrNotFound = types.ErrNotFound

	// ErrUnprocessableEntity is returned for an unknown owning application
	// or an invalid or unknown event type set.
	ErrUnprocessableEntity = types.ErrUnprocessableEntity

	// ErrConflict is returned for an offset commit by a session that does
	// not own the partition.
	ErrConflict = types.ErrConflict

	// ErrForbidden is returned when the caller lacks a required read scope.
	ErrForbidden = types.ErrForbidden

	// ErrBackendUnavailable is returned when the coordination store, the
	// registry backend, or the topic engine is unreachable.
	ErrBackendUnavailable = types.ErrBackendUnavailable

	// ErrInvalidConfig is returned for invalid service configuration.
	ErrInvalidConfig = types.ErrInvalidConfig
)
