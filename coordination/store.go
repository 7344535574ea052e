package coordination

import (
	"context"
	"errors"
)

// Common errors for store operations.
var (
	// ErrKeyExists is returned by Create when the key already exists.
	ErrKeyExists = errors.New("key already exists")

	// ErrKeyNotFound is returned when a key does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrRevisionMismatch is returned by Update when the expected revision
	// no longer matches, i.e. another writer got there first.
	ErrRevisionMismatch = errors.New("revision mismatch")

	// ErrUnavailable indicates loss of connectivity to the backing store.
	// Callers surface it; it is never retried transparently.
	ErrUnavailable = errors.New("coordination store unavailable")
)

// Entry is a single key-value record with its store revision.
type Entry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// Event is a change notification delivered by a Watcher.
type Event struct {
	Entry

	// Deleted is true when the key was removed (including TTL expiry).
	Deleted bool
}

// Watcher delivers change events for a watched key prefix.
type Watcher interface {
	// Updates returns the event channel. A zero-valued Event may be
	// delivered to mark the end of the initial replay; consumers should
	// skip events with an empty Key.
	Updates() <-chan Event

	// Stop terminates the watch and closes the event channel.
	Stop() error
}

// Store is the narrow coordination store abstraction.
//
// Keys are dot-separated hierarchical paths ("subs.<id>.partitions.<token>").
// Revisions are opaque monotonically increasing per-key tokens used for
// compare-and-swap updates; they are the single-writer primitive guarding
// partition state transitions.
//
// Implementations map connectivity failures to ErrUnavailable (wrapped) so
// callers can distinguish them from logical conflicts.
type Store interface {
	// Get reads a key. Returns ErrKeyNotFound when absent.
	Get(ctx context.Context, key string) (Entry, error)

	// Create atomically creates a key that must not exist yet.
	// Returns the new revision, or ErrKeyExists.
	Create(ctx context.Context, key string, value []byte) (uint64, error)

	// Update writes a key only if its current revision matches revision.
	// Returns the new revision, or ErrRevisionMismatch.
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)

	// Put writes a key unconditionally, creating it if needed.
	Put(ctx context.Context, key string, value []byte) (uint64, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists all keys with the given prefix, in unspecified order.
	// An empty result is not an error.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Watch registers a change watch over all keys with the given prefix.
	Watch(ctx context.Context, prefix string) (Watcher, error)
}
