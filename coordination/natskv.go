package coordination

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSKV implements Store on top of a NATS JetStream KeyValue bucket.
//
// Ephemeral semantics come from the bucket TTL: a bucket created with a TTL
// expires keys that are not rewritten within it, which is how session
// liveness markers disappear when their owner stops renewing.
type NATSKV struct {
	kv jetstream.KeyValue
}

// Compile-time assertion that NATSKV implements Store.
var _ Store = (*NATSKV)(nil)

// NATSKVConfig configures the backing KeyValue bucket.
type NATSKVConfig struct {
	// Bucket is the KV bucket name.
	Bucket string

	// TTL expires keys not rewritten within the duration (0 = no expiry).
	// Durable state buckets use 0; session buckets use the session TTL.
	TTL time.Duration

	// Replicas is the bucket replication factor (default 1).
	Replicas int

	// Description is an optional human-readable bucket description.
	Description string
}

// NewNATSKV creates or opens the configured KV bucket and returns a Store
// over it.
//
// Bucket creation handles the race of multiple processes creating the same
// bucket concurrently, retrying with exponential backoff on transient
// failures.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - cfg: Bucket configuration
//
// Returns:
//   - *NATSKV: Store over the bucket
//   - error: Creation error after all retries
func NewNATSKV(ctx context.Context, js jetstream.JetStream, cfg NATSKVConfig) (*NATSKV, error) {
	kvCfg := jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: cfg.Description,
		History:     1,
		Replicas:    cfg.Replicas,
	}
	if cfg.TTL > 0 {
		kvCfg.TTL = cfg.TTL
	}

	const maxRetries = 5

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		kv, err := js.CreateKeyValue(ctx, kvCfg)
		if err == nil {
			return &NATSKV{kv: kv}, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err := js.KeyValue(ctx, cfg.Bucket)
			if err == nil {
				return &NATSKV{kv: kv}, nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", err)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("context cancelled during KV bucket creation: %w", ctx.Err())
		}

		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond //nolint:gosec // attempt is bounded
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("failed to create/open KV bucket %s after %d attempts: %w",
		cfg.Bucket, maxRetries, lastErr)
}

// WrapKV returns a Store over an already opened KeyValue bucket.
//
// Useful in tests that create buckets through test helpers.
func WrapKV(kv jetstream.KeyValue) *NATSKV {
	return &NATSKV{kv: kv}
}

// Get reads a key.
func (s *NATSKV) Get(ctx context.Context, key string) (Entry, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return Entry{}, ErrKeyNotFound
		}

		return Entry{}, s.mapError("get", key, err)
	}

	return Entry{Key: entry.Key(), Value: entry.Value(), Revision: entry.Revision()}, nil
}

// Create atomically creates a key that must not exist yet.
func (s *NATSKV) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	revision, err := s.kv.Create(ctx, key, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, ErrKeyExists
		}

		return 0, s.mapError("create", key, err)
	}

	return revision, nil
}

// Update writes a key only if its revision still matches.
func (s *NATSKV) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	newRevision, err := s.kv.Update(ctx, key, value, revision)
	if err != nil {
		if isWrongRevision(err) {
			return 0, ErrRevisionMismatch
		}
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return 0, ErrKeyNotFound
		}

		return 0, s.mapError("update", key, err)
	}

	return newRevision, nil
}

// Put writes a key unconditionally.
func (s *NATSKV) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	revision, err := s.kv.Put(ctx, key, value)
	if err != nil {
		return 0, s.mapError("put", key, err)
	}

	return revision, nil
}

// Delete removes a key. Absent keys are not an error.
func (s *NATSKV) Delete(ctx context.Context, key string) error {
	err := s.kv.Purge(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return s.mapError("delete", key, err)
	}

	return nil
}

// Keys lists all keys with the given prefix.
func (s *NATSKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		// The KV API reports an empty bucket as an error; treat it as an
		// empty listing.
		if isNoKeysFound(err) {
			return nil, nil
		}

		return nil, s.mapError("keys", prefix, err)
	}

	matched := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
	}

	return matched, nil
}

// Watch registers a change watch for all keys under the given prefix.
func (s *NATSKV) Watch(ctx context.Context, prefix string) (Watcher, error) {
	pattern := strings.TrimSuffix(prefix, ".") + ".>"

	kw, err := s.kv.Watch(ctx, pattern)
	if err != nil {
		return nil, s.mapError("watch", prefix, err)
	}

	w := &natsWatcher{kw: kw, ch: make(chan Event, 16)}
	go w.run()

	return w, nil
}

// mapError wraps connectivity failures as ErrUnavailable.
func (s *NATSKV) mapError(op, key string, err error) error {
	if isConnectivityError(err) {
		return fmt.Errorf("%s %s: %w: %w", op, key, ErrUnavailable, err)
	}

	return fmt.Errorf("%s %s: %w", op, key, err)
}

// natsWatcher adapts a jetstream.KeyWatcher to the Watcher interface.
type natsWatcher struct {
	kw jetstream.KeyWatcher
	ch chan Event
}

func (w *natsWatcher) run() {
	defer close(w.ch)

	for entry := range w.kw.Updates() {
		if entry == nil {
			// End of initial replay marker.
			continue
		}

		w.ch <- Event{
			Entry: Entry{
				Key:      entry.Key(),
				Value:    entry.Value(),
				Revision: entry.Revision(),
			},
			Deleted: entry.Operation() != jetstream.KeyValuePut,
		}
	}
}

// Updates returns the event channel.
func (w *natsWatcher) Updates() <-chan Event {
	return w.ch
}

// Stop terminates the watch.
func (w *natsWatcher) Stop() error {
	return w.kw.Stop()
}

// isWrongRevision checks for the JetStream wrong-last-sequence error that
// Update returns when the revision no longer matches.
func isWrongRevision(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}

	return strings.Contains(err.Error(), "wrong last sequence")
}

// isNoKeysFound checks for the "no keys found" condition of an empty bucket,
// which may arrive direct or wrapped.
func isNoKeysFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return true
	}

	return strings.Contains(err.Error(), "no keys found")
}

// isConnectivityError checks if an error is caused by connectivity issues:
// NATS timeouts, connection refused, disconnections, and the like.
func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}
