package coordination

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory implements Store in process memory.
//
// It mirrors the semantics of the server-backed implementations closely
// enough to unit-test coordinator logic without a server: per-key revisions,
// atomic create, compare-and-swap update, prefix watches, and optional
// TTL-based key expiry for session buckets.
//
// Expiry is evaluated lazily on access, which matches how the coordinator
// observes sessions (polling and listing, not wall-clock callbacks).
type Memory struct {
	mu          sync.Mutex
	ttl         time.Duration
	revision    uint64
	entries     map[string]memoryEntry
	watchers    map[int]*memoryWatcher
	nextWatcher int
	unavailable bool
}

type memoryEntry struct {
	value     []byte
	revision  uint64
	expiresAt time.Time
}

// Compile-time assertion that Memory implements Store.
var _ Store = (*Memory)(nil)

// NewMemory creates an in-memory store without key expiry.
func NewMemory() *Memory {
	return NewMemoryTTL(0)
}

// NewMemoryTTL creates an in-memory store whose keys expire when not
// rewritten within ttl (0 disables expiry). Used to stand in for a
// TTL-scoped session bucket in tests.
func NewMemoryTTL(ttl time.Duration) *Memory {
	return &Memory{
		ttl:      ttl,
		entries:  make(map[string]memoryEntry),
		watchers: make(map[int]*memoryWatcher),
	}
}

// SetUnavailable toggles simulated connectivity loss: while set, every
// operation fails with ErrUnavailable. Test hook.
func (s *Memory) SetUnavailable(unavailable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unavailable = unavailable
}

// Get reads a key.
func (s *Memory) Get(_ context.Context, key string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return Entry{}, ErrUnavailable
	}
	s.purgeExpiredLocked(time.Now())

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, ErrKeyNotFound
	}

	return Entry{Key: key, Value: cloneBytes(e.value), Revision: e.revision}, nil
}

// Create atomically creates a key that must not exist yet.
func (s *Memory) Create(_ context.Context, key string, value []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return 0, ErrUnavailable
	}
	s.purgeExpiredLocked(time.Now())

	if _, ok := s.entries[key]; ok {
		return 0, ErrKeyExists
	}

	return s.writeLocked(key, value), nil
}

// Update writes a key only if its revision still matches.
func (s *Memory) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return 0, ErrUnavailable
	}
	s.purgeExpiredLocked(time.Now())

	e, ok := s.entries[key]
	if !ok {
		return 0, ErrKeyNotFound
	}
	if e.revision != revision {
		return 0, ErrRevisionMismatch
	}

	return s.writeLocked(key, value), nil
}

// Put writes a key unconditionally.
func (s *Memory) Put(_ context.Context, key string, value []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return 0, ErrUnavailable
	}
	s.purgeExpiredLocked(time.Now())

	return s.writeLocked(key, value), nil
}

// Delete removes a key.
func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return ErrUnavailable
	}

	if _, ok := s.entries[key]; ok {
		delete(s.entries, key)
		s.revision++
		s.notifyLocked(Event{Entry: Entry{Key: key, Revision: s.revision}, Deleted: true})
	}

	return nil
}

// Keys lists all keys with the given prefix.
func (s *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return nil, ErrUnavailable
	}
	s.purgeExpiredLocked(time.Now())

	var keys []string
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Watch registers a change watch for all keys under the given prefix.
func (s *Memory) Watch(_ context.Context, prefix string) (Watcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return nil, ErrUnavailable
	}

	id := s.nextWatcher
	s.nextWatcher++

	w := &memoryWatcher{
		store:  s,
		id:     id,
		prefix: prefix,
		ch:     make(chan Event, 64),
	}
	s.watchers[id] = w

	return w, nil
}

// writeLocked stores a value and notifies watchers. Caller holds mu.
func (s *Memory) writeLocked(key string, value []byte) uint64 {
	s.revision++

	e := memoryEntry{value: cloneBytes(value), revision: s.revision}
	if s.ttl > 0 {
		e.expiresAt = time.Now().Add(s.ttl)
	}
	s.entries[key] = e

	s.notifyLocked(Event{Entry: Entry{Key: key, Value: cloneBytes(value), Revision: s.revision}})

	return s.revision
}

// purgeExpiredLocked drops expired keys and emits delete events for them.
// Caller holds mu.
func (s *Memory) purgeExpiredLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}

	for key, e := range s.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.entries, key)
			s.revision++
			s.notifyLocked(Event{Entry: Entry{Key: key, Revision: s.revision}, Deleted: true})
		}
	}
}

// notifyLocked fans an event out to matching watchers without blocking:
// a watcher that stopped draining loses events, like a too-slow consumer
// of a server-side watch. Caller holds mu.
func (s *Memory) notifyLocked(ev Event) {
	for _, w := range s.watchers {
		if strings.HasPrefix(ev.Key, w.prefix) {
			select {
			case w.ch <- ev:
			default:
			}
		}
	}
}

// memoryWatcher is the Watcher implementation for Memory.
type memoryWatcher struct {
	store  *Memory
	id     int
	prefix string
	ch     chan Event

	stopOnce sync.Once
}

// Updates returns the event channel.
func (w *memoryWatcher) Updates() <-chan Event {
	return w.ch
}

// Stop unregisters the watcher and closes its channel.
func (w *memoryWatcher) Stop() error {
	w.stopOnce.Do(func() {
		w.store.mu.Lock()
		delete(w.store.watchers, w.id)
		w.store.mu.Unlock()
		close(w.ch)
	})

	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}

	return append([]byte(nil), b...)
}
