package coordination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Session lifecycle errors.
var (
	// ErrSessionStarted is returned when starting an already started session.
	ErrSessionStarted = errors.New("session already started")
	// ErrSessionNotStarted is returned when stopping a session that never started.
	ErrSessionNotStarted = errors.New("session not started")
)

// Session maintains an ephemeral liveness marker in a TTL-scoped Store.
//
// Start writes the marker key and launches a background loop that rewrites it
// at a third of the TTL, so the key survives exactly as long as the process
// keeps renewing it. Release stops the loop and deletes the key so peers
// observe the departure immediately instead of waiting for expiry.
type Session struct {
	store  Store
	key    string
	value  []byte
	ttl    time.Duration
	logger Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// Store is the TTL-scoped store holding the liveness marker.
	Store Store
	// Key is the marker key, typically scoped by subscription and session ID.
	Key string
	// Value is the marker payload, typically a serialized session record.
	Value []byte
	// TTL is the expiry of the backing store. Renewal runs at TTL/3.
	TTL time.Duration
	// Logger receives renewal failures. Optional.
	Logger Logger
}

// NewSession creates a session for the given marker key. The session is inert
// until Start is called.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Key == "" {
		return nil, errors.New("session key is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session TTL must be positive")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &Session{
		store:  cfg.Store,
		key:    cfg.Key,
		value:  cfg.Value,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

// Start writes the liveness marker and begins background renewal. It fails
// with ErrKeyExists if another holder already owns the key.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrSessionStarted
	}

	if _, err := s.store.Create(ctx, s.key, s.value); err != nil {
		return fmt.Errorf("create session marker: %w", err)
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.started = true

	go s.renewLoop(s.stopCh, s.doneCh)

	return nil
}

// Release stops renewal and deletes the marker key.
func (s *Session) Release(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrSessionNotStarted
	}

	close(s.stopCh)
	doneCh := s.doneCh
	s.started = false
	s.mu.Unlock()

	<-doneCh

	if err := s.store.Delete(ctx, s.key); err != nil && !errors.Is(err, ErrKeyNotFound) {
		return fmt.Errorf("delete session marker: %w", err)
	}

	return nil
}

// Key returns the marker key.
func (s *Session) Key() string {
	return s.key
}

func (s *Session) renewLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	interval := s.ttl / 3
	if interval < time.Millisecond {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var retryDelay time.Duration
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		// A failed renewal is retried with jittered backoff instead of
		// waiting out a full interval, so a transient store hiccup does not
		// eat a third of the liveness window.
		for s.renew() != nil {
			retryDelay = jitterBackoff(retryDelay, interval/8, 2.0, interval, nil)
			select {
			case <-stopCh:
				return
			case <-time.After(retryDelay):
			}
		}
		retryDelay = 0
	}
}

// renew rewrites the marker, recreating it if it expired under us.
func (s *Session) renew() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.ttl)
	defer cancel()

	if _, err := s.store.Put(ctx, s.key, s.value); err != nil {
		s.logger.Warn("session renewal failed", "key", s.key, "error", err)

		return err
	}

	return nil
}

// Logger is the minimal logging surface the coordination package needs.
// It matches the top-level module logger so any adapter satisfies both.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
