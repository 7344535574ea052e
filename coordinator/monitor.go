package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/akinjanata/nakadi/coordination"
)

// Monitor lifecycle errors.
var (
	ErrMonitorStarted = errors.New("monitor already started")
	ErrMonitorStopped = errors.New("monitor already stopped")
)

const watchDebounce = 100 * time.Millisecond

// monitor detects session-set changes and triggers rebalance passes.
//
// It provides hybrid detection:
//   - Watcher (primary): fast detection via the store's prefix watch
//   - Polling (fallback): periodic scan at half the session TTL, which also
//     catches expired markers on stores whose expiry emits no watch event
type monitor struct {
	coord *Coordinator

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newMonitor(c *Coordinator) *monitor {
	return &monitor{
		coord:  c,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins monitoring in a background goroutine.
func (m *monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Once stopped, cannot restart.
	if m.stopped {
		return ErrMonitorStopped
	}
	if m.started {
		return ErrMonitorStarted
	}

	m.started = true
	go m.run(ctx)

	return nil
}

// Stop stops the monitor and waits for the background goroutine to exit.
// Safe to call multiple times.
func (m *monitor) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrMonitorStopped
	}
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	m.mu.Unlock()

	close(m.stopCh)
	<-m.doneCh

	return nil
}

func (m *monitor) run(ctx context.Context) {
	defer close(m.doneCh)

	logger := m.coord.logger

	var watcher coordination.Watcher
	watcher, err := m.coord.cfg.SessionStore.Watch(ctx, m.coord.sessionPrefix())
	if err != nil {
		logger.Warn("session watch unavailable, falling back to polling only", "error", err)
		watcher = nil
	}
	defer func() {
		if watcher != nil {
			if err := watcher.Stop(); err != nil {
				logger.Warn("failed to stop session watcher", "error", err)
			}
		}
	}()

	var updates <-chan coordination.Event
	if watcher != nil {
		updates = watcher.Updates()
	}

	// Polling fallback at half the TTL catches anything the watch misses.
	ticker := time.NewTicker(m.coord.cfg.SessionTTL / 2)
	defer ticker.Stop()

	// Debounce rapid session churn into one rebalance pass.
	debounce := time.NewTimer(watchDebounce)
	debounce.Stop()
	pending := false

	rebalance := func() {
		if err := m.coord.Rebalance(ctx); err != nil {
			logger.Error("monitor rebalance failed", "subscription", m.coord.cfg.SubscriptionID, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-m.stopCh:
			return

		case ev, ok := <-updates:
			if !ok {
				// Watch terminated; keep running on polling alone.
				logger.Warn("session watch closed, polling only")
				updates = nil

				continue
			}

			logger.Debug("session change observed", "key", ev.Key, "deleted", ev.Deleted)
			if !pending {
				pending = true
				debounce.Reset(watchDebounce)
			}

		case <-debounce.C:
			if pending {
				pending = false
				rebalance()
			}

		case <-ticker.C:
			rebalance()
		}
	}
}
