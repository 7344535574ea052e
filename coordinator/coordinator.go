package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/akinjanata/nakadi/coordination"
	"github.com/akinjanata/nakadi/internal/metrics"
	"github.com/akinjanata/nakadi/logging"
	"github.com/akinjanata/nakadi/strategy"
	"github.com/akinjanata/nakadi/types"
)

// Coordinator lifecycle and ownership errors.
var (
	// ErrNotInitialized is returned by operations that require the
	// partition set to be materialized first.
	ErrNotInitialized = errors.New("coordinator not initialized for subscription")

	// ErrSessionExists is returned when registering a session whose ID is
	// already live.
	ErrSessionExists = errors.New("session already registered")
)

// Default configuration values.
const (
	DefaultSessionTTL = 10 * time.Second
	DefaultAckTimeout = 30 * time.Second
)

const (
	commitRetries     = 3
	transitionRetries = 3
)

// Config holds the coordinator configuration for one subscription.
type Config struct {
	// SubscriptionID scopes every key the coordinator touches. Required.
	SubscriptionID string `yaml:"subscription_id"`

	// StateStore holds durable topology, partition, and offset records.
	// Required, must not expire keys.
	StateStore coordination.Store `yaml:"-"`

	// SessionStore holds ephemeral session markers. Required, must expire
	// keys at SessionTTL.
	SessionStore coordination.Store `yaml:"-"`

	// SessionTTL is the liveness window of a session marker. A session
	// whose marker is not renewed within the TTL is treated as departed.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// AckTimeout bounds how long a partition may sit in ASSIGNING or
	// REASSIGNING before the next rebalance pass returns it to UNASSIGNED.
	AckTimeout time.Duration `yaml:"ack_timeout"`
}

// SetDefaults fills in defaults for unset optional fields.
func (c *Config) SetDefaults() {
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	if c.SubscriptionID == "" {
		return fmt.Errorf("%w: subscription id is required", types.ErrInvalidConfig)
	}
	if c.StateStore == nil {
		return fmt.Errorf("%w: state store", types.ErrStoreRequired)
	}
	if c.SessionStore == nil {
		return fmt.Errorf("%w: session store", types.ErrStoreRequired)
	}

	return nil
}

// Coordinator maintains partition assignment state for one subscription.
type Coordinator struct {
	cfg      Config
	strategy types.AssignmentStrategy
	logger   types.Logger
	metrics  types.MetricsCollector

	monitor *monitor
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger types.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector. Defaults to a no-op collector.
func WithMetrics(collector types.MetricsCollector) Option {
	return func(c *Coordinator) {
		if collector != nil {
			c.metrics = collector
		}
	}
}

// WithStrategy sets the assignment strategy. Defaults to strategy.NewSticky().
func WithStrategy(s types.AssignmentStrategy) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.strategy = s
		}
	}
}

// New creates a Coordinator for one subscription.
//
// Parameters:
//   - cfg: Coordinator configuration; defaults are applied in place
//   - opts: Optional configuration (WithLogger, WithMetrics, WithStrategy)
//
// Returns:
//   - *Coordinator: Initialized coordinator
//   - error: Configuration error
func New(cfg Config, opts ...Option) (*Coordinator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:      cfg,
		strategy: strategy.NewSticky(),
		logger:   logging.NewNop(),
		metrics:  metrics.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.monitor = newMonitor(c)

	return c, nil
}

// topologyRecord is the root node of a subscription's coordination state.
type topologyRecord struct {
	SubscriptionID string    `json:"subscription_id"`
	Initialized    bool      `json:"initialized"`
	Topic          string    `json:"topic,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// offsetRecord stores the last committed offset of one partition.
type offsetRecord struct {
	Offset      int64     `json:"offset"`
	SessionID   string    `json:"session,omitempty"`
	CommittedAt time.Time `json:"committed_at,omitempty"`
}

func (c *Coordinator) topologyKey() string {
	return "subs." + c.cfg.SubscriptionID + ".topology"
}

func (c *Coordinator) partitionPrefix() string {
	return "subs." + c.cfg.SubscriptionID + ".partitions."
}

func (c *Coordinator) partitionKey(key types.PartitionKey) string {
	return c.partitionPrefix() + key.Token()
}

func (c *Coordinator) offsetKey(key types.PartitionKey) string {
	return "subs." + c.cfg.SubscriptionID + ".offsets." + key.Token()
}

func (c *Coordinator) sessionPrefix() string {
	return "subs." + c.cfg.SubscriptionID + ".sessions."
}

func (c *Coordinator) sessionKey(sessionID string) string {
	return c.sessionPrefix() + sessionID
}

// EnsureCreated creates the subscription's root coordination node.
// Idempotent: calling it for an existing subscription is a no-op.
func (c *Coordinator) EnsureCreated(ctx context.Context) error {
	record, err := json.Marshal(topologyRecord{
		SubscriptionID: c.cfg.SubscriptionID,
		Initialized:    false,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal topology: %w", err)
	}

	if _, err := c.cfg.StateStore.Create(ctx, c.topologyKey(), record); err != nil {
		if errors.Is(err, coordination.ErrKeyExists) {
			return nil
		}

		return mapStoreError(err)
	}

	c.logger.Debug("coordination node created", "subscription", c.cfg.SubscriptionID)

	return nil
}

// Initialized reports whether the partition set has been materialized.
// A subscription whose root node does not exist yet reports false.
func (c *Coordinator) Initialized(ctx context.Context) (bool, error) {
	topo, _, err := c.readTopology(ctx)
	if err != nil {
		if errors.Is(err, coordination.ErrKeyNotFound) {
			return false, nil
		}

		return false, err
	}

	return topo.Initialized, nil
}

// InitPartitions materializes the partition set of the subscription,
// seeding committed offsets from the topic watermarks: PositionBegin starts
// at the oldest retained offset, PositionEnd at the tail.
//
// Called on the first consumer connection; idempotent and safe under
// concurrent callers, every record is written with atomic create.
//
// Parameters:
//   - ctx: Context for cancellation
//   - topics: Topic engine used to discover partitions and watermarks
//   - topic: Topic backing the subscription's event type
//   - startFrom: Initial read position for every partition
//
// Returns:
//   - error: Store or topic engine failure
func (c *Coordinator) InitPartitions(ctx context.Context, topics types.TopicRepository, topic string, startFrom types.InitialPosition) error {
	initialized, err := c.Initialized(ctx)
	if err != nil {
		return err
	}
	if initialized {
		return nil
	}

	if err := c.EnsureCreated(ctx); err != nil {
		return err
	}

	partitions, err := topics.ListPartitions(ctx, topic)
	if err != nil {
		return fmt.Errorf("list partitions of %s: %w", topic, err)
	}

	for _, partition := range partitions {
		key := types.PartitionKey{Topic: topic, Partition: partition}

		watermarks, err := topics.GetPartition(ctx, topic, partition)
		if err != nil {
			return fmt.Errorf("watermarks of %s: %w", key, err)
		}

		offset := watermarks.NewestOffset
		if startFrom == types.PositionBegin {
			offset = watermarks.OldestOffset
		}

		if err := c.createPartition(ctx, key, offset); err != nil {
			return err
		}
	}

	return c.markInitialized(ctx, topic)
}

func (c *Coordinator) createPartition(ctx context.Context, key types.PartitionKey, offset int64) error {
	record, err := json.Marshal(types.Partition{Key: key, State: types.StateUnassigned})
	if err != nil {
		return fmt.Errorf("marshal partition: %w", err)
	}

	if _, err := c.cfg.StateStore.Create(ctx, c.partitionKey(key), record); err != nil && !errors.Is(err, coordination.ErrKeyExists) {
		return mapStoreError(err)
	}

	seed, err := json.Marshal(offsetRecord{Offset: offset})
	if err != nil {
		return fmt.Errorf("marshal offset: %w", err)
	}

	if _, err := c.cfg.StateStore.Create(ctx, c.offsetKey(key), seed); err != nil && !errors.Is(err, coordination.ErrKeyExists) {
		return mapStoreError(err)
	}

	return nil
}

func (c *Coordinator) markInitialized(ctx context.Context, topic string) error {
	for range transitionRetries {
		topo, revision, err := c.readTopology(ctx)
		if err != nil {
			return err
		}
		if topo.Initialized {
			return nil
		}

		topo.Initialized = true
		topo.Topic = topic

		record, err := json.Marshal(topo)
		if err != nil {
			return fmt.Errorf("marshal topology: %w", err)
		}

		_, err = c.cfg.StateStore.Update(ctx, c.topologyKey(), record, revision)
		if err == nil {
			c.logger.Info("partition set materialized", "subscription", c.cfg.SubscriptionID, "topic", topic)
			return nil
		}
		if !errors.Is(err, coordination.ErrRevisionMismatch) {
			return mapStoreError(err)
		}
	}

	// Lost every race; the concurrent initializer won.
	return nil
}

func (c *Coordinator) readTopology(ctx context.Context) (topologyRecord, uint64, error) {
	entry, err := c.cfg.StateStore.Get(ctx, c.topologyKey())
	if err != nil {
		if errors.Is(err, coordination.ErrKeyNotFound) {
			return topologyRecord{}, 0, err
		}

		return topologyRecord{}, 0, mapStoreError(err)
	}

	var topo topologyRecord
	if err := json.Unmarshal(entry.Value, &topo); err != nil {
		return topologyRecord{}, 0, fmt.Errorf("decode topology: %w", err)
	}

	return topo, entry.Revision, nil
}

// RegisterSession creates the ephemeral liveness marker for a consumer
// session and triggers a rebalance pass.
//
// The returned session renews its marker in the background; the caller must
// Release it when the consumer disconnects gracefully. A dropped connection
// is detected by marker expiry instead.
//
// Parameters:
//   - ctx: Context for cancellation
//   - sessionID: Unique stream/session identifier of the consumer
//
// Returns:
//   - *coordination.Session: Started session holding the liveness marker
//   - error: ErrSessionExists when the ID is already live
func (c *Coordinator) RegisterSession(ctx context.Context, sessionID string) (*coordination.Session, error) {
	marker, err := json.Marshal(map[string]any{
		"stream_id":    sessionID,
		"connected_at": time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal session marker: %w", err)
	}

	sess, err := coordination.NewSession(coordination.SessionConfig{
		Store:  c.cfg.SessionStore,
		Key:    c.sessionKey(sessionID),
		Value:  marker,
		TTL:    c.cfg.SessionTTL,
		Logger: c.logger,
	})
	if err != nil {
		return nil, err
	}

	if err := sess.Start(ctx); err != nil {
		if errors.Is(err, coordination.ErrKeyExists) {
			return nil, fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
		}

		return nil, mapStoreError(err)
	}

	c.metrics.RecordSessionChange(1)
	c.logger.Info("session registered", "subscription", c.cfg.SubscriptionID, "session", sessionID)

	if err := c.Rebalance(ctx); err != nil {
		c.logger.Warn("rebalance after session join failed", "error", err)
	}

	return sess, nil
}

// ListSessions returns the IDs of all live consumer sessions, sorted.
func (c *Coordinator) ListSessions(ctx context.Context) ([]string, error) {
	keys, err := c.cfg.SessionStore.Keys(ctx, c.sessionPrefix())
	if err != nil {
		return nil, mapStoreError(err)
	}

	sessions := make([]string, 0, len(keys))
	for _, key := range keys {
		sessions = append(sessions, strings.TrimPrefix(key, c.sessionPrefix()))
	}
	slices.Sort(sessions)

	return sessions, nil
}

// ListPartitions returns all partition assignment records, sorted by key.
// Usable by any caller without holding ownership.
func (c *Coordinator) ListPartitions(ctx context.Context) ([]types.Partition, error) {
	entries, err := c.listPartitionEntries(ctx)
	if err != nil {
		return nil, err
	}

	partitions := make([]types.Partition, 0, len(entries))
	for _, e := range entries {
		partitions = append(partitions, e.partition)
	}

	return partitions, nil
}

// partitionEntry pairs a partition record with its store revision for
// compare-and-swap writes.
type partitionEntry struct {
	partition types.Partition
	revision  uint64
}

func (c *Coordinator) listPartitionEntries(ctx context.Context) ([]partitionEntry, error) {
	keys, err := c.cfg.StateStore.Keys(ctx, c.partitionPrefix())
	if err != nil {
		return nil, mapStoreError(err)
	}

	entries := make([]partitionEntry, 0, len(keys))
	for _, key := range keys {
		entry, err := c.cfg.StateStore.Get(ctx, key)
		if err != nil {
			if errors.Is(err, coordination.ErrKeyNotFound) {
				continue
			}

			return nil, mapStoreError(err)
		}

		var p types.Partition
		if err := json.Unmarshal(entry.Value, &p); err != nil {
			return nil, fmt.Errorf("decode partition record %s: %w", key, err)
		}

		entries = append(entries, partitionEntry{partition: p, revision: entry.Revision})
	}

	slices.SortFunc(entries, func(a, b partitionEntry) int {
		return a.partition.Key.Compare(b.partition.Key)
	})

	return entries, nil
}

func (c *Coordinator) getPartition(ctx context.Context, key types.PartitionKey) (types.Partition, uint64, error) {
	entry, err := c.cfg.StateStore.Get(ctx, c.partitionKey(key))
	if err != nil {
		if errors.Is(err, coordination.ErrKeyNotFound) {
			return types.Partition{}, 0, fmt.Errorf("partition %s: %w", key, types.ErrNotFound)
		}

		return types.Partition{}, 0, mapStoreError(err)
	}

	var p types.Partition
	if err := json.Unmarshal(entry.Value, &p); err != nil {
		return types.Partition{}, 0, fmt.Errorf("decode partition record: %w", err)
	}

	return p, entry.Revision, nil
}

// GetOffset returns the last committed offset of a partition. Usable by any
// caller without holding ownership.
func (c *Coordinator) GetOffset(ctx context.Context, key types.PartitionKey) (int64, error) {
	entry, err := c.cfg.StateStore.Get(ctx, c.offsetKey(key))
	if err != nil {
		if errors.Is(err, coordination.ErrKeyNotFound) {
			return 0, fmt.Errorf("offset of %s: %w", key, types.ErrNotFound)
		}

		return 0, mapStoreError(err)
	}

	var record offsetRecord
	if err := json.Unmarshal(entry.Value, &record); err != nil {
		return 0, fmt.Errorf("decode offset record: %w", err)
	}

	return record.Offset, nil
}

// CommitOffset records the consumption progress of a partition.
//
// Only the session currently responsible may commit: the assigned owner, or
// the draining prior owner while a reassignment is in flight. Commits are
// monotonic; an offset at or below the stored one is accepted as a no-op and
// never regresses the stored value.
//
// Parameters:
//   - ctx: Context for cancellation
//   - key: Partition to commit for
//   - sessionID: Committing session
//   - offset: New committed offset
//
// Returns:
//   - error: types.ErrConflict when sessionID is not the responsible owner,
//     types.ErrNotFound for an unknown partition
func (c *Coordinator) CommitOffset(ctx context.Context, key types.PartitionKey, sessionID string, offset int64) error {
	p, _, err := c.getPartition(ctx, key)
	if err != nil {
		return err
	}

	committable := (p.State == types.StateAssigned || p.State == types.StateReassigning) && p.SessionID == sessionID
	if !committable {
		c.metrics.RecordOffsetCommit(false)

		return fmt.Errorf("%w: session %s does not own partition %s", types.ErrConflict, sessionID, key)
	}

	for range commitRetries {
		entry, err := c.cfg.StateStore.Get(ctx, c.offsetKey(key))
		if err != nil {
			if errors.Is(err, coordination.ErrKeyNotFound) {
				return fmt.Errorf("offset of %s: %w", key, types.ErrNotFound)
			}

			return mapStoreError(err)
		}

		var stored offsetRecord
		if err := json.Unmarshal(entry.Value, &stored); err != nil {
			return fmt.Errorf("decode offset record: %w", err)
		}

		if offset <= stored.Offset {
			// Stale commit, applied as a no-op.
			c.metrics.RecordOffsetCommit(false)

			return nil
		}

		record, err := json.Marshal(offsetRecord{
			Offset:      offset,
			SessionID:   sessionID,
			CommittedAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("marshal offset record: %w", err)
		}

		_, err = c.cfg.StateStore.Update(ctx, c.offsetKey(key), record, entry.Revision)
		if err == nil {
			c.metrics.RecordOffsetCommit(true)

			return nil
		}
		if !errors.Is(err, coordination.ErrRevisionMismatch) {
			return mapStoreError(err)
		}
		// Lost a race against another commit for the same partition;
		// re-read and re-apply the monotonic check.
	}

	return fmt.Errorf("commit offset of %s: %w", key, types.ErrConflict)
}

// AckAssignment acknowledges ownership of an ASSIGNING partition, completing
// the transition to ASSIGNED.
//
// Returns types.ErrConflict when sessionID is not the selected candidate or
// the partition is not in ASSIGNING state.
func (c *Coordinator) AckAssignment(ctx context.Context, key types.PartitionKey, sessionID string) error {
	p, revision, err := c.getPartition(ctx, key)
	if err != nil {
		return err
	}

	if p.State != types.StateAssigning || p.SessionID != sessionID {
		return fmt.Errorf("%w: partition %s is not assigning to session %s", types.ErrConflict, key, sessionID)
	}

	p.State = types.StateAssigned
	p.AssignedAt = time.Time{}

	if err := c.writePartition(ctx, p, revision); err != nil {
		return err
	}

	c.logger.Debug("assignment acknowledged", "partition", key.String(), "session", sessionID)

	return nil
}

// ReleasePartition is called by the prior owner of a REASSIGNING partition
// once it stops consuming, completing the hand-over to the next session. An
// ASSIGNED owner may also release to return its partition to UNASSIGNED
// before disconnecting.
//
// Returns types.ErrConflict when sessionID is not the current owner.
func (c *Coordinator) ReleasePartition(ctx context.Context, key types.PartitionKey, sessionID string) error {
	p, revision, err := c.getPartition(ctx, key)
	if err != nil {
		return err
	}

	if p.SessionID != sessionID {
		return fmt.Errorf("%w: session %s does not own partition %s", types.ErrConflict, sessionID, key)
	}

	switch p.State {
	case types.StateReassigning:
		p.SessionID = p.NextSessionID
		p.NextSessionID = ""
		p.State = types.StateAssigned
		p.AssignedAt = time.Time{}
	case types.StateAssigned:
		p.SessionID = ""
		p.NextSessionID = ""
		p.State = types.StateUnassigned
		p.AssignedAt = time.Time{}
	default:
		return fmt.Errorf("%w: partition %s is %s, nothing to release", types.ErrConflict, key, p.State)
	}

	if err := c.writePartition(ctx, p, revision); err != nil {
		return err
	}

	c.logger.Debug("partition released", "partition", key.String(), "session", sessionID, "state", p.State.String())

	return nil
}

// writePartition persists a partition record with compare-and-swap.
func (c *Coordinator) writePartition(ctx context.Context, p types.Partition, revision uint64) error {
	record, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal partition: %w", err)
	}

	if _, err := c.cfg.StateStore.Update(ctx, c.partitionKey(p.Key), record, revision); err != nil {
		if errors.Is(err, coordination.ErrRevisionMismatch) {
			return fmt.Errorf("partition %s changed concurrently: %w", p.Key, types.ErrConflict)
		}

		return mapStoreError(err)
	}

	return nil
}

// StartMonitor begins watching the session set and rebalancing on changes.
func (c *Coordinator) StartMonitor(ctx context.Context) error {
	return c.monitor.Start(ctx)
}

// StopMonitor stops the session monitor and waits for it to exit.
func (c *Coordinator) StopMonitor() error {
	return c.monitor.Stop()
}

// mapStoreError converts coordination store connectivity loss into the
// caller-facing kind. Never retried here: masking a partition could install
// two owners.
func mapStoreError(err error) error {
	if errors.Is(err, coordination.ErrUnavailable) {
		return fmt.Errorf("%w: %w", types.ErrBackendUnavailable, err)
	}

	return err
}
