package nakadi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/akinjanata/nakadi/coordination"
	"github.com/akinjanata/nakadi/coordinator"
	"github.com/akinjanata/nakadi/internal/metrics"
	"github.com/akinjanata/nakadi/logging"
	"github.com/akinjanata/nakadi/registry"
	"github.com/akinjanata/nakadi/strategy"
	"github.com/akinjanata/nakadi/types"
)

// SubscriptionRegistry persists subscription records. registry.KVRegistry is
// the provided implementation; the interface exists so callers can substitute
// their own durable store.
type SubscriptionRegistry interface {
	// Create persists a new subscription, assigning ID and creation time.
	// Returns types.ErrDuplicateSubscription when the uniqueness tuple is
	// already taken.
	Create(ctx context.Context, base types.SubscriptionBase) (types.Subscription, error)

	// Get returns the subscription with the given ID or types.ErrNotFound.
	Get(ctx context.Context, id string) (types.Subscription, error)

	// GetByTuple returns the subscription matching the uniqueness tuple of
	// the given attributes or types.ErrNotFound.
	GetByTuple(ctx context.Context, base types.SubscriptionBase) (types.Subscription, error)

	// List returns all subscriptions, oldest first.
	List(ctx context.Context) ([]types.Subscription, error)

	// ListForOwningApplication returns the subscriptions owned by the given
	// application, oldest first.
	ListForOwningApplication(ctx context.Context, owningApplication string) ([]types.Subscription, error)
}

var _ SubscriptionRegistry = (*registry.KVRegistry)(nil)

// Service is the subscription management front of the library: it creates and
// looks up subscriptions, connects consumers, and answers stats queries.
//
// A Service owns one Coordinator per subscription it has touched, created
// lazily and reused across calls. Safe for concurrent use.
type Service struct {
	cfg        Config
	registry   SubscriptionRegistry
	eventTypes types.EventTypeRegistry
	apps       types.ApplicationRegistry
	topics     types.TopicRepository

	opts serviceOptions

	// runCtx outlives any single request; coordinator monitors run on it so
	// session recovery keeps working after the connect request that started
	// them returns. Cancelled by Close.
	runCtx    context.Context
	runCancel context.CancelFunc

	mu     sync.Mutex
	coords map[string]*coordinator.Coordinator
	closed bool
}

// NewService creates the subscription service.
//
// Parameters:
//   - cfg: Service configuration; defaults are applied in place
//   - reg: Subscription record store
//   - eventTypes: Event type lookup
//   - apps: Owning application lookup
//   - topics: Topic engine for partition discovery and watermarks
//   - opts: Optional collaborators (WithLogger, WithMetrics, WithStrategy)
//
// Returns:
//   - *Service: Initialized service
//   - error: Configuration error, or ErrRegistryRequired when a required
//     collaborator is nil
func NewService(
	cfg Config,
	reg SubscriptionRegistry,
	eventTypes types.EventTypeRegistry,
	apps types.ApplicationRegistry,
	topics types.TopicRepository,
	opts ...Option,
) (*Service, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, types.ErrRegistryRequired
	}
	if eventTypes == nil {
		return nil, fmt.Errorf("%w: event type registry is required", types.ErrInvalidConfig)
	}
	if apps == nil {
		return nil, fmt.Errorf("%w: application registry is required", types.ErrInvalidConfig)
	}
	if topics == nil {
		return nil, fmt.Errorf("%w: topic repository is required", types.ErrInvalidConfig)
	}

	runCtx, runCancel := context.WithCancel(context.Background())

	s := &Service{
		cfg:        cfg,
		registry:   reg,
		eventTypes: eventTypes,
		apps:       apps,
		topics:     topics,
		runCtx:     runCtx,
		runCancel:  runCancel,
		opts: serviceOptions{
			logger:   logging.NewNop(),
			metrics:  metrics.NewNop(),
			strategy: strategy.NewSticky(),
		},
		coords: make(map[string]*coordinator.Coordinator),
	}

	for _, opt := range opts {
		opt(&s.opts)
	}

	return s, nil
}

// CreateSubscription creates a subscription for the given attributes, or
// returns the existing one when an identical subscription (same owning
// application, event types, and consumer group) already exists.
//
// The request is validated against the event type registry and the caller's
// granted scopes before anything is persisted. Partition state is NOT
// materialized here; that happens on the first consumer connection.
//
// Parameters:
//   - ctx: Context for cancellation
//   - client: Caller identity with granted scopes
//   - base: Requested subscription attributes; defaults are applied
//
// Returns:
//   - types.Subscription: The created or existing record
//   - bool: True when a new subscription was created
//   - error: ErrUnprocessableEntity for an unknown event type, a missing
//     owning application, or an unsupported event type count; ErrForbidden
//     when the client lacks read scopes; ErrBackendUnavailable on store loss
func (s *Service) CreateSubscription(ctx context.Context, client types.Client, base types.SubscriptionBase) (types.Subscription, bool, error) {
	base.SetDefaults()

	if err := s.validateRequest(ctx, client, base); err != nil {
		return types.Subscription{}, false, err
	}

	sub, err := s.registry.Create(ctx, base)
	if err != nil {
		if errors.Is(err, types.ErrDuplicateSubscription) {
			existing, getErr := s.registry.GetByTuple(ctx, base)
			if getErr != nil {
				return types.Subscription{}, false, getErr
			}

			s.opts.metrics.RecordSubscriptionCreated(false)

			return existing, false, nil
		}

		return types.Subscription{}, false, err
	}

	coord, err := s.coordinatorFor(sub.ID)
	if err != nil {
		return types.Subscription{}, false, err
	}
	if err := coord.EnsureCreated(ctx); err != nil {
		return types.Subscription{}, false, err
	}

	s.opts.metrics.RecordSubscriptionCreated(true)
	s.opts.logger.Info("subscription created",
		"subscription", sub.ID,
		"owning_application", sub.OwningApplication,
		"event_types", strings.Join(sub.EventTypes, ","),
		"consumer_group", sub.ConsumerGroup)

	return sub, true, nil
}

func (s *Service) validateRequest(ctx context.Context, client types.Client, base types.SubscriptionBase) error {
	if base.OwningApplication == "" {
		return fmt.Errorf("%w: owning application is required", types.ErrUnprocessableEntity)
	}
	if len(base.EventTypes) != 1 {
		return fmt.Errorf("%w: subscription must name exactly one event type", types.ErrUnprocessableEntity)
	}
	if base.StartFrom != types.PositionBegin && base.StartFrom != types.PositionEnd {
		return fmt.Errorf("%w: unknown start position %q", types.ErrUnprocessableEntity, base.StartFrom)
	}

	et, err := s.resolveEventType(ctx, base.EventTypes[0])
	if err != nil {
		return err
	}

	if missing := client.MissingScopes(et.ReadScopes); len(missing) > 0 {
		return fmt.Errorf("%w: client is missing scopes: %s", types.ErrForbidden, strings.Join(missing, ", "))
	}

	exists, err := s.apps.Exists(ctx, base.OwningApplication)
	if err != nil {
		return fmt.Errorf("check owning application: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: owning application '%s' does not exist", types.ErrUnprocessableEntity, base.OwningApplication)
	}

	return nil
}

// resolveEventType looks up an event type, converting absence into the
// request-level error kind with the name in the message.
func (s *Service) resolveEventType(ctx context.Context, name string) (*types.EventType, error) {
	et, err := s.eventTypes.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("%w: event type(s) not found: '%s'", types.ErrUnprocessableEntity, name)
		}

		return nil, fmt.Errorf("resolve event type %s: %w", name, err)
	}

	return et, nil
}

// GetSubscription returns the subscription with the given ID.
func (s *Service) GetSubscription(ctx context.Context, id string) (types.Subscription, error) {
	return s.registry.Get(ctx, id)
}

// ListSubscriptions returns subscriptions oldest first, filtered by owning
// application when owningApplication is non-empty.
func (s *Service) ListSubscriptions(ctx context.Context, owningApplication string) ([]types.Subscription, error) {
	if owningApplication == "" {
		return s.registry.List(ctx)
	}

	return s.registry.ListForOwningApplication(ctx, owningApplication)
}

// ConnectConsumer registers a consumer session on a subscription and returns
// the connection handle the consumer drives assignments and commits through.
//
// The first connection of a subscription materializes its partition set from
// the topic watermarks. The coordinator's session monitor is started with the
// first connection and keeps running until the service is closed.
//
// Parameters:
//   - ctx: Context for cancellation
//   - subscriptionID: Subscription to consume from
//   - streamID: Unique session identifier of this consumer instance
//
// Returns:
//   - *ConsumerConnection: Live connection; Close it on disconnect
//   - error: types.ErrNotFound for an unknown subscription,
//     coordinator.ErrSessionExists for a duplicate streamID
func (s *Service) ConnectConsumer(ctx context.Context, subscriptionID, streamID string) (*ConsumerConnection, error) {
	sub, err := s.registry.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	et, err := s.resolveEventType(ctx, sub.EventTypes[0])
	if err != nil {
		return nil, err
	}

	coord, err := s.coordinatorFor(sub.ID)
	if err != nil {
		return nil, err
	}

	if err := coord.InitPartitions(ctx, s.topics, et.Topic, sub.StartFrom); err != nil {
		return nil, err
	}

	sess, err := coord.RegisterSession(ctx, streamID)
	if err != nil {
		return nil, err
	}

	// The monitor runs on the service lifecycle context, not the connect
	// request's: it must keep reclaiming partitions of crashed consumers
	// long after this request returns.
	if err := coord.StartMonitor(s.runCtx); err != nil && !errors.Is(err, coordinator.ErrMonitorStarted) {
		_ = coord.ReleaseSession(ctx, sess)

		return nil, err
	}

	return &ConsumerConnection{
		coord:    coord,
		session:  sess,
		streamID: streamID,
	}, nil
}

// GetSubscriptionStats computes the per-partition consumption state of a
// subscription. The result is derived fresh from assignment records,
// committed offsets, and topic watermarks; nothing is cached or persisted.
//
// Parameters:
//   - ctx: Context for cancellation
//   - subscriptionID: Subscription to report on
//
// Returns:
//   - []types.SubscriptionEventTypeStats: One entry per subscribed event
//     type; empty when the event type no longer exists, with an empty
//     partition list when no consumer has ever connected
//   - error: types.ErrNotFound for an unknown subscription,
//     types.ErrBackendUnavailable when the topic engine is unreachable
func (s *Service) GetSubscriptionStats(ctx context.Context, subscriptionID string) ([]types.SubscriptionEventTypeStats, error) {
	sub, err := s.registry.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	name := sub.EventTypes[0]
	et, err := s.eventTypes.FindByName(ctx, name)
	if err != nil {
		// A deleted event type yields an empty stats list, not an error.
		if errors.Is(err, types.ErrNotFound) {
			return []types.SubscriptionEventTypeStats{}, nil
		}

		return nil, fmt.Errorf("resolve event type %s: %w", name, err)
	}

	coord, err := s.coordinatorFor(sub.ID)
	if err != nil {
		return nil, err
	}

	initialized, err := coord.Initialized(ctx)
	if err != nil {
		return nil, err
	}
	if !initialized {
		return []types.SubscriptionEventTypeStats{{
			EventType:  name,
			Partitions: []types.PartitionStats{},
		}}, nil
	}

	partitions, err := coord.ListPartitions(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]partitionView, 0, len(partitions))
	for _, p := range partitions {
		committed, err := coord.GetOffset(ctx, p.Key)
		if err != nil {
			return nil, err
		}

		watermarks, err := s.topics.GetPartition(ctx, et.Topic, p.Key.Partition)
		if err != nil {
			return nil, fmt.Errorf("watermarks of %s: %w", p.Key, err)
		}

		entries = append(entries, partitionView{
			partition: p,
			committed: committed,
			newest:    watermarks.NewestOffset,
		})
	}

	stats, totalLag := aggregateStats(name, entries)
	s.opts.metrics.RecordStatsQuery(len(entries), totalLag)

	return []types.SubscriptionEventTypeStats{stats}, nil
}

// coordinatorFor returns the cached coordinator of a subscription, creating
// it on first use.
func (s *Service) coordinatorFor(subscriptionID string) (*coordinator.Coordinator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("service is closed")
	}
	if coord, ok := s.coords[subscriptionID]; ok {
		return coord, nil
	}

	coord, err := coordinator.New(coordinator.Config{
		SubscriptionID: subscriptionID,
		StateStore:     s.cfg.StateStore,
		SessionStore:   s.cfg.SessionStore,
		SessionTTL:     s.cfg.SessionTTL,
		AckTimeout:     s.cfg.AckTimeout,
	},
		coordinator.WithLogger(s.opts.logger),
		coordinator.WithMetrics(s.opts.metrics),
		coordinator.WithStrategy(s.opts.strategy),
	)
	if err != nil {
		return nil, err
	}

	s.coords[subscriptionID] = coord

	return coord, nil
}

// Close stops every coordinator monitor the service has started. Consumer
// connections created through the service must be closed by their owners.
func (s *Service) Close() error {
	s.mu.Lock()
	coords := make([]*coordinator.Coordinator, 0, len(s.coords))
	for _, coord := range s.coords {
		coords = append(coords, coord)
	}
	s.closed = true
	s.mu.Unlock()

	s.runCancel()

	var errs []error
	for _, coord := range coords {
		if err := coord.StopMonitor(); err != nil && !errors.Is(err, coordinator.ErrMonitorStopped) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ConsumerConnection is a live consumer session on one subscription.
//
// The consumer polls Partitions to learn about assignments, acknowledges
// them, commits progress, and Closes the connection when it stops.
type ConsumerConnection struct {
	coord    *coordinator.Coordinator
	session  *coordination.Session
	streamID string
}

// StreamID returns the session identifier of this connection.
func (c *ConsumerConnection) StreamID() string {
	return c.streamID
}

// Partitions returns the current assignment records of the subscription.
func (c *ConsumerConnection) Partitions(ctx context.Context) ([]types.Partition, error) {
	return c.coord.ListPartitions(ctx)
}

// AckAssignment acknowledges ownership of a partition offered to this session.
func (c *ConsumerConnection) AckAssignment(ctx context.Context, key types.PartitionKey) error {
	return c.coord.AckAssignment(ctx, key, c.streamID)
}

// CommitOffset records consumption progress on a partition this session is
// responsible for.
func (c *ConsumerConnection) CommitOffset(ctx context.Context, key types.PartitionKey, offset int64) error {
	return c.coord.CommitOffset(ctx, key, c.streamID, offset)
}

// GetOffset returns the last committed offset of a partition.
func (c *ConsumerConnection) GetOffset(ctx context.Context, key types.PartitionKey) (int64, error) {
	return c.coord.GetOffset(ctx, key)
}

// ReleasePartition hands a partition over after draining: to the next session
// during a reassignment, or back to the unassigned pool otherwise.
func (c *ConsumerConnection) ReleasePartition(ctx context.Context, key types.PartitionKey) error {
	return c.coord.ReleasePartition(ctx, key, c.streamID)
}

// Close releases the session marker, letting the next rebalance pass hand
// this session's partitions to the remaining consumers.
func (c *ConsumerConnection) Close(ctx context.Context) error {
	return c.coord.ReleaseSession(ctx, c.session)
}
