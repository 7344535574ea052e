package types

import (
	"slices"
	"time"
)

// InitialPosition selects where a freshly materialized subscription starts
// reading a partition: at the oldest retained offset or at the tail.
type InitialPosition string

const (
	// PositionBegin starts consumption from the oldest available offset.
	PositionBegin InitialPosition = "begin"

	// PositionEnd starts consumption from the newest offset (tail).
	// This is the default when a subscription request omits start_from.
	PositionEnd InitialPosition = "end"
)

// DefaultConsumerGroup is used when a subscription request omits the
// consumer group.
const DefaultConsumerGroup = "default"

// SubscriptionBase carries the client-supplied attributes of a subscription.
//
// The tuple (OwningApplication, EventTypes, ConsumerGroup) uniquely identifies
// a subscription: a second creation request with an identical tuple returns
// the already existing record instead of creating a new one.
type SubscriptionBase struct {
	// OwningApplication is the application that owns this subscription.
	// Required, must be non-empty.
	OwningApplication string `json:"owning_application"`

	// EventTypes names the event types to consume. Exactly one entry is
	// supported; consuming from multiple event types is intentionally
	// rejected at this stage.
	EventTypes []string `json:"event_types"`

	// ConsumerGroup groups consumer instances that share the partition set.
	// Defaults to DefaultConsumerGroup when empty.
	ConsumerGroup string `json:"consumer_group,omitempty"`

	// StartFrom is the initial read position for newly materialized
	// partitions. Defaults to PositionEnd when empty.
	StartFrom InitialPosition `json:"start_from,omitempty"`
}

// SetDefaults fills in the consumer group and initial position when absent.
func (b *SubscriptionBase) SetDefaults() {
	if b.ConsumerGroup == "" {
		b.ConsumerGroup = DefaultConsumerGroup
	}
	if b.StartFrom == "" {
		b.StartFrom = PositionEnd
	}
}

// SortedEventTypes returns the event type names in lexicographic order.
//
// The sorted form is the canonical representation used for duplicate
// detection, so that request-side ordering does not affect identity.
//
// Returns:
//   - []string: Sorted copy of EventTypes
func (b SubscriptionBase) SortedEventTypes() []string {
	ets := slices.Clone(b.EventTypes)
	slices.Sort(ets)

	return ets
}

// Subscription is a durable, named registration of one or more consumer
// instances to an event type.
//
// A Subscription is created once via the registry and never mutated
// afterwards; ID and CreatedAt are assigned at persistence time.
type Subscription struct {
	// ID is the opaque generated identifier of the subscription.
	ID string `json:"id"`

	// CreatedAt is the UTC creation timestamp, set at persistence time.
	CreatedAt time.Time `json:"created_at"`

	SubscriptionBase
}
