package nakadi

import "github.com/akinjanata/nakadi/types"

// Re-export types from the types subpackage.
//
// This file provides a stable public API for the library's core types and
// interfaces. It uses type aliases to re-export definitions from the `types`
// subpackage, which contains the actual implementations.
//
// This pattern solves the "import cycle" problem by allowing internal
// packages to depend on `types` without depending on the root `nakadi`
// package, while still providing a convenient `nakadi.Subscription`,
// `nakadi.Logger`, etc. for users.
type (
	Subscription               = types.Subscription
	SubscriptionBase           = types.SubscriptionBase
	PartitionKey               = types.PartitionKey
	Partition                  = types.Partition
	PartitionState             = types.PartitionState
	InitialPosition            = types.InitialPosition
	EventType                  = types.EventType
	TopicPartition             = types.TopicPartition
	Client                     = types.Client
	SubscriptionEventTypeStats = types.SubscriptionEventTypeStats
	PartitionStats             = types.PartitionStats
)

// Re-export interfaces from the types subpackage for convenience.
type (
	AssignmentStrategy  = types.AssignmentStrategy
	EventTypeRegistry   = types.EventTypeRegistry
	ApplicationRegistry = types.ApplicationRegistry
	TopicRepository     = types.TopicRepository
	MetricsCollector    = types.MetricsCollector
	Logger              = types.Logger
)

// Re-export constants from the types subpackage.
const (
	PositionBegin = types.PositionBegin
	PositionEnd   = types.PositionEnd

	DefaultConsumerGroup = types.DefaultConsumerGroup

	StateUnassigned  = types.StateUnassigned
	StateAssigning   = types.StateAssigning
	StateAssigned    = types.StateAssigned
	StateReassigning = types.StateReassigning
)
