package types

import "context"

// EventType describes a registered event type as seen by this library:
// its name, the backing topic, and the scopes required to read from it.
//
// The event type registry itself (schemas, validation configuration,
// lifecycle) lives outside this library; only the lookup is consumed here.
type EventType struct {
	// Name is the unique event type name.
	Name string `json:"name"`

	// Topic is the topic engine's topic backing this event type.
	Topic string `json:"topic"`

	// ReadScopes lists authorization scopes a client must hold to consume
	// this event type. Empty means unrestricted.
	ReadScopes []string `json:"read_scopes,omitempty"`
}

// TopicPartition carries the watermarks of one topic partition as reported
// by the topic engine. Offsets are the engine's decimal tokens.
type TopicPartition struct {
	// Topic is the topic name.
	Topic string `json:"topic"`

	// Partition is the partition identifier.
	Partition string `json:"partition"`

	// OldestOffset is the oldest retained offset (low watermark).
	OldestOffset int64 `json:"oldest_available_offset"`

	// NewestOffset is the most recently written offset (high watermark).
	NewestOffset int64 `json:"newest_available_offset"`
}

// EventTypeRegistry resolves event types by name.
//
// Implementations query the broker's event type store. FindByName returns
// ErrNotFound (possibly wrapped) when the event type does not exist, and
// ErrBackendUnavailable when the store cannot be reached.
type EventTypeRegistry interface {
	FindByName(ctx context.Context, name string) (*EventType, error)
}

// ApplicationRegistry answers whether an owning application is known.
type ApplicationRegistry interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// TopicRepository is the narrow slice of the topic storage engine consumed
// by this library: partition discovery and watermark queries.
//
// Implementations must surface connectivity loss as ErrBackendUnavailable
// rather than fabricating values; the stats aggregation depends on it.
type TopicRepository interface {
	// ListPartitions returns the partition identifiers of a topic.
	ListPartitions(ctx context.Context, topic string) ([]string, error)

	// GetPartition returns the current watermarks of one partition.
	GetPartition(ctx context.Context, topic, partition string) (TopicPartition, error)
}

// Client identifies the caller of a service operation together with the
// authorization scopes granted upstream. This library does not implement
// scope checking beyond comparing granted scopes with an event type's
// required read scopes.
type Client struct {
	// ID is the client identifier, used only for logging.
	ID string

	// Scopes are the granted authorization scopes.
	Scopes []string
}

// MissingScopes returns the required scopes the client does not hold,
// preserving the order of required.
func (c Client) MissingScopes(required []string) []string {
	if len(required) == 0 {
		return nil
	}

	granted := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		granted[s] = struct{}{}
	}

	var missing []string
	for _, s := range required {
		if _, ok := granted[s]; !ok {
			missing = append(missing, s)
		}
	}

	return missing
}
