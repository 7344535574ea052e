package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// PartitionKey addresses one topic partition. It is the key into both the
// coordinator's assignment state and the topic engine's watermark query.
type PartitionKey struct {
	// Topic is the topic name backing the subscribed event type.
	Topic string `json:"topic"`

	// Partition is the topic engine's partition identifier.
	Partition string `json:"partition"`
}

// Compare performs a lexicographic comparison by (Topic, Partition).
//
// Returns:
//   - int: -1 if k < o, 0 if equal, +1 if k > o
func (k PartitionKey) Compare(o PartitionKey) int {
	if c := strings.Compare(k.Topic, o.Topic); c != 0 {
		return c
	}

	return strings.Compare(k.Partition, o.Partition)
}

// String returns a human-readable "topic/partition" form for logging.
func (k PartitionKey) String() string {
	return k.Topic + "/" + k.Partition
}

// Token returns a stable identifier safe for use as a single coordination
// store key segment.
//
// Topic and partition names may contain characters the store's key charset
// rejects, and a plain join is ambiguous ("a-b"+"c" vs "a"+"b-c"). The token
// therefore combines a sanitized readable form with a short hash of the exact
// pair, which keeps keys debuggable while guaranteeing uniqueness.
//
// Returns:
//   - string: Sanitized "topic-partition-xxxxxxxx" token
func (k PartitionKey) Token() string {
	h := xxh3.HashString(k.Topic + "\x00" + k.Partition)

	return fmt.Sprintf("%s-%s-%08x", sanitizeSegment(k.Topic), sanitizeSegment(k.Partition), uint32(h))
}

// Hash folds the partition key into a single 64-bit hash using the given
// seed. Used by hash-ring based assignment strategies.
func (k PartitionKey) Hash(seed uint64) uint64 {
	return xxh3.HashStringSeed(k.Topic+"\x00"+k.Partition, seed)
}

// sanitizeSegment replaces characters outside the coordination store key
// charset with underscores.
func sanitizeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// PartitionState is the per-partition assignment state.
//
// The state machine:
//
//	UNASSIGNED → ASSIGNING → ASSIGNED → REASSIGNING → ASSIGNED
//
// with fallbacks to UNASSIGNED on owner liveness loss or acknowledgment
// timeout.
type PartitionState int

const (
	// StateUnassigned means no session owns the partition.
	StateUnassigned PartitionState = iota

	// StateAssigning means a candidate session has been selected but has not
	// yet acknowledged ownership.
	StateAssigning

	// StateAssigned means a session owns the partition and may commit
	// offsets for it.
	StateAssigned

	// StateReassigning means a rebalance selected a new owner while the
	// prior owner is still draining.
	StateReassigning
)

// partitionStateNames maps states to their wire labels.
var partitionStateNames = map[PartitionState]string{
	StateUnassigned:  "unassigned",
	StateAssigning:   "assigning",
	StateAssigned:    "assigned",
	StateReassigning: "reassigning",
}

// validPartitionTransitions defines the allowed state transitions.
var validPartitionTransitions = map[PartitionState][]PartitionState{
	StateUnassigned:  {StateAssigning},
	StateAssigning:   {StateAssigned, StateUnassigned},
	StateAssigned:    {StateReassigning, StateUnassigned},
	StateReassigning: {StateAssigned, StateUnassigned},
}

// String returns the wire label of the state ("assigned", "unassigned", ...).
func (s PartitionState) String() string {
	if name, ok := partitionStateNames[s]; ok {
		return name
	}

	return "unknown"
}

// CanTransition reports whether moving from s to the target state is a legal
// state machine transition.
func (s PartitionState) CanTransition(to PartitionState) bool {
	for _, allowed := range validPartitionTransitions[s] {
		if allowed == to {
			return true
		}
	}

	return false
}

// MarshalJSON encodes the state as its wire label.
func (s PartitionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state from its wire label.
func (s *PartitionState) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}

	for state, name := range partitionStateNames {
		if name == label {
			*s = state
			return nil
		}
	}

	return fmt.Errorf("unknown partition state %q", label)
}

// Partition is the assignment record for one PartitionKey under a
// subscription.
//
// Exactly one session owns the partition at a time once assigned. During a
// reassignment between two live sessions, SessionID is the draining prior
// owner and NextSessionID the incoming one.
type Partition struct {
	// Key addresses the topic partition this record describes.
	Key PartitionKey `json:"key"`

	// SessionID is the session currently responsible, empty when unowned.
	SessionID string `json:"session,omitempty"`

	// NextSessionID is the session a reassignment is handing the partition
	// to, empty when no reassignment is in flight.
	NextSessionID string `json:"next_session,omitempty"`

	// State is the assignment state machine position.
	State PartitionState `json:"state"`

	// AssignedAt records when the current ASSIGNING/REASSIGNING phase
	// started; used for acknowledgment timeout recovery.
	AssignedAt time.Time `json:"assigned_at,omitempty"`
}

// EffectiveOwner returns the session the partition is destined for: the next
// session while a reassignment is in flight, the current owner otherwise.
func (p Partition) EffectiveOwner() string {
	if p.State == StateReassigning && p.NextSessionID != "" {
		return p.NextSessionID
	}

	return p.SessionID
}
