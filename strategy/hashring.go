package strategy

import (
	"errors"

	"github.com/akinjanata/nakadi/internal/hash"
	"github.com/akinjanata/nakadi/types"
)

// HashRing implements consistent-hash partition assignment with virtual nodes.
type HashRing struct {
	virtualNodes int
	hashSeed     uint64
}

var _ types.AssignmentStrategy = (*HashRing)(nil)

// HashRingOption configures a HashRing strategy.
type HashRingOption func(*HashRing)

// NewHashRing creates a new consistent hash strategy.
//
// The strategy places sessions on a hash ring with virtual nodes and assigns
// each partition to the nearest clockwise node of its key hash. A partition
// maps to the same session regardless of assignment history, so ownership
// survives consumer reconnects without coordination state.
//
// Parameters:
//   - opts: Optional configuration (WithVirtualNodes, WithHashSeed)
//
// Returns:
//   - *HashRing: Initialized consistent hash strategy
//
// Example:
//
//	strategy := strategy.NewHashRing(
//	    strategy.WithVirtualNodes(300),
//	)
func NewHashRing(opts ...HashRingOption) *HashRing {
	hr := &HashRing{
		virtualNodes: 150, // default
		hashSeed:     0,
	}

	for _, opt := range opts {
		opt(hr)
	}

	return hr
}

// WithVirtualNodes sets the number of virtual nodes per session.
//
// Higher values provide better distribution but increase ring build cost.
// Recommended range: 100-300 (default: 150).
func WithVirtualNodes(nodes int) HashRingOption {
	return func(hr *HashRing) {
		hr.virtualNodes = nodes
	}
}

// WithHashSeed sets a custom hash seed for ring placement.
func WithHashSeed(seed uint64) HashRingOption {
	return func(hr *HashRing) {
		hr.hashSeed = seed
	}
}

// Assign calculates partition assignments using consistent hashing.
//
// Current ownership is ignored: placement depends only on the key hash and
// the set of live sessions, which already minimizes movement when sessions
// join or leave.
//
// Parameters:
//   - sessions: IDs of the live consumer sessions
//   - partitions: Keys of all partitions of the subscription
//   - current: Ignored
//
// Returns:
//   - map[types.PartitionKey]string: Target owner session per partition
//   - error: ErrNoSessions when no sessions were provided
func (hr *HashRing) Assign(sessions []string, partitions []types.PartitionKey, _ map[types.PartitionKey]string) (map[types.PartitionKey]string, error) {
	if len(sessions) == 0 {
		return nil, ErrNoSessions
	}

	ring := hash.NewRing(sortedUnique(sessions), hr.virtualNodes, hr.hashSeed)

	target := make(map[types.PartitionKey]string, len(partitions))
	for _, key := range partitions {
		session := ring.NodeFor(key)
		if session == "" {
			// Cannot happen with a non-empty session list.
			return nil, errors.New("hash ring returned empty session")
		}
		target[key] = session
	}

	return target, nil
}
