// Package hash implements the consistent hash ring backing the hash ring
// assignment strategy.
package hash

import (
	"encoding/binary"
	"slices"

	"github.com/zeebo/xxh3"

	"github.com/akinjanata/nakadi/types"
)

// Ring places consumer sessions on a consistent hash ring.
//
// Each session contributes a fixed number of virtual nodes; a partition key
// lands on the first node at or past its own hash, walking clockwise. Because
// node positions depend only on session IDs and the seed, adding or removing
// one session relocates only the keys adjacent to that session's nodes, and
// independently built rings over the same sessions agree on every placement.
type Ring struct {
	nodes    []virtualNode // sorted by hash
	sessions []string      // unique session IDs, input order
	seed     uint64        // 0 means unseeded
}

// virtualNode is one ring position owned by a session.
type virtualNode struct {
	hash      uint64
	sessionID string
}

// NewRing builds a ring over the given sessions. Duplicate session IDs are
// ignored after their first occurrence.
//
// Parameters:
//   - sessions: Session IDs to place on the ring
//   - virtualNodesPerSession: Ring positions per session; more positions
//     smooth the distribution at the cost of memory and build time
//   - seed: Hash seed shared by every instance computing the same ring
//     (0 for unseeded hashing)
//
// Returns:
//   - *Ring: Initialized hash ring
func NewRing(sessions []string, virtualNodesPerSession int, seed uint64) *Ring {
	ring := &Ring{
		nodes: make([]virtualNode, 0, len(sessions)*virtualNodesPerSession),
		seed:  seed,
	}

	seen := make(map[string]struct{}, len(sessions))
	uniq := make([]string, 0, len(sessions))
	for _, s := range sessions {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		uniq = append(uniq, s)
	}
	ring.sessions = uniq

	for _, sessionID := range ring.sessions {
		ring.addSession(sessionID, virtualNodesPerSession)
	}

	slices.SortFunc(ring.nodes, func(a, b virtualNode) int {
		switch {
		case a.hash < b.hash:
			return -1
		case a.hash > b.hash:
			return 1
		default:
			return 0
		}
	})

	return ring
}

// NodeFor returns the session responsible for a partition key: the owner of
// the first node at or past the key's hash, wrapping to the start of the
// ring when the hash lies beyond the last node.
//
// Returns "" when the ring holds no sessions.
func (r *Ring) NodeFor(key types.PartitionKey) string {
	if len(r.nodes) == 0 {
		return ""
	}

	return r.nodeByHash(key.Hash(r.seed))
}

// Sessions returns a copy of the unique session IDs on the ring.
func (r *Ring) Sessions() []string {
	return append([]string(nil), r.sessions...)
}

// Size returns the total number of virtual nodes on the ring.
func (r *Ring) Size() int {
	return len(r.nodes)
}

func (r *Ring) nodeByHash(h uint64) string {
	idx, found := slices.BinarySearchFunc(r.nodes, h, func(node virtualNode, target uint64) int {
		switch {
		case node.hash < target:
			return -1
		case node.hash > target:
			return 1
		default:
			return 0
		}
	})

	if !found && idx >= len(r.nodes) {
		idx = 0
	}

	return r.nodes[idx].sessionID
}

// addSession appends the session's virtual nodes. Node hashes fold the
// session ID first and the node index second, chaining through the hash
// state instead of allocating a concatenated string per node.
func (r *Ring) addSession(sessionID string, virtualNodes int) {
	for i := range virtualNodes {
		var h uint64
		if r.seed != 0 {
			h = xxh3.HashStringSeed(sessionID, r.seed)
		} else {
			h = xxh3.HashString(sessionID)
		}

		var ib [8]byte
		binary.LittleEndian.PutUint64(ib[:], uint64(i)) //nolint:gosec
		h = xxh3.HashSeed(ib[:], h)

		r.nodes = append(r.nodes, virtualNode{hash: h, sessionID: sessionID})
	}
}
