package registry

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/akinjanata/nakadi/coordination"
	"github.com/akinjanata/nakadi/types"
)

const (
	recordPrefix = "subscriptions.id."
	tuplePrefix  = "subscriptions.key."
)

// KVRegistry stores subscription records in a coordination store.
type KVRegistry struct {
	store coordination.Store
}

// NewKVRegistry creates a registry over the given durable store.
//
// Parameters:
//   - store: Durable (non-TTL) coordination store
//
// Returns:
//   - *KVRegistry: Initialized registry
//   - error: types.ErrStoreRequired when store is nil
func NewKVRegistry(store coordination.Store) (*KVRegistry, error) {
	if store == nil {
		return nil, types.ErrStoreRequired
	}

	return &KVRegistry{store: store}, nil
}

// Create persists a new subscription for the given attributes.
//
// The ID and creation timestamp are assigned here. When a subscription with
// the same uniqueness tuple already exists, no record is written and
// types.ErrDuplicateSubscription is returned; callers resolve the existing
// record via GetByTuple.
//
// Parameters:
//   - ctx: Context for cancellation
//   - base: Client-supplied attributes, already defaulted and validated
//
// Returns:
//   - types.Subscription: The persisted record
//   - error: types.ErrDuplicateSubscription on a tuple collision,
//     types.ErrBackendUnavailable when the store is unreachable
func (r *KVRegistry) Create(ctx context.Context, base types.SubscriptionBase) (types.Subscription, error) {
	sub := types.Subscription{
		ID:               uuid.NewString(),
		CreatedAt:        time.Now().UTC(),
		SubscriptionBase: base,
	}

	record, err := json.Marshal(sub)
	if err != nil {
		return types.Subscription{}, fmt.Errorf("marshal subscription: %w", err)
	}

	recordKey := recordPrefix + sub.ID
	if _, err := r.store.Create(ctx, recordKey, record); err != nil {
		return types.Subscription{}, mapStoreError(err)
	}

	// Claim the tuple digest. Losing the claim means another creation with
	// the same tuple won; remove the now orphaned record.
	if _, err := r.store.Create(ctx, tuplePrefix+tupleDigest(base), []byte(sub.ID)); err != nil {
		_ = r.store.Delete(ctx, recordKey)

		if errors.Is(err, coordination.ErrKeyExists) {
			return types.Subscription{}, types.ErrDuplicateSubscription
		}

		return types.Subscription{}, mapStoreError(err)
	}

	return sub, nil
}

// Get returns the subscription with the given ID.
func (r *KVRegistry) Get(ctx context.Context, id string) (types.Subscription, error) {
	entry, err := r.store.Get(ctx, recordPrefix+id)
	if err != nil {
		if errors.Is(err, coordination.ErrKeyNotFound) {
			return types.Subscription{}, fmt.Errorf("subscription %s: %w", id, types.ErrNotFound)
		}

		return types.Subscription{}, mapStoreError(err)
	}

	return decodeRecord(entry.Value)
}

// GetByTuple returns the subscription matching the uniqueness tuple of the
// given attributes, or types.ErrNotFound.
func (r *KVRegistry) GetByTuple(ctx context.Context, base types.SubscriptionBase) (types.Subscription, error) {
	entry, err := r.store.Get(ctx, tuplePrefix+tupleDigest(base))
	if err != nil {
		if errors.Is(err, coordination.ErrKeyNotFound) {
			return types.Subscription{}, types.ErrNotFound
		}

		return types.Subscription{}, mapStoreError(err)
	}

	return r.Get(ctx, string(entry.Value))
}

// List returns all subscriptions, oldest first (ties broken by ID).
func (r *KVRegistry) List(ctx context.Context) ([]types.Subscription, error) {
	return r.list(ctx, func(types.Subscription) bool { return true })
}

// ListForOwningApplication returns the subscriptions owned by the given
// application, oldest first.
func (r *KVRegistry) ListForOwningApplication(ctx context.Context, owningApplication string) ([]types.Subscription, error) {
	return r.list(ctx, func(sub types.Subscription) bool {
		return sub.OwningApplication == owningApplication
	})
}

func (r *KVRegistry) list(ctx context.Context, keep func(types.Subscription) bool) ([]types.Subscription, error) {
	claimed, err := r.claimedIDs(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := r.store.Keys(ctx, recordPrefix)
	if err != nil {
		return nil, mapStoreError(err)
	}

	subs := make([]types.Subscription, 0, len(keys))
	for _, key := range keys {
		entry, err := r.store.Get(ctx, key)
		if err != nil {
			// A record deleted between listing and reading is not an error.
			if errors.Is(err, coordination.ErrKeyNotFound) {
				continue
			}

			return nil, mapStoreError(err)
		}

		sub, err := decodeRecord(entry.Value)
		if err != nil {
			return nil, err
		}
		// Only records holding their tuple claim are live: a record whose
		// creation lost the claim race but could not be cleaned up must
		// never surface as a duplicate.
		if _, ok := claimed[sub.ID]; !ok {
			continue
		}
		if keep(sub) {
			subs = append(subs, sub)
		}
	}

	slices.SortFunc(subs, func(a, b types.Subscription) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return subs, nil
}

// claimedIDs returns the set of subscription IDs referenced by the tuple
// index, i.e. the IDs whose creation won its uniqueness claim.
func (r *KVRegistry) claimedIDs(ctx context.Context) (map[string]struct{}, error) {
	keys, err := r.store.Keys(ctx, tuplePrefix)
	if err != nil {
		return nil, mapStoreError(err)
	}

	ids := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		entry, err := r.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, coordination.ErrKeyNotFound) {
				continue
			}

			return nil, mapStoreError(err)
		}

		ids[string(entry.Value)] = struct{}{}
	}

	return ids, nil
}

// tupleDigest computes the canonical digest of the uniqueness tuple. Event
// types enter in sorted order so request-side ordering does not change
// identity; NUL separators keep adjacent fields from colliding.
func tupleDigest(base types.SubscriptionBase) string {
	var sb strings.Builder
	sb.WriteString(base.OwningApplication)
	sb.WriteByte(0)
	sb.WriteString(base.ConsumerGroup)
	sb.WriteByte(0)
	for _, et := range base.SortedEventTypes() {
		sb.WriteString(et)
		sb.WriteByte(0)
	}

	sum := xxh3.Hash128([]byte(sb.String())).Bytes()

	return hex.EncodeToString(sum[:])
}

func decodeRecord(value []byte) (types.Subscription, error) {
	var sub types.Subscription
	if err := json.Unmarshal(value, &sub); err != nil {
		return types.Subscription{}, fmt.Errorf("decode subscription record: %w", err)
	}

	return sub, nil
}

func mapStoreError(err error) error {
	if errors.Is(err, coordination.ErrUnavailable) {
		return fmt.Errorf("%w: %w", types.ErrBackendUnavailable, err)
	}

	return err
}
