package registry

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akinjanata/nakadi/coordination"
	"github.com/akinjanata/nakadi/types"
)

func newBase(app, group string, ets ...string) types.SubscriptionBase {
	base := types.SubscriptionBase{
		OwningApplication: app,
		EventTypes:        ets,
		ConsumerGroup:     group,
		StartFrom:         types.PositionEnd,
	}

	return base
}

func TestKVRegistry_CreateAndGet(t *testing.T) {
	reg, err := NewKVRegistry(coordination.NewMemory())
	require.NoError(t, err)
	ctx := t.Context()

	sub, err := reg.Create(ctx, newBase("gizig", "default", "order.created"))
	require.NoError(t, err)
	require.NotEmpty(t, sub.ID)
	require.False(t, sub.CreatedAt.IsZero())
	require.Equal(t, "gizig", sub.OwningApplication)

	got, err := reg.Get(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, sub.ID, got.ID)
	require.Equal(t, sub.SubscriptionBase, got.SubscriptionBase)

	t.Run("unknown id", func(t *testing.T) {
		_, err := reg.Get(ctx, "missing")
		require.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("nil store", func(t *testing.T) {
		_, err := NewKVRegistry(nil)
		require.ErrorIs(t, err, types.ErrStoreRequired)
	})
}

func TestKVRegistry_DuplicateTuple(t *testing.T) {
	reg, err := NewKVRegistry(coordination.NewMemory())
	require.NoError(t, err)
	ctx := t.Context()

	first, err := reg.Create(ctx, newBase("gizig", "default", "order.created"))
	require.NoError(t, err)

	_, err = reg.Create(ctx, newBase("gizig", "default", "order.created"))
	require.ErrorIs(t, err, types.ErrDuplicateSubscription)

	existing, err := reg.GetByTuple(ctx, newBase("gizig", "default", "order.created"))
	require.NoError(t, err)
	require.Equal(t, first.ID, existing.ID)

	// A lost race must not leave an orphaned record behind.
	subs, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	t.Run("different group is a different subscription", func(t *testing.T) {
		other, err := reg.Create(ctx, newBase("gizig", "reporting", "order.created"))
		require.NoError(t, err)
		require.NotEqual(t, first.ID, other.ID)
	})

	t.Run("different application is a different subscription", func(t *testing.T) {
		other, err := reg.Create(ctx, newBase("talor", "default", "order.created"))
		require.NoError(t, err)
		require.NotEqual(t, first.ID, other.ID)
	})
}

func TestKVRegistry_TupleIgnoresEventTypeOrder(t *testing.T) {
	reg, err := NewKVRegistry(coordination.NewMemory())
	require.NoError(t, err)
	ctx := t.Context()

	_, err = reg.Create(ctx, newBase("gizig", "default", "b.events", "a.events"))
	require.NoError(t, err)

	_, err = reg.Create(ctx, newBase("gizig", "default", "a.events", "b.events"))
	require.ErrorIs(t, err, types.ErrDuplicateSubscription)
}

func TestKVRegistry_ConcurrentCreate(t *testing.T) {
	reg, err := NewKVRegistry(coordination.NewMemory())
	require.NoError(t, err)
	ctx := t.Context()

	const racers = 16

	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = reg.Create(ctx, newBase("gizig", "default", "order.created"))
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
		} else {
			require.ErrorIs(t, err, types.ErrDuplicateSubscription)
		}
	}
	require.Equal(t, 1, created, "exactly one creation must win")

	subs, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
}

func TestKVRegistry_ListHidesUnclaimedRecords(t *testing.T) {
	store := coordination.NewMemory()
	reg, err := NewKVRegistry(store)
	require.NoError(t, err)
	ctx := t.Context()

	winner, err := reg.Create(ctx, newBase("gizig", "default", "order.created"))
	require.NoError(t, err)

	// A creation that lost the tuple claim but whose cleanup delete failed
	// (store dropped between the two writes) leaves a record with no claim.
	orphan, err := reg.Get(ctx, winner.ID)
	require.NoError(t, err)
	orphan.ID = "orphan-id"
	record, err := json.Marshal(orphan)
	require.NoError(t, err)
	_, err = store.Create(ctx, recordPrefix+"orphan-id", record)
	require.NoError(t, err)

	subs, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, winner.ID, subs[0].ID)

	owned, err := reg.ListForOwningApplication(ctx, "gizig")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, winner.ID, owned[0].ID)
}

func TestKVRegistry_List(t *testing.T) {
	reg, err := NewKVRegistry(coordination.NewMemory())
	require.NoError(t, err)
	ctx := t.Context()

	a, err := reg.Create(ctx, newBase("gizig", "default", "order.created"))
	require.NoError(t, err)
	b, err := reg.Create(ctx, newBase("gizig", "default", "order.cancelled"))
	require.NoError(t, err)
	c, err := reg.Create(ctx, newBase("talor", "default", "order.created"))
	require.NoError(t, err)

	all, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	// Oldest first, ID breaking creation-time ties.
	ids := []string{all[0].ID, all[1].ID, all[2].ID}
	require.ElementsMatch(t, []string{a.ID, b.ID, c.ID}, ids)
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		require.False(t, cur.CreatedAt.Before(prev.CreatedAt))
		if cur.CreatedAt.Equal(prev.CreatedAt) {
			require.Less(t, prev.ID, cur.ID)
		}
	}

	owned, err := reg.ListForOwningApplication(ctx, "gizig")
	require.NoError(t, err)
	require.Len(t, owned, 2)
	for _, sub := range owned {
		require.Equal(t, "gizig", sub.OwningApplication)
	}
}

func TestKVRegistry_BackendUnavailable(t *testing.T) {
	store := coordination.NewMemory()
	reg, err := NewKVRegistry(store)
	require.NoError(t, err)
	ctx := t.Context()

	store.SetUnavailable(true)

	_, err = reg.Create(ctx, newBase("gizig", "default", "order.created"))
	require.ErrorIs(t, err, types.ErrBackendUnavailable)

	_, err = reg.Get(ctx, "any")
	require.ErrorIs(t, err, types.ErrBackendUnavailable)

	_, err = reg.List(ctx)
	require.ErrorIs(t, err, types.ErrBackendUnavailable)
}
