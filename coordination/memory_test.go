package coordination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_CreateGet(t *testing.T) {
	store := NewMemory()
	ctx := t.Context()

	rev, err := store.Create(ctx, "subs.s1.topology", []byte("v1"))
	require.NoError(t, err)
	require.NotZero(t, rev)

	entry, err := store.Get(ctx, "subs.s1.topology")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), entry.Value)
	require.Equal(t, rev, entry.Revision)

	t.Run("create existing key fails", func(t *testing.T) {
		_, err := store.Create(ctx, "subs.s1.topology", []byte("v2"))
		require.ErrorIs(t, err, ErrKeyExists)
	})

	t.Run("get missing key fails", func(t *testing.T) {
		_, err := store.Get(ctx, "subs.s1.missing")
		require.ErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestMemory_Update(t *testing.T) {
	store := NewMemory()
	ctx := t.Context()

	rev, err := store.Create(ctx, "key", []byte("v1"))
	require.NoError(t, err)

	t.Run("matching revision succeeds", func(t *testing.T) {
		rev2, err := store.Update(ctx, "key", []byte("v2"), rev)
		require.NoError(t, err)
		require.Greater(t, rev2, rev)

		entry, err := store.Get(ctx, "key")
		require.NoError(t, err)
		require.Equal(t, []byte("v2"), entry.Value)
	})

	t.Run("stale revision fails", func(t *testing.T) {
		_, err := store.Update(ctx, "key", []byte("v3"), rev)
		require.ErrorIs(t, err, ErrRevisionMismatch)

		// Lost update must not be applied.
		entry, err := store.Get(ctx, "key")
		require.NoError(t, err)
		require.Equal(t, []byte("v2"), entry.Value)
	})

	t.Run("missing key fails", func(t *testing.T) {
		_, err := store.Update(ctx, "gone", []byte("v"), 1)
		require.ErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestMemory_DeleteAndKeys(t *testing.T) {
	store := NewMemory()
	ctx := t.Context()

	_, err := store.Create(ctx, "subs.s1.partitions.a", []byte("a"))
	require.NoError(t, err)
	_, err = store.Create(ctx, "subs.s1.partitions.b", []byte("b"))
	require.NoError(t, err)
	_, err = store.Create(ctx, "subs.s1.sessions.x", []byte("x"))
	require.NoError(t, err)

	keys, err := store.Keys(ctx, "subs.s1.partitions.")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"subs.s1.partitions.a", "subs.s1.partitions.b"}, keys)

	require.NoError(t, store.Delete(ctx, "subs.s1.partitions.a"))

	keys, err = store.Keys(ctx, "subs.s1.partitions.")
	require.NoError(t, err)
	require.Equal(t, []string{"subs.s1.partitions.b"}, keys)

	// Deleting an absent key is not an error.
	require.NoError(t, store.Delete(ctx, "subs.s1.partitions.a"))
}

func TestMemory_TTLExpiry(t *testing.T) {
	store := NewMemoryTTL(30 * time.Millisecond)
	ctx := t.Context()

	_, err := store.Create(ctx, "sessions.s1", []byte("alive"))
	require.NoError(t, err)

	_, err = store.Get(ctx, "sessions.s1")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, err = store.Get(ctx, "sessions.s1")
	require.ErrorIs(t, err, ErrKeyNotFound)

	t.Run("rewrite extends expiry", func(t *testing.T) {
		_, err := store.Create(ctx, "sessions.s2", []byte("alive"))
		require.NoError(t, err)

		for range 4 {
			time.Sleep(15 * time.Millisecond)
			_, err = store.Put(ctx, "sessions.s2", []byte("alive"))
			require.NoError(t, err)
		}

		_, err = store.Get(ctx, "sessions.s2")
		require.NoError(t, err)
	})
}

func TestMemory_Watch(t *testing.T) {
	store := NewMemory()
	ctx := t.Context()

	w, err := store.Watch(ctx, "subs.s1.sessions.")
	require.NoError(t, err)
	defer func() { require.NoError(t, w.Stop()) }()

	_, err = store.Create(ctx, "subs.s1.sessions.a", []byte("a"))
	require.NoError(t, err)

	// Events outside the prefix must not be delivered.
	_, err = store.Create(ctx, "subs.s1.partitions.p", []byte("p"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "subs.s1.sessions.a"))

	ev := recvEvent(t, w)
	require.Equal(t, "subs.s1.sessions.a", ev.Key)
	require.False(t, ev.Deleted)

	ev = recvEvent(t, w)
	require.Equal(t, "subs.s1.sessions.a", ev.Key)
	require.True(t, ev.Deleted)
}

func TestMemory_Unavailable(t *testing.T) {
	store := NewMemory()
	ctx := t.Context()

	_, err := store.Create(ctx, "key", []byte("v"))
	require.NoError(t, err)

	store.SetUnavailable(true)

	_, err = store.Get(ctx, "key")
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = store.Put(ctx, "key", []byte("v2"))
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = store.Keys(ctx, "")
	require.ErrorIs(t, err, ErrUnavailable)

	store.SetUnavailable(false)

	entry, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), entry.Value)
}

func recvEvent(t *testing.T, w Watcher) Event {
	t.Helper()

	select {
	case ev, ok := <-w.Updates():
		require.True(t, ok, "watch channel closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watch event")
		return Event{}
	}
}
