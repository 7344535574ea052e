package coordination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSession_Lifecycle(t *testing.T) {
	store := NewMemoryTTL(90 * time.Millisecond)
	ctx := t.Context()

	sess, err := NewSession(SessionConfig{
		Store: store,
		Key:   "subs.s1.sessions.consumer-1",
		Value: []byte(`{"stream_id":"consumer-1"}`),
		TTL:   90 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, sess.Start(ctx))

	// Renewal at TTL/3 keeps the marker alive well past the TTL.
	time.Sleep(300 * time.Millisecond)

	entry, err := store.Get(ctx, sess.Key())
	require.NoError(t, err)
	require.Equal(t, []byte(`{"stream_id":"consumer-1"}`), entry.Value)

	require.NoError(t, sess.Release(ctx))

	_, err = store.Get(ctx, sess.Key())
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestSession_StartTwice(t *testing.T) {
	store := NewMemoryTTL(time.Second)
	ctx := t.Context()

	sess, err := NewSession(SessionConfig{
		Store: store,
		Key:   "subs.s1.sessions.consumer-1",
		TTL:   time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, sess.Start(ctx))
	require.ErrorIs(t, sess.Start(ctx), ErrSessionStarted)

	require.NoError(t, sess.Release(ctx))
	require.ErrorIs(t, sess.Release(ctx), ErrSessionNotStarted)
}

func TestSession_DuplicateMarker(t *testing.T) {
	store := NewMemoryTTL(time.Second)
	ctx := t.Context()

	first, err := NewSession(SessionConfig{
		Store: store,
		Key:   "subs.s1.sessions.consumer-1",
		TTL:   time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, first.Start(ctx))
	defer func() { require.NoError(t, first.Release(ctx)) }()

	second, err := NewSession(SessionConfig{
		Store: store,
		Key:   "subs.s1.sessions.consumer-1",
		TTL:   time.Second,
	})
	require.NoError(t, err)

	err = second.Start(ctx)
	require.ErrorIs(t, err, ErrKeyExists)
}

func TestSession_ConfigValidation(t *testing.T) {
	store := NewMemory()

	tests := []struct {
		name string
		cfg  SessionConfig
	}{
		{name: "missing store", cfg: SessionConfig{Key: "k", TTL: time.Second}},
		{name: "missing key", cfg: SessionConfig{Store: store, TTL: time.Second}},
		{name: "zero TTL", cfg: SessionConfig{Store: store, Key: "k"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(tt.cfg)
			require.Error(t, err)
		})
	}
}
