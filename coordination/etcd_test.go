package coordination

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// etcdClient connects to the cluster named by NAKADI_TEST_ETCD_ENDPOINTS,
// skipping the test when the variable is unset. The etcd store is exercised
// against a real cluster only; its CAS semantics are transaction-level and
// cannot be faked meaningfully in-process.
func etcdClient(t *testing.T) *clientv3.Client {
	t.Helper()

	endpoints := os.Getenv("NAKADI_TEST_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("NAKADI_TEST_ETCD_ENDPOINTS not set")
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{endpoints},
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = cli.Delete(t.Context(), "nakadi-test.", clientv3.WithPrefix())
		_ = cli.Close()
	})

	return cli
}

func TestEtcd_CreateGetUpdate(t *testing.T) {
	store := NewEtcd(etcdClient(t))
	ctx := t.Context()

	rev, err := store.Create(ctx, "nakadi-test.topology", []byte("v1"))
	require.NoError(t, err)
	require.NotZero(t, rev)

	_, err = store.Create(ctx, "nakadi-test.topology", []byte("other"))
	require.ErrorIs(t, err, ErrKeyExists)

	entry, err := store.Get(ctx, "nakadi-test.topology")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), entry.Value)

	rev2, err := store.Update(ctx, "nakadi-test.topology", []byte("v2"), entry.Revision)
	require.NoError(t, err)
	require.Greater(t, rev2, entry.Revision)

	_, err = store.Update(ctx, "nakadi-test.topology", []byte("v3"), entry.Revision)
	require.ErrorIs(t, err, ErrRevisionMismatch)

	_, err = store.Update(ctx, "nakadi-test.missing", []byte("v"), 1)
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestEtcd_KeysAndWatch(t *testing.T) {
	store := NewEtcd(etcdClient(t))
	ctx := t.Context()

	w, err := store.Watch(ctx, "nakadi-test.sessions.")
	require.NoError(t, err)
	defer func() { require.NoError(t, w.Stop()) }()

	_, err = store.Put(ctx, "nakadi-test.sessions.a", []byte("a"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "nakadi-test.sessions.b", []byte("b"))
	require.NoError(t, err)

	keys, err := store.Keys(ctx, "nakadi-test.sessions.")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"nakadi-test.sessions.a", "nakadi-test.sessions.b"}, keys)

	ev := recvEvent(t, w)
	require.Equal(t, "nakadi-test.sessions.a", ev.Key)
	require.False(t, ev.Deleted)

	ev = recvEvent(t, w)
	require.Equal(t, "nakadi-test.sessions.b", ev.Key)

	require.NoError(t, store.Delete(ctx, "nakadi-test.sessions.a"))

	ev = recvEvent(t, w)
	require.Equal(t, "nakadi-test.sessions.a", ev.Key)
	require.True(t, ev.Deleted)
}

func TestEtcd_LeaseExpiry(t *testing.T) {
	store := NewEtcdTTL(etcdClient(t), time.Second)
	ctx := t.Context()

	_, err := store.Create(ctx, "nakadi-test.lease", []byte("alive"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := store.Get(ctx, "nakadi-test.lease")
		return err != nil
	}, 5*time.Second, 200*time.Millisecond, "leased key should expire")
}
