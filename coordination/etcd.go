package coordination

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Etcd implements Store on top of an etcd v3 cluster.
//
// Atomic create and compare-and-swap update map onto etcd transactions
// comparing create/mod revisions. Ephemeral semantics use a lease per write:
// a store constructed with a TTL attaches a fresh lease to every write, so a
// key disappears when its owner stops rewriting it, mirroring the TTL-bucket
// behavior of the KV implementation.
type Etcd struct {
	cli *clientv3.Client
	ttl time.Duration
}

// Compile-time assertion that Etcd implements Store.
var _ Store = (*Etcd)(nil)

// NewEtcd returns a Store over an etcd client without key expiry, for
// durable state.
func NewEtcd(cli *clientv3.Client) *Etcd {
	return NewEtcdTTL(cli, 0)
}

// NewEtcdTTL returns a Store over an etcd client whose writes carry a lease
// of the given TTL (0 disables leasing). etcd enforces a minimum lease TTL
// of one second.
func NewEtcdTTL(cli *clientv3.Client, ttl time.Duration) *Etcd {
	return &Etcd{cli: cli, ttl: ttl}
}

// Get reads a key.
func (s *Etcd) Get(ctx context.Context, key string) (Entry, error) {
	resp, err := s.cli.Get(ctx, key)
	if err != nil {
		return Entry{}, s.mapError("get", key, err)
	}
	if len(resp.Kvs) == 0 {
		return Entry{}, ErrKeyNotFound
	}

	kv := resp.Kvs[0]

	return Entry{Key: key, Value: kv.Value, Revision: uint64(kv.ModRevision)}, nil
}

// Create atomically creates a key that must not exist yet.
func (s *Etcd) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	op, err := s.putOp(ctx, key, value)
	if err != nil {
		return 0, s.mapError("create", key, err)
	}

	resp, err := s.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(op).
		Commit()
	if err != nil {
		return 0, s.mapError("create", key, err)
	}
	if !resp.Succeeded {
		return 0, ErrKeyExists
	}

	return uint64(resp.Header.Revision), nil
}

// Update writes a key only if its revision still matches.
func (s *Etcd) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	op, err := s.putOp(ctx, key, value)
	if err != nil {
		return 0, s.mapError("update", key, err)
	}

	resp, err := s.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", int64(revision))). //nolint:gosec // revisions originate from etcd
		Then(op).
		Commit()
	if err != nil {
		return 0, s.mapError("update", key, err)
	}
	if !resp.Succeeded {
		// Distinguish a lost race from a missing key.
		if _, err := s.Get(ctx, key); err != nil {
			return 0, err
		}

		return 0, ErrRevisionMismatch
	}

	return uint64(resp.Header.Revision), nil
}

// Put writes a key unconditionally.
func (s *Etcd) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	op, err := s.putOp(ctx, key, value)
	if err != nil {
		return 0, s.mapError("put", key, err)
	}

	resp, err := s.cli.Do(ctx, op)
	if err != nil {
		return 0, s.mapError("put", key, err)
	}

	return uint64(resp.Put().Header.Revision), nil
}

// Delete removes a key.
func (s *Etcd) Delete(ctx context.Context, key string) error {
	if _, err := s.cli.Delete(ctx, key); err != nil {
		return s.mapError("delete", key, err)
	}

	return nil
}

// Keys lists all keys with the given prefix.
func (s *Etcd) Keys(ctx context.Context, prefix string) ([]string, error) {
	resp, err := s.cli.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, s.mapError("keys", prefix, err)
	}

	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, string(kv.Key))
	}

	return keys, nil
}

// Watch registers a change watch for all keys under the given prefix.
func (s *Etcd) Watch(ctx context.Context, prefix string) (Watcher, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	wch := s.cli.Watch(watchCtx, prefix, clientv3.WithPrefix())

	w := &etcdWatcher{cancel: cancel, ch: make(chan Event, 16)}
	go w.run(wch)

	return w, nil
}

// putOp builds a put operation, attaching a fresh lease when the store is
// TTL-scoped.
func (s *Etcd) putOp(ctx context.Context, key string, value []byte) (clientv3.Op, error) {
	if s.ttl <= 0 {
		return clientv3.OpPut(key, string(value)), nil
	}

	seconds := int64(s.ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	lease, err := s.cli.Grant(ctx, seconds)
	if err != nil {
		return clientv3.Op{}, fmt.Errorf("lease grant: %w", err)
	}

	return clientv3.OpPut(key, string(value), clientv3.WithLease(lease.ID)), nil
}

// mapError wraps etcd client failures as ErrUnavailable. The etcd client
// surfaces logical conditions through response values, so errors reaching
// this point are connectivity or cluster availability problems.
func (s *Etcd) mapError(op, key string, err error) error {
	return fmt.Errorf("%s %s: %w: %w", op, key, ErrUnavailable, err)
}

// etcdWatcher adapts an etcd watch channel to the Watcher interface.
type etcdWatcher struct {
	cancel context.CancelFunc
	ch     chan Event
}

func (w *etcdWatcher) run(wch clientv3.WatchChan) {
	defer close(w.ch)

	for resp := range wch {
		if err := resp.Err(); err != nil {
			continue
		}
		for _, ev := range resp.Events {
			out := Event{
				Entry: Entry{
					Key:      string(ev.Kv.Key),
					Value:    ev.Kv.Value,
					Revision: uint64(ev.Kv.ModRevision),
				},
				Deleted: ev.Type == clientv3.EventTypeDelete,
			}
			w.ch <- out
		}
	}
}

// Updates returns the event channel.
func (w *etcdWatcher) Updates() <-chan Event {
	return w.ch
}

// Stop terminates the watch.
func (w *etcdWatcher) Stop() error {
	w.cancel()

	return nil
}
