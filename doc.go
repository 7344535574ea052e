// Package nakadi implements the consumer-group layer of an event broker:
// durable subscriptions, partition assignment across consumer sessions, and
// consumption statistics.
//
// A Subscription registers one or more consumer instances of an application
// to an event type. Consumers connect under a subscription and receive an
// exclusive slice of the topic's partitions; the partition assignment state
// lives in a coordination store (NATS JetStream KV, etcd, or in-memory) and
// is rebalanced deterministically as sessions join and leave. Offset commits
// are owner-checked and monotonic, so a partition's consumption progress
// never regresses.
//
// # Quick Start
//
//	import (
//	    "github.com/akinjanata/nakadi"
//	    "github.com/akinjanata/nakadi/coordination"
//	    "github.com/akinjanata/nakadi/registry"
//	)
//
//	state, _ := coordination.NewNATSKV(ctx, js, coordination.NATSKVConfig{Bucket: "subscriptions"})
//	sessions, _ := coordination.NewNATSKV(ctx, js, coordination.NATSKVConfig{Bucket: "sessions", TTL: 10 * time.Second})
//
//	reg, _ := registry.NewKVRegistry(state)
//	svc, _ := nakadi.NewService(nakadi.Config{
//	    StateStore:   state,
//	    SessionStore: sessions,
//	}, reg, eventTypes, applications, topics)
//
//	sub, created, err := svc.CreateSubscription(ctx, client, nakadi.SubscriptionBase{
//	    OwningApplication: "order-service",
//	    EventTypes:        []string{"order.created"},
//	})
//
// Creation is idempotent: a second request with the same owning application,
// event types, and consumer group returns the existing record with
// created=false.
//
// # Consuming
//
// A consumer connects with a stream ID, which materializes the partition set
// on first connection and triggers a rebalance:
//
//	conn, err := svc.ConnectConsumer(ctx, sub.ID, "stream-1")
//	defer conn.Close(ctx)
//
//	for _, p := range partitions {
//	    conn.AckAssignment(ctx, p.Key)
//	    ...
//	    conn.CommitOffset(ctx, p.Key, offset)
//	}
//
// # Collaborators
//
// The service consumes narrow interfaces for everything outside its scope:
// the event type registry, the application registry, and the topic storage
// engine (types.EventTypeRegistry, types.ApplicationRegistry,
// types.TopicRepository). Authorization decisions are made upstream; the
// service only compares granted scopes against an event type's read scopes.
package nakadi
