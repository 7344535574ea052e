// Package registry persists subscription records.
//
// The KV-backed registry stores each subscription twice: a record keyed by
// its generated ID, and a pointer keyed by the digest of its uniqueness
// tuple (owning application, consumer group, sorted event types). Creation
// claims the digest key atomically, so two racing requests with the same
// tuple resolve to a single surviving record and the loser observes
// types.ErrDuplicateSubscription.
package registry
