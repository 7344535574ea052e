package nakadi

import (
	"fmt"
	"time"

	"github.com/akinjanata/nakadi/coordination"
	"github.com/akinjanata/nakadi/coordinator"
	"github.com/akinjanata/nakadi/types"
)

// Config holds the subscription service configuration.
//
// The two stores intentionally stay separate: durable subscription and
// assignment state must never expire, while session liveness markers must.
// With NATS JetStream KV, expiry is a bucket property, so the stores map to
// two buckets; with etcd, to an unleased and a leased store over the same
// cluster.
type Config struct {
	// StateStore holds durable state: subscription records, topology,
	// partition assignments, committed offsets. Required; must not expire
	// keys.
	StateStore coordination.Store `yaml:"-"`

	// SessionStore holds ephemeral consumer session markers. Required;
	// must expire keys at SessionTTL.
	SessionStore coordination.Store `yaml:"-"`

	// SessionTTL is the liveness window of a consumer session marker.
	// Default: 10s.
	SessionTTL time.Duration `yaml:"sessionTtl"`

	// AckTimeout bounds how long a partition assignment may wait for
	// acknowledgment before it is recovered. Default: 30s.
	AckTimeout time.Duration `yaml:"ackTimeout"`
}

// SetDefaults fills in defaults for unset optional fields.
func (c *Config) SetDefaults() {
	if c.SessionTTL <= 0 {
		c.SessionTTL = coordinator.DefaultSessionTTL
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = coordinator.DefaultAckTimeout
	}
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	if c.StateStore == nil {
		return fmt.Errorf("%w: state store", types.ErrStoreRequired)
	}
	if c.SessionStore == nil {
		return fmt.Errorf("%w: session store", types.ErrStoreRequired)
	}
	if c.SessionTTL < 100*time.Millisecond {
		return fmt.Errorf("%w: session TTL %v is below 100ms", types.ErrInvalidConfig, c.SessionTTL)
	}

	return nil
}
