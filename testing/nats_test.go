package testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartEmbeddedNATS(t *testing.T) {
	ns, nc := StartEmbeddedNATS(t)

	require.NotNil(t, ns)
	require.NotNil(t, nc)
	require.True(t, nc.IsConnected())

	// Verify server is running
	require.True(t, ns.ReadyForConnections(1*time.Second))
}

// TestStartEmbeddedNATS_ParallelTests verifies parallel test execution.
func TestStartEmbeddedNATS_ParallelTests(t *testing.T) {
	t.Parallel()

	// Run multiple tests in parallel to verify no port conflicts
	for range 5 {
		t.Run("parallel", func(t *testing.T) {
			t.Parallel()

			_, nc := StartEmbeddedNATS(t)
			require.NotNil(t, nc)
			require.True(t, nc.IsConnected())
		})
	}
}

func TestCreateJetStreamKV(t *testing.T) {
	_, nc := StartEmbeddedNATS(t)

	t.Run("durable bucket", func(t *testing.T) {
		kv := CreateJetStreamKV(t, nc, "durable-bucket", 0)
		require.NotNil(t, kv)

		status, err := kv.Status(t.Context())
		require.NoError(t, err)
		require.Equal(t, "durable-bucket", status.Bucket())
		require.Equal(t, time.Duration(0), status.TTL())
	})

	t.Run("expiring bucket", func(t *testing.T) {
		kv := CreateJetStreamKV(t, nc, "session-bucket", time.Second)
		require.NotNil(t, kv)

		status, err := kv.Status(t.Context())
		require.NoError(t, err)
		require.Equal(t, time.Second, status.TTL())
	})
}
