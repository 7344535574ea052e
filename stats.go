package nakadi

import "github.com/akinjanata/nakadi/types"

// partitionView joins one partition's assignment record with its committed
// offset and the topic's newest offset at query time.
type partitionView struct {
	partition types.Partition
	committed int64
	newest    int64
}

// aggregateStats derives the stats entry of one event type from a snapshot of
// its partitions. Pure; the store and topic engine reads happen in the caller.
//
// Lag is newest minus committed, clamped to zero: a committed offset can sit
// ahead of a watermark read moments earlier, and a negative lag would read as
// an overflowed counter downstream.
func aggregateStats(eventType string, views []partitionView) (types.SubscriptionEventTypeStats, int64) {
	stats := types.SubscriptionEventTypeStats{
		EventType:  eventType,
		Partitions: make([]types.PartitionStats, 0, len(views)),
	}

	var totalLag int64
	for _, v := range views {
		lag := v.newest - v.committed
		if lag < 0 {
			lag = 0
		}
		totalLag += lag

		stats.Partitions = append(stats.Partitions, types.PartitionStats{
			Partition:        v.partition.Key.Partition,
			State:            v.partition.State.String(),
			UnconsumedEvents: lag,
			StreamID:         v.partition.SessionID,
		})
	}

	return stats, totalLag
}
