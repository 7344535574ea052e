package topics

import (
	"context"
	"fmt"
	"sync"

	"github.com/akinjanata/nakadi/types"
)

// Static implements a topic repository with a fixed topology.
//
// Watermarks can be advanced at runtime to simulate event arrival and
// retention, which is useful for testing lag reporting and initial position
// seeding.
type Static struct {
	mu         sync.RWMutex
	partitions map[string][]string
	watermarks map[string]types.TopicPartition
}

var _ types.TopicRepository = (*Static)(nil)

// NewStatic creates an empty static topic repository.
//
// Returns:
//   - *Static: Initialized repository; populate it with AddPartition
//
// Example:
//
//	repo := topics.NewStatic()
//	repo.AddPartition("orders", "0", 0, 120)
//	repo.AddPartition("orders", "1", 0, 87)
func NewStatic() *Static {
	return &Static{
		partitions: make(map[string][]string),
		watermarks: make(map[string]types.TopicPartition),
	}
}

// AddPartition registers a partition with its initial watermarks. Adding an
// existing partition replaces its watermarks.
func (s *Static) AddPartition(topic, partition string, oldest, newest int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := topic + "/" + partition
	if _, ok := s.watermarks[key]; !ok {
		s.partitions[topic] = append(s.partitions[topic], partition)
	}
	s.watermarks[key] = types.TopicPartition{
		Topic:        topic,
		Partition:    partition,
		OldestOffset: oldest,
		NewestOffset: newest,
	}
}

// Append advances the newest offset of a partition by n events.
func (s *Static) Append(topic, partition string, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := topic + "/" + partition
	tp, ok := s.watermarks[key]
	if !ok {
		return
	}

	tp.NewestOffset += n
	s.watermarks[key] = tp
}

// ListPartitions returns the partition identifiers of a topic.
func (s *Static) ListPartitions(_ context.Context, topic string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	partitions, ok := s.partitions[topic]
	if !ok {
		return nil, fmt.Errorf("topic %s: %w", topic, types.ErrNotFound)
	}

	result := make([]string, len(partitions))
	copy(result, partitions)

	return result, nil
}

// GetPartition returns the current watermarks of one partition.
func (s *Static) GetPartition(_ context.Context, topic, partition string) (types.TopicPartition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tp, ok := s.watermarks[topic+"/"+partition]
	if !ok {
		return types.TopicPartition{}, fmt.Errorf("partition %s/%s: %w", topic, partition, types.ErrNotFound)
	}

	return tp, nil
}
