package sink

import (
	"context"
	"sync"

	"github.com/technocodist/aitcsm/internal/simulation"
)

// MemorySink keeps every stored batch in memory.
type MemorySink struct {
	mu      sync.Mutex
	batches [][]simulation.Snapshot
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Store(_ context.Context, batch []simulation.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	return nil
}

// Batches returns the stored batches in the order they were stored.
func (s *MemorySink) Batches() [][]simulation.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]simulation.Snapshot, len(s.batches))
	copy(out, s.batches)
	return out
}

// Snapshots returns every stored snapshot.
func (s *MemorySink) Snapshots() []simulation.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []simulation.Snapshot
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}
