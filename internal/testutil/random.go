package testutil

import "sync"

// SequenceSource replays a fixed list of values in [0, 1), cycling when it
// runs out. It satisfies random.Source.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceSource struct {
	mu     sync.Mutex
	values []float64
	idx    int
}

// NewSequenceSource creates a source returning values in order.
// With no values it always returns 0.
func NewSequenceSource(values ...float64) *SequenceSource {
	return &SequenceSource{values: values}
}

// Float64 returns the next value.
func (s *SequenceSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.idx%len(s.values)]
	s.idx++
	return v
}

// Calls returns how many values have been consumed.
func (s *SequenceSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx
}
