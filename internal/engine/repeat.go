package engine

import "sync"

// RepeatDetector tracks which entities were drawn in which cycle.
//
// A cycle is the span between two resets. The same entity drawn twice in one
// cycle is a repeat; the same entity drawn again after a reset is not.
// Journal replay and the scenario harness use it to verify the no-repeat
// guarantee against recorded draws.
//
// Thread-safety: safe for concurrent use via internal mutex.
type RepeatDetector struct {
	mu      sync.Mutex
	history map[repeatKey]int64 // -> seq of first draw
}

type repeatKey struct {
	cycle    int
	entityID int
}

// NewRepeatDetector creates an empty detector.
func NewRepeatDetector() *RepeatDetector {
	return &RepeatDetector{history: make(map[repeatKey]int64)}
}

// Seen reports whether entityID was already recorded in cycle, and the seq
// of that earlier draw.
func (d *RepeatDetector) Seen(cycle, entityID int) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	seq, ok := d.history[repeatKey{cycle, entityID}]
	return seq, ok
}

// Record registers a draw. Returns false and keeps the earlier seq if the
// entity was already drawn in this cycle.
func (d *RepeatDetector) Record(cycle, entityID int, seq int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := repeatKey{cycle, entityID}
	if _, dup := d.history[key]; dup {
		return false
	}
	d.history[key] = seq
	return true
}

// Clear forgets a finished cycle.
func (d *RepeatDetector) Clear(cycle int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k := range d.history {
		if k.cycle == cycle {
			delete(d.history, k)
		}
	}
}
