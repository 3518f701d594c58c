package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_StartsAtZeroOrResumePoint(t *testing.T) {
	assert.Equal(t, int64(0), NewClock().Current())

	c := NewClockAt(100)
	assert.Equal(t, int64(100), c.Current())
	assert.Equal(t, int64(101), c.Next())
	assert.Equal(t, int64(101), c.Current(), "Current must not advance the clock")
}

func TestClock_ConcurrentNextIsUnique(t *testing.T) {
	c := NewClock()
	const goroutines, calls = 32, 200

	var mu sync.Mutex
	seen := make(map[int64]struct{}, goroutines*calls)
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range calls {
				seq := c.Next()
				mu.Lock()
				seen[seq] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*calls)
	assert.Equal(t, int64(goroutines*calls), c.Current())
}

func TestUUIDv7Generator(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.Generate(), g.Generate()

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "UUIDv7 strings sort by creation time")
}

func TestRepeatDetector(t *testing.T) {
	d := NewRepeatDetector()

	assert.True(t, d.Record(0, 7, 1))
	assert.True(t, d.Record(0, 8, 2))
	assert.False(t, d.Record(0, 7, 3), "same entity in the same cycle is a repeat")

	seq, ok := d.Seen(0, 7)
	require.True(t, ok)
	assert.Equal(t, int64(1), seq, "first draw seq is kept")

	assert.True(t, d.Record(1, 7, 5), "a new cycle starts clean")

	d.Clear(0)
	_, ok = d.Seen(0, 7)
	assert.False(t, ok)
	_, ok = d.Seen(0, 8)
	assert.False(t, ok)
	seq, ok = d.Seen(1, 7)
	require.True(t, ok, "other cycles survive Clear")
	assert.Equal(t, int64(5), seq)
}
