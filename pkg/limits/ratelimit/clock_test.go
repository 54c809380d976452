package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock(t *testing.T) {
	clock := NewManualClock(time.Second)
	assert.Equal(t, time.Second, clock.Now())

	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, clock.Now())

	// Never goes backwards.
	clock.Advance(-time.Hour)
	clock.Set(0)
	assert.Equal(t, 1500*time.Millisecond, clock.Now())

	clock.Set(time.Minute)
	assert.Equal(t, time.Minute, clock.Now())
}

func TestMonotonicClock(t *testing.T) {
	clock := NewMonotonicClock()

	first := clock.Now()
	time.Sleep(5 * time.Millisecond)
	second := clock.Now()

	assert.GreaterOrEqual(t, first, time.Duration(0))
	assert.Greater(t, second, first)
}

func TestShardCount(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: 0, want: DefaultShards},
		{in: -3, want: DefaultShards},
		{in: 1, want: 1},
		{in: 3, want: 4},
		{in: 64, want: 64},
		{in: 65, want: 128},
		{in: 1 << 20, want: maxShards},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, shardCount(tt.in), "shardCount(%d)", tt.in)
	}
}

func TestShardedTable_SameKeySameShard(t *testing.T) {
	table := newShardedTable[cooldownEntry](16)

	assert.Same(t, table.shardFor("alpha"), table.shardFor("alpha"))
	assert.Len(t, table.shards, 16)
	assert.Equal(t, uint64(15), table.mask)
}

func TestShardedTable_LenDeleteReset(t *testing.T) {
	table := newShardedTable[cooldownEntry](4)

	for _, key := range []string{"a", "b", "c"} {
		s := table.shardFor(key)
		s.mu.Lock()
		s.entries[key] = &cooldownEntry{}
		s.mu.Unlock()
	}
	assert.Equal(t, 3, table.len())

	table.delete("b")
	table.delete("missing")
	assert.Equal(t, 2, table.len())

	table.reset()
	assert.Zero(t, table.len())
}
