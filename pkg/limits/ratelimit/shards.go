package ratelimit

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultShards is the default number of lock shards per limiter.
	DefaultShards = 64

	// maxShards caps WithShards to keep the table allocation sane.
	maxShards = 1 << 16
)

// shard is one lock domain of a shardedTable.
type shard[E any] struct {
	mu      sync.Mutex
	entries map[string]*E
}

// shardedTable maps keys to per-key state behind a fixed set of mutexes.
//
// A key always hashes to the same shard, so holding the shard lock gives
// exclusive access to that key's entry. Keys on other shards are unaffected.
type shardedTable[E any] struct {
	shards []shard[E]
	mask   uint64
}

// newShardedTable creates a table with n shards rounded up to a power of two.
func newShardedTable[E any](n int) *shardedTable[E] {
	n = shardCount(n)

	t := &shardedTable[E]{
		shards: make([]shard[E], n),
		mask:   uint64(n - 1),
	}
	for i := range t.shards {
		t.shards[i].entries = make(map[string]*E)
	}
	return t
}

// shardFor returns the shard owning key. Callers lock it themselves.
func (t *shardedTable[E]) shardFor(key string) *shard[E] {
	return &t.shards[xxhash.Sum64String(key)&t.mask]
}

// len returns the number of keys across all shards.
func (t *shardedTable[E]) len() int {
	total := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

// delete removes key from the table.
func (t *shardedTable[E]) delete(key string) {
	s := t.shardFor(key)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// reset drops every entry, one shard at a time.
func (t *shardedTable[E]) reset() {
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		s.entries = make(map[string]*E)
		s.mu.Unlock()
	}
}

// shardCount normalizes a requested shard count to a power of two in [1, maxShards].
func shardCount(n int) int {
	if n <= 0 {
		n = DefaultShards
	}
	if n > maxShards {
		n = maxShards
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
