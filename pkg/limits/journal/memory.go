package journal

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryEntries is the default capacity of a MemoryStore.
const DefaultMemoryEntries = 10000

// MemoryStore keeps the most recent entries in memory.
// When full, the oldest entry is overwritten.
type MemoryStore struct {
	entries []*Entry // ring buffer
	head    int      // next write position
	size    int
	closed  bool
	mu      sync.RWMutex
}

// NewMemoryStore creates a store holding at most maxEntries entries.
// A non-positive maxEntries uses DefaultMemoryEntries.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}
	return &MemoryStore{
		entries: make([]*Entry, maxEntries),
	}
}

// Append stores a copy of entry.
func (s *MemoryStore) Append(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	entryCopy := *entry
	s.entries[s.head] = &entryCopy
	s.head = (s.head + 1) % len(s.entries)
	if s.size < len(s.entries) {
		s.size++
	}
	return nil
}

// Query returns matching entries, newest first.
func (s *MemoryStore) Query(ctx context.Context, query *Query) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	limit := query.limit()
	results := make([]*Entry, 0, min(limit, s.size))

	s.eachNewestFirst(func(e *Entry) bool {
		if query.Matches(e) {
			entryCopy := *e
			results = append(results, &entryCopy)
		}
		return len(results) < limit
	})

	return results, nil
}

// Count returns the number of matching entries.
func (s *MemoryStore) Count(ctx context.Context, query *Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var count int64
	s.eachNewestFirst(func(e *Entry) bool {
		if query.Matches(e) {
			count++
		}
		return true
	})
	return count, nil
}

// Prune deletes entries older than olderThan.
func (s *MemoryStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	kept := make([]*Entry, 0, s.size)
	s.eachOldestFirst(func(e *Entry) {
		if !e.Timestamp.Before(olderThan) {
			kept = append(kept, e)
		}
	})

	deleted := int64(s.size - len(kept))
	if deleted == 0 {
		return 0, nil
	}

	entries := make([]*Entry, len(s.entries))
	copy(entries, kept)
	s.entries = entries
	s.size = len(kept)
	s.head = s.size % len(s.entries)

	return deleted, nil
}

// Close releases the stored entries.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.entries = make([]*Entry, 1)
	s.size = 0
	s.head = 0
	return nil
}

// eachNewestFirst visits entries from newest to oldest until fn returns false.
// Caller must hold a lock.
func (s *MemoryStore) eachNewestFirst(fn func(*Entry) bool) {
	n := len(s.entries)
	for i := 1; i <= s.size; i++ {
		if !fn(s.entries[(s.head-i+n)%n]) {
			return
		}
	}
}

// eachOldestFirst visits entries from oldest to newest.
// Caller must hold a lock.
func (s *MemoryStore) eachOldestFirst(fn func(*Entry)) {
	n := len(s.entries)
	start := (s.head - s.size + n) % n
	for i := 0; i < s.size; i++ {
		fn(s.entries[(start+i)%n])
	}
}
