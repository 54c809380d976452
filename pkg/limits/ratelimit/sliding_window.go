package ratelimit

import (
	"time"
)

// SlidingWindowLimiter admits at most maxRequests events per key within any
// trailing window of windowSize.
//
// # Algorithm
//
//  1. Drop the key's timestamps that are windowSize or more in the past
//  2. Admit if fewer than maxRequests timestamps remain
//  3. On admission, append the current instant
//
// An entry recorded at t stops counting at exactly t+windowSize, which is
// also the instant TimeUntilNextAllowed reaches zero.
//
// # Memory
//
// Each key holds at most maxRequests timestamps. Keys are never removed by
// the limiter itself; a key whose timestamps all expired keeps an empty log.
// Use Forget to evict keys.
type SlidingWindowLimiter struct {
	windowSize  time.Duration
	maxRequests int
	clock       Clock
	logs        *shardedTable[eventLog]
}

// eventLog is the chronologically ordered list of accepted timestamps for a key.
type eventLog struct {
	times []time.Duration
}

// NewSlidingWindowLimiter creates a sliding window limiter.
//
// windowSize must be positive and maxRequests non-negative. A maxRequests of
// zero denies every key permanently.
//
// Example:
//
//	// 100 requests per minute per key
//	limiter, err := NewSlidingWindowLimiter(time.Minute, 100)
func NewSlidingWindowLimiter(windowSize time.Duration, maxRequests int, opts ...Option) (*SlidingWindowLimiter, error) {
	if windowSize <= 0 {
		return nil, newConfigError("window_size", windowSize, "must be positive")
	}
	if maxRequests < 0 {
		return nil, newConfigError("max_requests", maxRequests, "must be non-negative")
	}

	o := buildOptions(opts)

	return &SlidingWindowLimiter{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		clock:       o.clock,
		logs:        newShardedTable[eventLog](o.shards),
	}, nil
}

// CanProceed reports whether an event for key would be admitted now.
// Stale timestamps for key are pruned as a side effect.
func (l *SlidingWindowLimiter) CanProceed(key string) bool {
	s := l.logs.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.entries[key]
	if log == nil {
		return l.maxRequests > 0
	}
	log.prune(l.clock.Now(), l.windowSize)
	return len(log.times) < l.maxRequests
}

// Record admits an event for key if fewer than maxRequests events were
// admitted in the trailing window, and returns whether it did.
func (l *SlidingWindowLimiter) Record(key string) bool {
	return l.Take(key).Allowed
}

// TimeUntilNextAllowed returns how long until an event for key would be
// admitted, or zero if it would be admitted now. A key with no live entries
// gets zero.
//
// The exception is maxRequests of zero: no event is ever admitted, so
// windowSize is returned for every key, including keys never seen.
func (l *SlidingWindowLimiter) TimeUntilNextAllowed(key string) time.Duration {
	return l.Inspect(key).RetryAfter
}

// Take records an event for key if admitted and returns the decision with
// the remaining capacity and wait time observed after it.
func (l *SlidingWindowLimiter) Take(key string) CheckResult {
	s := l.logs.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := l.clock.Now()
	log := s.entries[key]
	if log != nil {
		log.prune(now, l.windowSize)
	}

	if l.countLocked(log) >= l.maxRequests {
		return l.resultLocked(log, now, false)
	}

	if log == nil {
		log = &eventLog{times: make([]time.Duration, 0, min(l.maxRequests, 16))}
		s.entries[key] = log
	}
	log.times = append(log.times, now)

	return l.resultLocked(log, now, true)
}

// Inspect returns the admission decision for key without recording an event.
func (l *SlidingWindowLimiter) Inspect(key string) CheckResult {
	s := l.logs.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := l.clock.Now()
	log := s.entries[key]
	if log != nil {
		log.prune(now, l.windowSize)
	}

	return l.resultLocked(log, now, l.countLocked(log) < l.maxRequests)
}

// Forget drops the log for key.
func (l *SlidingWindowLimiter) Forget(key string) {
	l.logs.delete(key)
}

// Reset drops the logs of every key. This is primarily for testing and for
// applying a changed configuration.
func (l *SlidingWindowLimiter) Reset() {
	l.logs.reset()
}

// Len returns the number of keys with a log, including empty ones.
func (l *SlidingWindowLimiter) Len() int {
	return l.logs.len()
}

// Config returns the limiter's configuration.
func (l *SlidingWindowLimiter) Config() Config {
	return Config{
		Algorithm:   AlgorithmSlidingWindow,
		Window:      l.windowSize,
		MaxRequests: l.maxRequests,
	}
}

// countLocked returns the number of live events in log.
// Caller must hold the shard lock and have pruned log.
func (l *SlidingWindowLimiter) countLocked(log *eventLog) int {
	if log == nil {
		return 0
	}
	return len(log.times)
}

// resultLocked builds a CheckResult from a pruned log.
// Caller must hold the shard lock.
func (l *SlidingWindowLimiter) resultLocked(log *eventLog, now time.Duration, allowed bool) CheckResult {
	count := l.countLocked(log)

	result := CheckResult{
		Allowed:   allowed,
		Limit:     int64(l.maxRequests),
		Remaining: int64(max(l.maxRequests-count, 0)),
	}

	switch {
	case l.maxRequests == 0:
		result.RetryAfter = l.windowSize
	case count >= l.maxRequests:
		// The slot frees up when the entry maxRequests places from the end expires.
		oldest := log.times[count-l.maxRequests]
		result.RetryAfter = l.windowSize - (now - oldest)
	}

	return result
}

// prune drops timestamps at least window older than now.
// Timestamps are in insertion order, so the stale ones form a prefix.
func (e *eventLog) prune(now, window time.Duration) {
	i := 0
	for i < len(e.times) && now-e.times[i] >= window {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(e.times, e.times[i:])
	e.times = e.times[:n]
}

var _ Limiter = (*SlidingWindowLimiter)(nil)
