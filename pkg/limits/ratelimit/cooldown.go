package ratelimit

import (
	"time"
)

// CooldownLimiter admits an event for a key only if at least minInterval has
// elapsed since that key's previous admitted event.
//
// It stores a single timestamp per key, so memory is O(1) per key and no
// pruning is needed. Bursts are not tolerated: two events are always at
// least minInterval apart.
//
// A minInterval of zero admits every event.
type CooldownLimiter struct {
	minInterval time.Duration
	clock       Clock
	last        *shardedTable[cooldownEntry]
}

// cooldownEntry holds the instant of a key's most recent admitted event.
type cooldownEntry struct {
	at time.Duration
}

// NewCooldownLimiter creates a cooldown limiter. minInterval must be non-negative.
//
// Example:
//
//	// One message per user every 10 seconds
//	limiter, err := NewCooldownLimiter(10 * time.Second)
func NewCooldownLimiter(minInterval time.Duration, opts ...Option) (*CooldownLimiter, error) {
	if minInterval < 0 {
		return nil, newConfigError("min_interval", minInterval, "must be non-negative")
	}

	o := buildOptions(opts)

	return &CooldownLimiter{
		minInterval: minInterval,
		clock:       o.clock,
		last:        newShardedTable[cooldownEntry](o.shards),
	}, nil
}

// CanProceed reports whether key has never been recorded or its cooldown elapsed.
func (l *CooldownLimiter) CanProceed(key string) bool {
	return l.Inspect(key).Allowed
}

// Record admits an event for key if its cooldown elapsed, and returns whether it did.
func (l *CooldownLimiter) Record(key string) bool {
	return l.Take(key).Allowed
}

// TimeUntilNextAllowed returns the remaining cooldown for key, or zero.
func (l *CooldownLimiter) TimeUntilNextAllowed(key string) time.Duration {
	return l.Inspect(key).RetryAfter
}

// Take records an event for key if admitted and returns the decision.
// After an admission RetryAfter is the full minInterval.
func (l *CooldownLimiter) Take(key string) CheckResult {
	s := l.last.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := l.clock.Now()
	entry := s.entries[key]
	if wait := l.waitLocked(entry, now); wait > 0 {
		return l.result(false, wait)
	}

	if entry == nil {
		entry = &cooldownEntry{}
		s.entries[key] = entry
	}
	entry.at = now

	return l.result(true, l.minInterval)
}

// Inspect returns the admission decision for key without recording an event.
func (l *CooldownLimiter) Inspect(key string) CheckResult {
	s := l.last.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	wait := l.waitLocked(s.entries[key], l.clock.Now())
	return l.result(wait == 0, wait)
}

// Forget drops the last-event timestamp for key.
func (l *CooldownLimiter) Forget(key string) {
	l.last.delete(key)
}

// Reset drops the state of every key.
func (l *CooldownLimiter) Reset() {
	l.last.reset()
}

// Len returns the number of keys that have recorded an event.
func (l *CooldownLimiter) Len() int {
	return l.last.len()
}

// Config returns the limiter's configuration.
func (l *CooldownLimiter) Config() Config {
	return Config{
		Algorithm:   AlgorithmCooldown,
		MinInterval: l.minInterval,
	}
}

// waitLocked returns the cooldown left for entry at now, clamped to zero.
// Caller must hold the shard lock.
func (l *CooldownLimiter) waitLocked(entry *cooldownEntry, now time.Duration) time.Duration {
	if entry == nil {
		return 0
	}
	return max(l.minInterval-(now-entry.at), 0)
}

func (l *CooldownLimiter) result(allowed bool, wait time.Duration) CheckResult {
	result := CheckResult{
		Allowed:    allowed,
		Limit:      1,
		RetryAfter: wait,
	}
	if wait == 0 {
		result.Remaining = 1
	}
	return result
}

var _ Limiter = (*CooldownLimiter)(nil)
