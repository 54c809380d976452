// Package ratelimit provides per-key admission control primitives.
//
// # Overview
//
// The ratelimit package implements two admission policies behind a common
// Limiter interface:
//
//   - Sliding Window: at most N accepted events per key within a trailing window
//   - Cooldown: at least D between consecutive accepted events per key
//
// Both limiters answer three questions for a key: may it proceed now
// (CanProceed), record an event if it may (Record), and how long until it may
// (TimeUntilNextAllowed).
//
// # Sliding Window
//
// The sliding window keeps a log of accepted timestamps per key. Stale entries
// are pruned lazily when the key is accessed; there is no background timer:
//
//	limiter, err := ratelimit.NewSlidingWindowLimiter(10*time.Second, 1)
//	if err != nil {
//	    return err
//	}
//	if !limiter.Record("user-1") {
//	    wait := limiter.TimeUntilNextAllowed("user-1")
//	    // Reject, suggest retry after wait
//	}
//
// # Cooldown
//
// The cooldown limiter keeps only the last accepted timestamp per key:
//
//	limiter, err := ratelimit.NewCooldownLimiter(10 * time.Second)
//	if limiter.Record("user-1") {
//	    // Accepted
//	}
//
// # Time
//
// Decisions are made on a monotonic Clock, never on wall-clock time. Tests
// inject a ManualClock with WithClock and advance it explicitly instead of
// sleeping.
//
// # Thread Safety
//
// All limiters are safe for concurrent use. Per-key state is spread across a
// sharded lock table: the check-then-commit sequence for one key runs under
// that key's shard lock, and keys on different shards never contend.
package ratelimit
