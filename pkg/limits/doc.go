// Package limits provides per-identity admission control for named policies.
//
// # Overview
//
// A policy is a named limiter configuration. The Manager owns one limiter per
// policy and answers, for any (policy, key) pair, whether an event may happen
// now and how long the caller must wait otherwise. Two limiter variants are
// available in the ratelimit sub-package:
//
//   - sliding_window: at most N events per key in any trailing window
//   - cooldown: at least a minimum interval between a key's events
//
// # Architecture
//
// The package is organized into sub-packages:
//
//   - ratelimit: the limiters and the monotonic clock abstraction
//   - journal: an audit trail of decisions (memory or SQLite) with retention
//
// Limiter state lives in memory only. The journal is write-only from the
// Manager's point of view and is never used to rebuild limiter state.
//
// # Usage
//
//	manager, err := limits.NewManager(limits.Config{
//	    Policies: map[string]ratelimit.Config{
//	        "login": {Algorithm: ratelimit.AlgorithmSlidingWindow, Window: time.Minute, MaxRequests: 5},
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//
//	decision, err := manager.Check(ctx, "login", userID)
//	if err != nil {
//	    return err
//	}
//	if !decision.Allowed {
//	    return fmt.Errorf("retry in %s", decision.RetryAfter)
//	}
//
// # Thread Safety
//
// All operations are safe for concurrent use. Checks against the same key
// serialize on that key's shard; checks against different keys rarely
// contend.
package limits
