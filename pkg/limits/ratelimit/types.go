package ratelimit

import "time"

// Algorithm names an admission policy.
type Algorithm string

const (
	// AlgorithmSlidingWindow admits at most MaxRequests events per Window.
	AlgorithmSlidingWindow Algorithm = "sliding_window"

	// AlgorithmCooldown admits an event only MinInterval after the previous one.
	AlgorithmCooldown Algorithm = "cooldown"
)

// Config describes a limiter independently of its implementation.
// Only the fields relevant to Algorithm are read.
type Config struct {
	// Algorithm selects the limiter variant.
	Algorithm Algorithm

	// Window is the trailing window of the sliding window limiter.
	Window time.Duration

	// MaxRequests is the number of events admitted per Window.
	MaxRequests int

	// MinInterval is the spacing enforced by the cooldown limiter.
	MinInterval time.Duration
}

// CheckResult contains the outcome of a limiter decision for one key.
// It is returned by Limiter.Take and Limiter.Inspect.
type CheckResult struct {
	// Allowed indicates if the event is (or was) admitted.
	Allowed bool

	// Limit is the number of events the policy admits per period.
	Limit int64

	// Remaining is how many more events would be admitted right now.
	Remaining int64

	// RetryAfter is how long until the key is admittable again.
	// Zero when Allowed is true for Inspect, or when another event fits.
	RetryAfter time.Duration
}

// Limiter is the admission contract shared by all policies.
//
// CanProceed never admits anything. Record checks and commits atomically.
// TimeUntilNextAllowed is always non-negative and zero when CanProceed
// would return true.
type Limiter interface {
	// CanProceed reports whether an event for key would be admitted now.
	CanProceed(key string) bool

	// Record admits and records an event for key if the policy allows it.
	Record(key string) bool

	// TimeUntilNextAllowed returns how long until key is admittable.
	TimeUntilNextAllowed(key string) time.Duration

	// Take is Record plus the resulting limit metadata, under one lock.
	Take(key string) CheckResult

	// Inspect is CanProceed plus limit metadata, without recording.
	Inspect(key string) CheckResult

	// Forget drops all state for key.
	Forget(key string)

	// Reset drops all state for every key.
	Reset()

	// Len returns the number of keys with state.
	Len() int

	// Config returns the limiter's configuration.
	Config() Config
}

// Option configures a limiter at construction.
type Option func(*options)

type options struct {
	clock  Clock
	shards int
}

// WithClock sets the time source. Defaults to NewMonotonicClock().
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithShards sets the number of lock shards, rounded up to a power of two.
// Defaults to DefaultShards.
func WithShards(n int) Option {
	return func(o *options) {
		o.shards = n
	}
}

func buildOptions(opts []Option) options {
	o := options{shards: DefaultShards}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = NewMonotonicClock()
	}
	return o
}

// New creates the limiter described by cfg.
//
// Example:
//
//	limiter, err := ratelimit.New(ratelimit.Config{
//	    Algorithm:   ratelimit.AlgorithmSlidingWindow,
//	    Window:      time.Minute,
//	    MaxRequests: 60,
//	})
func New(cfg Config, opts ...Option) (Limiter, error) {
	// The constructors return typed pointers; a nil one must not end up
	// inside a non-nil Limiter.
	switch cfg.Algorithm {
	case AlgorithmSlidingWindow:
		limiter, err := NewSlidingWindowLimiter(cfg.Window, cfg.MaxRequests, opts...)
		if err != nil {
			return nil, err
		}
		return limiter, nil
	case AlgorithmCooldown:
		limiter, err := NewCooldownLimiter(cfg.MinInterval, opts...)
		if err != nil {
			return nil, err
		}
		return limiter, nil
	default:
		return nil, newConfigError("algorithm", cfg.Algorithm,
			"must be one of sliding_window, cooldown")
	}
}
