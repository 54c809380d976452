package limits

import (
	"errors"
	"time"

	"mercator-hq/admission/pkg/limits/ratelimit"
)

var (
	// ErrUnknownPolicy is returned when a check names a policy the manager
	// does not have.
	ErrUnknownPolicy = errors.New("unknown policy")

	// ErrManagerClosed is returned by operations on a closed Manager.
	ErrManagerClosed = errors.New("limits manager is closed")
)

// Decision is the outcome of an admission check for one (policy, key) pair.
// It is returned by Manager.Check and Manager.Peek and is used to populate
// HTTP responses (Retry-After, X-RateLimit-*).
type Decision struct {
	// Policy is the name of the policy that was evaluated.
	Policy string

	// Key is the identity the decision applies to.
	Key string

	// Allowed indicates if the event is (or would be) admitted.
	Allowed bool

	// RetryAfter is how long until key is admittable again.
	RetryAfter time.Duration

	// Limit is the number of events the policy admits per period.
	Limit int64

	// Remaining is how many more events would be admitted right now.
	Remaining int64

	// Algorithm is the policy's limiter variant.
	Algorithm ratelimit.Algorithm
}

// PolicyInfo describes a configured policy.
type PolicyInfo struct {
	// Name is the policy name.
	Name string

	// Config is the limiter configuration of the policy.
	Config ratelimit.Config

	// Keys is the number of keys currently holding state.
	Keys int
}

func newDecision(policy, key string, algorithm ratelimit.Algorithm, result ratelimit.CheckResult) *Decision {
	return &Decision{
		Policy:     policy,
		Key:        key,
		Allowed:    result.Allowed,
		RetryAfter: result.RetryAfter,
		Limit:      result.Limit,
		Remaining:  result.Remaining,
		Algorithm:  algorithm,
	}
}
