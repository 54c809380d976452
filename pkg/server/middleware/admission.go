package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/admission/pkg/config"
	"mercator-hq/admission/pkg/limits"
	"mercator-hq/admission/pkg/telemetry/logging"
)

// Admitter decides whether an event for key is admitted under a policy.
// *limits.Manager implements it.
type Admitter interface {
	Check(ctx context.Context, policy, key string) (*limits.Decision, error)
}

// KeyFunc extracts the identity a request is limited by. An empty key means
// the request carries no identity and is not limited.
type KeyFunc func(r *http.Request) string

// HeaderKey returns a KeyFunc reading the named request header.
func HeaderKey(name string) KeyFunc {
	return func(r *http.Request) string {
		return r.Header.Get(name)
	}
}

// QueryKey returns a KeyFunc reading the named query parameter.
func QueryKey(name string) KeyFunc {
	return func(r *http.Request) string {
		return r.URL.Query().Get(name)
	}
}

// RemoteIPKey limits by the client IP address of the connection.
func RemoteIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// KeyFuncFor builds the KeyFunc described by a policy's key_source and
// key_name settings.
func KeyFuncFor(p config.PolicyConfig) (KeyFunc, error) {
	switch p.KeySource {
	case config.KeySourceHeader, "":
		name := p.KeyName
		if name == "" {
			name = config.DefaultHeaderKey
		}
		return HeaderKey(name), nil
	case config.KeySourceQuery:
		name := p.KeyName
		if name == "" {
			name = config.DefaultQueryKey
		}
		return QueryKey(name), nil
	case config.KeySourceIP:
		return RemoteIPKey, nil
	default:
		return nil, fmt.Errorf("unknown key source %q", p.KeySource)
	}
}

// AdmissionMiddleware admits requests through a policy before forwarding
// them.
//
// This middleware:
//   - Extracts the identity with keyFunc
//   - Records an event for it under policy
//   - Sets X-RateLimit-Limit and X-RateLimit-Remaining on every response
//   - Rejects denied requests with 429 and a Retry-After header
//
// Example:
//
//	keyFunc, _ := KeyFuncFor(cfg.Policies["login"])
//	handler := AdmissionMiddleware(manager, "login", keyFunc)(next)
func AdmissionMiddleware(admitter Admitter, policy string, keyFunc KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := admitter.Check(ctx, policy, key)
			if err != nil {
				logging.FromContext(ctx).ErrorContext(ctx, "admission check failed",
					"policy", policy,
					"error", err,
				)
				WriteError(w, http.StatusInternalServerError, ErrorTypeInternal, "Internal error checking limits")
				return
			}

			SetLimitHeaders(w, decision)

			if !decision.Allowed {
				WriteRateLimited(w, policy, decision.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetLimitHeaders sets rate limit headers describing decision.
func SetLimitHeaders(w http.ResponseWriter, decision *limits.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))

	if !decision.Allowed && decision.RetryAfter > 0 {
		h.Set("Retry-After", strconv.FormatInt(RetryAfterSeconds(decision.RetryAfter), 10))
	}
}

// RetryAfterSeconds rounds d up to whole seconds, the resolution of the
// Retry-After header.
func RetryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
