package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"mercator-hq/admission/pkg/config"
	"mercator-hq/admission/pkg/telemetry/logging"
)

// ErrorTypeUnauthorized is returned when an admin key is missing or wrong.
const ErrorTypeUnauthorized = "unauthorized"

// AdminKeyHeader is the alternative to a bearer token.
const AdminKeyHeader = "X-API-Key"

type adminKey struct {
	name     string
	digest   [sha256.Size]byte
	disabled bool
}

// AdminKeys validates keys presented on administrative endpoints.
// Keys are held as SHA-256 digests and compared in constant time.
type AdminKeys struct {
	mu   sync.RWMutex
	keys []adminKey
}

// NewAdminKeys creates a validator for the configured keys.
func NewAdminKeys(keys []config.AdminKeyConfig) *AdminKeys {
	a := &AdminKeys{}
	a.Set(keys)
	return a
}

// Set replaces the accepted keys.
func (a *AdminKeys) Set(keys []config.AdminKeyConfig) {
	next := make([]adminKey, 0, len(keys))
	for _, k := range keys {
		next = append(next, adminKey{
			name:     k.Name,
			digest:   sha256.Sum256([]byte(k.Key)),
			disabled: k.Disabled,
		})
	}

	a.mu.Lock()
	a.keys = next
	a.mu.Unlock()
}

// Empty reports whether no keys are configured.
func (a *AdminKeys) Empty() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.keys) == 0
}

// Validate returns the name of the enabled key matching secret.
func (a *AdminKeys) Validate(secret string) (string, bool) {
	digest := sha256.Sum256([]byte(secret))

	a.mu.RLock()
	defer a.mu.RUnlock()

	// Every key is compared so timing does not reveal which one matched.
	name, ok := "", false
	for _, k := range a.keys {
		if subtle.ConstantTimeCompare(digest[:], k.digest[:]) == 1 && !k.disabled {
			name, ok = k.name, true
		}
	}
	return name, ok
}

type adminContextKey struct{}

// AdminFromContext returns the name of the admin key that authenticated
// the request.
func AdminFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(adminContextKey{}).(string)
	return name, ok
}

// AdminAuthMiddleware rejects requests without a valid admin key. When no
// keys are configured every request passes.
func AdminAuthMiddleware(keys *AdminKeys) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keys == nil || keys.Empty() {
				next.ServeHTTP(w, r)
				return
			}

			logger := logging.FromContext(r.Context())

			secret := extractAdminKey(r)
			if secret == "" {
				logger.Warn("missing admin key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				writeUnauthorized(w, "missing admin key")
				return
			}

			name, ok := keys.Validate(secret)
			if !ok {
				logger.Warn("invalid admin key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				writeUnauthorized(w, "invalid admin key")
				return
			}

			logger.Debug("admin key authenticated", "admin", name, "path", r.URL.Path)
			ctx := context.WithValue(r.Context(), adminContextKey{}, name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractAdminKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.Header.Get(AdminKeyHeader)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="admission"`)
	WriteError(w, http.StatusUnauthorized, ErrorTypeUnauthorized, message)
}
