package middleware

import (
	"net/http"
	"runtime/debug"

	"mercator-hq/admission/pkg/telemetry/logging"
)

// RecoveryMiddleware recovers from panics in HTTP handlers and returns a 500
// Internal Server Error. The panic is logged with its stack trace; the client
// only sees a generic message.
//
// Example usage:
//
//	handler = RecoveryMiddleware(handler)
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}

				logging.FromContext(r.Context()).ErrorContext(r.Context(), "panic in handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				WriteError(w, http.StatusInternalServerError, ErrorTypeInternal,
					"An internal error occurred. Please try again later.")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
