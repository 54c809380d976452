package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"mercator-hq/admission/pkg/telemetry/logging"
)

const (
	// RequestIDHeader is the HTTP header for request ID.
	RequestIDHeader = "X-Request-ID"

	// maxRequestIDLength bounds client supplied request IDs.
	maxRequestIDLength = 128
)

// RequestIDMiddleware assigns every request an ID, stores it in the request
// context and echoes it in the X-Request-ID response header. A client
// supplied X-Request-ID is kept unless it is longer than 128 bytes.
//
// Example usage:
//
//	handler = RequestIDMiddleware(handler)
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(r.Context(), requestID)
		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
