package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// Error types returned in API error bodies.
const (
	ErrorTypeRateLimited   = "rate_limit_exceeded"
	ErrorTypeNotFound      = "not_found"
	ErrorTypeInvalid       = "invalid_request"
	ErrorTypeInternal      = "internal_error"
	ErrorTypeUnavailable   = "service_unavailable"
	ErrorTypeMethodBlocked = "method_not_allowed"
)

// ErrorResponse is the JSON body of every API error.
//
//	{"error": {"type": "rate_limit_exceeded", "message": "...", "retry_after_ms": 1500}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a single error.
type ErrorDetail struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	Policy       string `json:"policy,omitempty"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

// WriteError writes an ErrorResponse with the given status code.
func WriteError(w http.ResponseWriter, status int, errType, message string) {
	writeErrorDetail(w, status, ErrorDetail{Type: errType, Message: message})
}

// WriteRateLimited writes a 429 response for a denied admission.
func WriteRateLimited(w http.ResponseWriter, policy string, retryAfter time.Duration) {
	writeErrorDetail(w, http.StatusTooManyRequests, ErrorDetail{
		Type:         ErrorTypeRateLimited,
		Message:      "rate limit exceeded, retry later",
		Policy:       policy,
		RetryAfterMs: retryAfter.Milliseconds(),
	})
}

func writeErrorDetail(w http.ResponseWriter, status int, detail ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: detail})
}
