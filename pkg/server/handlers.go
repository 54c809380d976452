package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"mercator-hq/admission/pkg/limits"
	"mercator-hq/admission/pkg/limits/journal"
	"mercator-hq/admission/pkg/limits/ratelimit"
	"mercator-hq/admission/pkg/server/middleware"
	"mercator-hq/admission/pkg/telemetry/logging"
)

// maxDecisionsLimit caps the limit parameter of GET /v1/decisions.
const maxDecisionsLimit = 1000

// DecisionResponse is the JSON form of a limits.Decision.
type DecisionResponse struct {
	Policy       string `json:"policy"`
	Key          string `json:"key"`
	Allowed      bool   `json:"allowed"`
	RetryAfterMs int64  `json:"retry_after_ms"`
	Limit        int64  `json:"limit"`
	Remaining    int64  `json:"remaining"`
	Algorithm    string `json:"algorithm"`
}

// PolicyResponse describes a configured policy.
type PolicyResponse struct {
	Name        string `json:"name"`
	Algorithm   string `json:"algorithm"`
	Window      string `json:"window,omitempty"`
	MaxRequests *int   `json:"max_requests,omitempty"`
	MinInterval string `json:"min_interval,omitempty"`
	Keys        int    `json:"keys"`
}

// DecisionsResponse is the body of GET /v1/decisions.
type DecisionsResponse struct {
	Entries []*journal.Entry `json:"entries"`
	Count   int              `json:"count"`
}

func newDecisionResponse(d *limits.Decision) DecisionResponse {
	return DecisionResponse{
		Policy:       d.Policy,
		Key:          d.Key,
		Allowed:      d.Allowed,
		RetryAfterMs: d.RetryAfter.Milliseconds(),
		Limit:        d.Limit,
		Remaining:    d.Remaining,
		Algorithm:    string(d.Algorithm),
	}
}

// handleRecord records an event: POST /v1/policies/{policy}/keys/{key}/record.
// Denied events are answered with 429.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	decision, err := s.manager.Check(r.Context(), vars["policy"], vars["key"])
	if err != nil {
		s.writeManagerError(w, r, err)
		return
	}

	middleware.SetLimitHeaders(w, decision)
	status := http.StatusOK
	if !decision.Allowed {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, newDecisionResponse(decision))
}

// handlePeek reports the decision a record would get without recording:
// GET /v1/policies/{policy}/keys/{key}.
func (s *Server) handlePeek(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	decision, err := s.manager.Peek(r.Context(), vars["policy"], vars["key"])
	if err != nil {
		s.writeManagerError(w, r, err)
		return
	}

	middleware.SetLimitHeaders(w, decision)
	writeJSON(w, http.StatusOK, newDecisionResponse(decision))
}

// handleForget drops the state of one key: DELETE /v1/policies/{policy}/keys/{key}.
func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := s.manager.Forget(vars["policy"], vars["key"]); err != nil {
		s.writeManagerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListPolicies lists the configured policies: GET /v1/policies.
func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	infos := s.manager.Policies()

	policies := make([]PolicyResponse, 0, len(infos))
	for _, info := range infos {
		p := PolicyResponse{
			Name:      info.Name,
			Algorithm: string(info.Config.Algorithm),
			Keys:      info.Keys,
		}
		switch info.Config.Algorithm {
		case ratelimit.AlgorithmSlidingWindow:
			maxRequests := info.Config.MaxRequests
			p.Window = info.Config.Window.String()
			p.MaxRequests = &maxRequests
		case ratelimit.AlgorithmCooldown:
			p.MinInterval = info.Config.MinInterval.String()
		}
		policies = append(policies, p)
	}

	writeJSON(w, http.StatusOK, map[string]any{"policies": policies})
}

// handleDecisions queries the journal: GET /v1/decisions.
//
// Query parameters: policy, key, allowed (true|false), since (RFC 3339),
// limit (1-1000, default 100).
func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrorTypeNotFound, "decision journal is disabled")
		return
	}

	query, err := parseJournalQuery(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrorTypeInvalid, err.Error())
		return
	}

	entries, err := s.journal.Query(r.Context(), query)
	if err != nil {
		logging.FromContext(r.Context()).ErrorContext(r.Context(), "journal query failed", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrorTypeInternal, "journal query failed")
		return
	}
	if entries == nil {
		entries = []*journal.Entry{}
	}

	writeJSON(w, http.StatusOK, DecisionsResponse{Entries: entries, Count: len(entries)})
}

// handleProtected demonstrates AdmissionMiddleware: ANY /v1/protected/{policy}.
// The identity is extracted as configured by the policy's key source.
func (s *Server) handleProtected(w http.ResponseWriter, r *http.Request) {
	policy := mux.Vars(r)["policy"]

	s.keyFuncsMu.RLock()
	keyFunc, ok := s.keyFuncs[policy]
	s.keyFuncsMu.RUnlock()
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrorTypeNotFound, "unknown policy")
		return
	}

	admitted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "admitted",
			"policy": policy,
		})
	})
	middleware.AdmissionMiddleware(s.manager, policy, keyFunc)(admitted).ServeHTTP(w, r)
}

// writeManagerError maps limits errors to HTTP responses.
func (s *Server) writeManagerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, limits.ErrUnknownPolicy):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrorTypeNotFound, err.Error())
	case errors.Is(err, limits.ErrManagerClosed):
		middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrorTypeUnavailable, "service is shutting down")
	default:
		logging.FromContext(r.Context()).ErrorContext(r.Context(), "admission check failed", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrorTypeInternal, "internal error")
	}
}

func parseJournalQuery(r *http.Request) (*journal.Query, error) {
	values := r.URL.Query()
	query := &journal.Query{
		Policy: values.Get("policy"),
		Key:    values.Get("key"),
		Limit:  journal.DefaultQueryLimit,
	}

	if v := values.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxDecisionsLimit {
			return nil, errors.New("limit must be an integer between 1 and 1000")
		}
		query.Limit = limit
	}
	if v := values.Get("allowed"); v != "" {
		allowed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.New("allowed must be true or false")
		}
		query.Allowed = &allowed
	}
	if v := values.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, errors.New("since must be an RFC 3339 timestamp")
		}
		query.Since = since
	}

	return query, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
