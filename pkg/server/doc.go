// Package server exposes the limits manager over HTTP.
//
// Routes:
//
//	POST   /v1/policies/{policy}/keys/{key}/record  record an event (429 when denied)
//	GET    /v1/policies/{policy}/keys/{key}         peek at the decision
//	DELETE /v1/policies/{policy}/keys/{key}         forget the key
//	GET    /v1/policies                             list policies
//	GET    /v1/decisions                            query the decision journal
//	ANY    /v1/protected/{policy}                   endpoint guarded by a policy
//	GET    /health, /ready, /metrics
package server
