// Package middleware contains the HTTP middleware of the admission server.
//
// AdmissionMiddleware guards a handler with a named policy; the identity is
// taken from a header, a query parameter or the client IP. The remaining
// middleware assigns request IDs, logs requests and recovers from panics.
//
// Typical order, outermost first:
//
//	handler = RequestIDMiddleware(
//	    LoggingMiddleware(logger)(
//	        RecoveryMiddleware(
//	            AdmissionMiddleware(manager, "login", keyFunc)(next))))
package middleware
