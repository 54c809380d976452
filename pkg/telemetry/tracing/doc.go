// Package tracing sets up OpenTelemetry distributed tracing.
//
// When enabled, spans are exported over OTLP gRPC to a collector such as the
// OpenTelemetry Collector, Jaeger or Tempo. When disabled, a noop tracer is
// used and instrumentation costs next to nothing.
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: localhost:4317
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//
// Admission checks create a span per decision (limits.record, limits.peek)
// carrying the policy, key and outcome. HTTPMiddleware continues traces
// started by upstream callers via the W3C traceparent header.
package tracing
