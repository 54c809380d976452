// Package metrics exposes the service's Prometheus registry.
//
// # Overview
//
// The Collector owns a dedicated registry with the Go runtime and process
// collectors registered. Packages with their own metrics (the limits manager
// for example) register against Collector.Registerer, and the Handler serves
// the whole registry in the Prometheus exposition format.
//
// # HTTP Metrics
//
//   - admission_http_requests_total{route, method, code}
//   - admission_http_request_duration_seconds{route, method}
//   - admission_http_requests_in_flight
//
// Route labels are route templates, never raw paths. A CardinalityLimiter
// folds any label beyond DefaultMaxRoutes into "other".
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	router.Use(collector.Middleware(routeTemplate))
//	router.Handle("/metrics", collector.Handler())
package metrics
