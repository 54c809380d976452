package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/admission/pkg/config"
)

// DefaultMaxRoutes bounds the number of distinct route labels.
const DefaultMaxRoutes = 200

// otherRoute replaces route labels once the cardinality limit is reached.
const otherRoute = "other"

// Collector owns the Prometheus registry for the service.
//
// It registers the Go runtime and process collectors, records HTTP request
// metrics and hands out its registry to other packages (see Registerer) so
// that a single /metrics endpoint exposes everything.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics *RequestMetrics

	// Cardinality tracking for route labels
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is created.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	limitsMetrics := limits.NewMetrics(collector.Registerer())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = &config.MetricsConfig{Enabled: true}
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		requestMetrics:     NewRequestMetrics(namespace, registry),
		cardinalityLimiter: NewCardinalityLimiter(DefaultMaxRoutes),
	}
}

// RecordRequest records metrics for a completed HTTP request.
//
// Parameters:
//   - route: Route template (e.g., "/v1/policies/{policy}/keys/{key}")
//   - method: HTTP method
//   - code: Response status code
//   - duration: Time spent serving the request
func (c *Collector) RecordRequest(route, method string, code int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	if !c.cardinalityLimiter.Allow(route) {
		route = otherRoute
	}

	c.requestMetrics.RecordRequest(route, method, code, duration)
}

// Registerer returns the registry as a prometheus.Registerer for packages
// that define their own metrics.
func (c *Collector) Registerer() prometheus.Registerer {
	return c.registry
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Enabled reports whether metrics collection is enabled.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value may be used as a label. Known values are
// always allowed; new ones only until the limit is reached.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[value]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
