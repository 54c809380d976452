package limits

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the limits package.
//
// Keys are never used as labels; the per-policy key count is exported as a
// gauge instead.
type Metrics struct {
	registerer prometheus.Registerer

	// Admission checks
	checks      *prometheus.CounterVec
	retryAfter  *prometheus.HistogramVec
	checkErrors *prometheus.CounterVec

	// Check latency
	checkDuration *prometheus.HistogramVec

	// Configuration reloads
	reloads *prometheus.CounterVec
}

// NewMetrics creates the limits metrics and registers them with reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		registerer: reg,

		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_checks_total",
				Help: "Total number of admission checks performed",
			},
			[]string{"policy", "operation", "result"},
		),

		retryAfter: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admission_retry_after_seconds",
				Help:    "Wait returned to denied callers in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~43min
			},
			[]string{"policy"},
		),

		checkErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_check_errors_total",
				Help: "Total number of admission checks that failed",
			},
			[]string{"reason"},
		),

		checkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admission_check_duration_seconds",
				Help:    "Duration of admission checks in seconds",
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
			[]string{"policy"},
		),

		reloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_policy_reloads_total",
				Help: "Total number of policy reloads",
			},
			[]string{"result"},
		),
	}
}

// RecordCheck records the outcome of a Check ("record") or Peek ("peek").
func (m *Metrics) RecordCheck(policy, operation string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.checks.WithLabelValues(policy, operation, result).Inc()
}

// RecordRetryAfter records the wait handed to a denied caller.
func (m *Metrics) RecordRetryAfter(policy string, seconds float64) {
	m.retryAfter.WithLabelValues(policy).Observe(seconds)
}

// RecordCheckError records a failed check.
func (m *Metrics) RecordCheckError(reason string) {
	m.checkErrors.WithLabelValues(reason).Inc()
}

// RecordCheckDuration records the duration of a check in seconds.
func (m *Metrics) RecordCheckDuration(policy string, seconds float64) {
	m.checkDuration.WithLabelValues(policy).Observe(seconds)
}

// RecordReload records a policy reload.
func (m *Metrics) RecordReload(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.reloads.WithLabelValues(result).Inc()
}

// trackKeys registers a gauge reporting the number of keys holding state
// per policy, read from source at scrape time.
func (m *Metrics) trackKeys(source func() map[string]int) error {
	return m.registerer.Register(&keysCollector{
		desc: prometheus.NewDesc(
			"admission_tracked_keys",
			"Number of keys currently holding limiter state",
			[]string{"policy"}, nil,
		),
		source: source,
	})
}

type keysCollector struct {
	desc   *prometheus.Desc
	source func() map[string]int
}

func (c *keysCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *keysCollector) Collect(ch chan<- prometheus.Metric) {
	for policy, n := range c.source() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), policy)
	}
}
