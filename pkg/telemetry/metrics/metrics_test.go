package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/admission/pkg/config"
)

func newTestCollector(t *testing.T, enabled bool) *Collector {
	t.Helper()
	return NewCollector(&config.MetricsConfig{Enabled: enabled, Namespace: "test"}, prometheus.NewRegistry())
}

func TestCollector_RecordRequest(t *testing.T) {
	c := newTestCollector(t, true)

	c.RecordRequest("/v1/policies", http.MethodGet, http.StatusOK, 2*time.Millisecond)
	c.RecordRequest("/v1/policies", http.MethodGet, http.StatusOK, 3*time.Millisecond)
	c.RecordRequest("/v1/policies/{policy}/keys/{key}/record", http.MethodPost, http.StatusTooManyRequests, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requestMetrics.requestsTotal.WithLabelValues("/v1/policies", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestMetrics.requestsTotal.WithLabelValues("/v1/policies/{policy}/keys/{key}/record", "POST", "429")))
}

func TestCollector_Disabled(t *testing.T) {
	c := newTestCollector(t, false)

	c.RecordRequest("/v1/policies", http.MethodGet, http.StatusOK, time.Millisecond)

	n, err := testutil.GatherAndCount(c.Registry(), "test_http_requests_total")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCollector_RouteCardinality(t *testing.T) {
	c := newTestCollector(t, true)
	c.cardinalityLimiter = NewCardinalityLimiter(2)

	for i := 0; i < 5; i++ {
		c.RecordRequest(fmt.Sprintf("/route-%d", i), http.MethodGet, http.StatusOK, time.Millisecond)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(c.requestMetrics.requestsTotal.WithLabelValues(otherRoute, "GET", "200")))
	assert.Equal(t, 2, c.cardinalityLimiter.Count())
}

func TestCardinalityLimiter_Concurrent(t *testing.T) {
	cl := NewCardinalityLimiter(10)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cl.Allow(fmt.Sprintf("label-%d", i%20))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, cl.Count())
}

func TestMiddleware(t *testing.T) {
	c := newTestCollector(t, true)

	handler := c.Middleware(func(r *http.Request) string { return "/teapot" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, 1.0, testutil.ToFloat64(c.requestMetrics.inFlight))
			w.WriteHeader(http.StatusTeapot)
			w.WriteHeader(http.StatusOK)
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/teapot/1", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestMetrics.requestsTotal.WithLabelValues("/teapot", "PUT", "418")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.requestMetrics.inFlight))
}

func TestHandler(t *testing.T) {
	c := newTestCollector(t, true)

	extra := prometheus.NewCounter(prometheus.CounterOpts{Name: "extra_total", Help: "extra"})
	require.NoError(t, c.Registerer().Register(extra))
	extra.Add(7)
	c.RecordRequest("/health", http.MethodGet, http.StatusOK, time.Millisecond)

	server := httptest.NewServer(c.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "extra_total 7"))
	assert.True(t, strings.Contains(string(body), `test_http_requests_total{code="200",method="GET",route="/health"} 1`))
}

func TestNewCollector_DefaultRegistry(t *testing.T) {
	c := NewCollector(&config.MetricsConfig{Enabled: true}, nil)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	var sawGo bool
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "go_") {
			sawGo = true
			break
		}
	}
	assert.True(t, sawGo, "expected Go runtime metrics to be registered")
}
