package limits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/admission/pkg/limits/journal"
	"mercator-hq/admission/pkg/limits/ratelimit"
)

const tracerName = "mercator-hq/admission/pkg/limits"

// Manager coordinates admission checks across named policies.
//
// The Manager is the primary interface for admission control. It owns one
// limiter per policy, and for every check it records metrics, emits a trace
// span and appends the decision to the journal when one is configured.
//
// # Example
//
//	manager, err := limits.NewManager(limits.Config{Policies: policies})
//
//	decision, err := manager.Check(ctx, "upload", userID)
//	if !decision.Allowed {
//	    // Reject, ask the caller to wait decision.RetryAfter
//	}
type Manager struct {
	policies map[string]*policy
	closed   bool
	mu       sync.RWMutex

	clock    ratelimit.Clock
	shards   int
	metrics  *Metrics
	recorder *journal.Recorder
	tracer   trace.Tracer
	logger   *slog.Logger
}

// policy pairs the configuration a limiter was built from with the limiter.
type policy struct {
	config  ratelimit.Config
	limiter ratelimit.Limiter
}

// Config contains configuration for the limits manager.
type Config struct {
	// Policies maps policy names to limiter configurations.
	Policies map[string]ratelimit.Config

	// Clock is the time source shared by all limiters.
	// Default: ratelimit.NewMonotonicClock()
	Clock ratelimit.Clock

	// Shards is the number of lock shards per limiter.
	// Default: ratelimit.DefaultShards
	Shards int

	// Metrics receives check metrics. Optional.
	Metrics *Metrics

	// Journal receives every decision made by Check. Optional.
	Journal *journal.Recorder

	// Tracer creates check spans.
	// Default: the global OpenTelemetry tracer provider
	Tracer trace.Tracer

	// Logger is the structured logger.
	// Default: slog.Default()
	Logger *slog.Logger
}

// NewManager creates a manager with one limiter per configured policy.
// It fails on the first invalid policy.
//
// Example:
//
//	manager, err := NewManager(Config{
//	    Policies: map[string]ratelimit.Config{
//	        "login": {
//	            Algorithm:   ratelimit.AlgorithmSlidingWindow,
//	            Window:      time.Minute,
//	            MaxRequests: 5,
//	        },
//	        "resend-code": {
//	            Algorithm:   ratelimit.AlgorithmCooldown,
//	            MinInterval: 30 * time.Second,
//	        },
//	    },
//	})
func NewManager(config Config) (*Manager, error) {
	if config.Clock == nil {
		config.Clock = ratelimit.NewMonotonicClock()
	}
	if config.Tracer == nil {
		config.Tracer = otel.Tracer(tracerName)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	m := &Manager{
		clock:    config.Clock,
		shards:   config.Shards,
		metrics:  config.Metrics,
		recorder: config.Journal,
		tracer:   config.Tracer,
		logger:   config.Logger.With("component", "limits.manager"),
	}

	policies, err := m.buildPolicies(config.Policies, nil)
	if err != nil {
		return nil, err
	}
	m.policies = policies

	if m.metrics != nil {
		if err := m.metrics.trackKeys(m.keyCounts); err != nil {
			m.logger.Warn("tracked keys gauge not registered", "error", err)
		}
	}

	return m, nil
}

// Check records an event for key under the named policy if the policy
// admits it, and returns the decision.
//
// The returned Decision always carries the wait observed right after the
// check: zero when another event would be admitted immediately.
//
// Returns ErrUnknownPolicy if the policy is not configured and
// ErrManagerClosed after Close.
func (m *Manager) Check(ctx context.Context, policyName, key string) (*Decision, error) {
	return m.evaluate(ctx, "record", policyName, key)
}

// Peek reports what Check would decide for key without recording anything.
// Peek never writes to the journal.
func (m *Manager) Peek(ctx context.Context, policyName, key string) (*Decision, error) {
	return m.evaluate(ctx, "peek", policyName, key)
}

func (m *Manager) evaluate(ctx context.Context, operation, policyName, key string) (*Decision, error) {
	start := time.Now()

	_, span := m.tracer.Start(ctx, "limits."+operation,
		trace.WithAttributes(
			attribute.String("admission.policy", policyName),
			attribute.String("admission.key", key),
		),
	)
	defer span.End()

	p, err := m.lookup(policyName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if m.metrics != nil {
			m.metrics.RecordCheckError(errorReason(err))
		}
		return nil, err
	}

	var result ratelimit.CheckResult
	if operation == "record" {
		result = p.limiter.Take(key)
	} else {
		result = p.limiter.Inspect(key)
	}
	decision := newDecision(policyName, key, p.config.Algorithm, result)

	span.SetAttributes(
		attribute.String("admission.algorithm", string(decision.Algorithm)),
		attribute.Bool("admission.allowed", decision.Allowed),
		attribute.Int64("admission.remaining", decision.Remaining),
		attribute.Int64("admission.retry_after_ms", decision.RetryAfter.Milliseconds()),
	)
	span.SetStatus(codes.Ok, "")

	if m.metrics != nil {
		m.metrics.RecordCheck(policyName, operation, decision.Allowed)
		m.metrics.RecordCheckDuration(policyName, time.Since(start).Seconds())
		if !decision.Allowed {
			m.metrics.RecordRetryAfter(policyName, decision.RetryAfter.Seconds())
		}
	}

	if operation == "record" {
		if m.recorder != nil {
			m.recorder.Record(journal.NewEntry(policyName, key, decision.Allowed, decision.RetryAfter))
		}
		if !decision.Allowed {
			m.logger.Debug("admission denied",
				"policy", policyName,
				"key", key,
				"retry_after", decision.RetryAfter,
			)
		}
	}

	return decision, nil
}

// Forget drops the state held for key under the named policy.
func (m *Manager) Forget(policyName, key string) error {
	p, err := m.lookup(policyName)
	if err != nil {
		return err
	}
	p.limiter.Forget(key)
	return nil
}

// Policies returns the configured policies sorted by name.
func (m *Manager) Policies() []PolicyInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]PolicyInfo, 0, len(m.policies))
	for name, p := range m.policies {
		infos = append(infos, PolicyInfo{
			Name:   name,
			Config: p.config,
			Keys:   p.limiter.Len(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Reload replaces the policy set.
//
// Policies whose configuration is unchanged keep their limiter and all key
// state. Changed and new policies start with empty state. Policies missing
// from policies are dropped. If any policy is invalid, nothing changes.
func (m *Manager) Reload(policies map[string]ratelimit.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}

	next, err := m.buildPolicies(policies, m.policies)
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordReload(false)
		}
		m.logger.Error("policy reload rejected", "error", err)
		return err
	}

	var kept, rebuilt, removed int
	for name, p := range next {
		if old, ok := m.policies[name]; ok && old == p {
			kept++
		} else {
			rebuilt++
		}
	}
	for name := range m.policies {
		if _, ok := next[name]; !ok {
			removed++
		}
	}

	m.policies = next
	if m.metrics != nil {
		m.metrics.RecordReload(true)
	}
	m.logger.Info("policies reloaded",
		"kept", kept,
		"rebuilt", rebuilt,
		"removed", removed,
	)
	return nil
}

// Close stops the manager. Subsequent checks return ErrManagerClosed.
// Close does not close the journal recorder.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for _, p := range m.policies {
		p.limiter.Reset()
	}
	return nil
}

// Healthy returns ErrManagerClosed once the manager is closed.
func (m *Manager) Healthy(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrManagerClosed
	}
	return nil
}

// lookup returns the named policy.
func (m *Manager) lookup(name string) (*policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	p, ok := m.policies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return p, nil
}

// keyCounts returns the number of keys with state per policy.
func (m *Manager) keyCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int, len(m.policies))
	for name, p := range m.policies {
		counts[name] = p.limiter.Len()
	}
	return counts
}

// buildPolicies creates limiters for configs, reusing entries of current
// whose configuration is identical.
func (m *Manager) buildPolicies(configs map[string]ratelimit.Config, current map[string]*policy) (map[string]*policy, error) {
	policies := make(map[string]*policy, len(configs))

	for name, cfg := range configs {
		if name == "" {
			return nil, fmt.Errorf("%w: policy name cannot be empty", ratelimit.ErrInvalidConfig)
		}
		if old, ok := current[name]; ok && old.config == cfg {
			policies[name] = old
			continue
		}

		limiter, err := ratelimit.New(cfg,
			ratelimit.WithClock(m.clock),
			ratelimit.WithShards(m.shards),
		)
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", name, err)
		}
		policies[name] = &policy{config: cfg, limiter: limiter}
	}

	return policies, nil
}

func errorReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownPolicy):
		return "unknown_policy"
	case errors.Is(err, ErrManagerClosed):
		return "closed"
	default:
		return "internal"
	}
}
