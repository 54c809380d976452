package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	if got := New(0).checkTimeout; got != 5*time.Second {
		t.Errorf("expected default timeout 5s, got %v", got)
	}
	if got := New(time.Second).checkTimeout; got != time.Second {
		t.Errorf("expected timeout 1s, got %v", got)
	}
}

func TestRegisterAndList(t *testing.T) {
	checker := New(time.Second)
	checker.RegisterCheck("policies", func(ctx context.Context) error { return nil })
	checker.RegisterCheck("journal", func(ctx context.Context) error { return nil })

	if got, want := checker.ListChecks(), []string{"journal", "policies"}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	checker.UnregisterCheck("journal")
	if got := checker.ListChecks(); len(got) != 1 {
		t.Errorf("expected 1 check after unregister, got %d", len(got))
	}
}

func TestCheckReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
	}{
		{
			name:   "no checks",
			checks: nil,
			want:   StatusReady,
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"a": func(ctx context.Context) error { return nil },
				"b": func(ctx context.Context) error { return nil },
			},
			want: StatusReady,
		},
		{
			name: "one failing",
			checks: map[string]CheckFunc{
				"a": func(ctx context.Context) error { return nil },
				"b": func(ctx context.Context) error { return errors.New("down") },
			},
			want: StatusDegraded,
		},
		{
			name: "timeout",
			checks: map[string]CheckFunc{
				"slow": func(ctx context.Context) error {
					<-ctx.Done()
					time.Sleep(10 * time.Millisecond)
					return nil
				},
			},
			want: StatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(50 * time.Millisecond)
			for name, check := range tt.checks {
				checker.RegisterCheck(name, check)
			}

			status := checker.CheckReadiness(context.Background())
			if status.Status != tt.want {
				t.Errorf("expected status %q, got %q", tt.want, status.Status)
			}
			if len(status.Checks) != len(tt.checks) {
				t.Errorf("expected %d results, got %d", len(tt.checks), len(status.Checks))
			}
		})
	}
}

func TestCheckReadiness_TimeoutMessage(t *testing.T) {
	checker := New(20 * time.Millisecond)
	checker.RegisterCheck("slow", func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	result := checker.CheckReadiness(context.Background()).Checks["slow"]
	if result.Message != ErrCheckTimeout.Error() {
		t.Errorf("expected timeout message, got %q", result.Message)
	}
}

func TestReadinessHandler(t *testing.T) {
	checker := New(time.Second)
	checker.RegisterCheck("journal", func(ctx context.Context) error { return errors.New("database is locked") })

	rec := httptest.NewRecorder()
	checker.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.Checks["journal"].Message != "database is locked" {
		t.Errorf("unexpected check result: %+v", status.Checks["journal"])
	}
}

func TestReadinessHandler_Draining(t *testing.T) {
	checker := New(time.Second)

	rec := httptest.NewRecorder()
	checker.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	checker.SetDraining(true)
	rec = httptest.NewRecorder()
	checker.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 while draining, got %d", rec.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	checker := New(time.Second)
	checker.SetDraining(true)

	rec := httptest.NewRecorder()
	checker.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	rec = httptest.NewRecorder()
	checker.LivenessHandler()(rec, httptest.NewRequest(http.MethodHead, "/health", nil))
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body for HEAD, got %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	checker.LivenessHandler()(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
