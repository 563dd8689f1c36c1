package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncCountsByLabel(t *testing.T) {
	m := New(nil)
	m.Inc("login", "success")
	m.Inc("login", "success")
	m.Inc("login", "failure")

	if got := testutil.ToFloat64(m.authEvents.WithLabelValues("login", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.authEvents.WithLabelValues("login", "failure")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestRegistriesAreIsolated(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.Inc("logout", "success")

	if got := testutil.ToFloat64(b.authEvents.WithLabelValues("logout", "success")); got != 0 {
		t.Fatalf("expected isolated registry, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	dropped := uint64(7)
	m := New(func() uint64 { return dropped })
	m.Inc("refresh", "success")
	m.ObserveHTTP("POST", "/auth/login", 200, 12*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`portunus_auth_events_total{event="refresh",outcome="success"} 1`,
		`portunus_http_requests_total{method="POST",route="/auth/login",status="200"} 1`,
		`portunus_http_request_duration_seconds_count{method="POST",route="/auth/login"} 1`,
		`portunus_audit_dropped_events 7`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in exposition output", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc("login", "success")
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	if m.Registry() != nil {
		t.Fatal("expected nil registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
