package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("creates and registers all metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		if metrics == nil {
			t.Fatal("NewMetrics returned nil")
		}

		if metrics.HTTPRequestsTotal == nil {
			t.Error("HTTPRequestsTotal is nil")
		}
		if metrics.HTTPRequestDuration == nil {
			t.Error("HTTPRequestDuration is nil")
		}
		if metrics.AccessDecisionsTotal == nil {
			t.Error("AccessDecisionsTotal is nil")
		}
		if metrics.AccessCheckDuration == nil {
			t.Error("AccessCheckDuration is nil")
		}
		if metrics.AuditEventsTotal == nil {
			t.Error("AuditEventsTotal is nil")
		}
		if metrics.RateLimitDropsTotal == nil {
			t.Error("RateLimitDropsTotal is nil")
		}
		if metrics.DBConnectionsActive == nil {
			t.Error("DBConnectionsActive is nil")
		}
		if metrics.RedisCommandsTotal == nil {
			t.Error("RedisCommandsTotal is nil")
		}
		if metrics.WorkspacesTotal == nil {
			t.Error("WorkspacesTotal is nil")
		}
	})

	t.Run("metrics are registered with registry", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		// Initialize some metrics to make them appear in Gather()
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Add(0)
		metrics.AccessDecisionsTotal.WithLabelValues("knowledge_entry", "allowed").Add(0)
		metrics.AuditEventsTotal.WithLabelValues("data.entry_update", "success").Add(0)

		families, err := registry.Gather()
		if err != nil {
			t.Fatalf("Gather failed: %v", err)
		}

		found := map[string]bool{}
		for _, family := range families {
			found[family.GetName()] = true
		}
		for _, name := range []string{
			"knossos_http_requests_total",
			"knossos_access_decisions_total",
			"knossos_audit_events_total",
		} {
			if !found[name] {
				t.Errorf("Metric %s not registered", name)
			}
		}
	})
}

func TestObserveAccessDecision(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ObserveAccessDecision("knowledge_entry", "allowed", 2*time.Millisecond)
	metrics.ObserveAccessDecision("knowledge_entry", "denied", 1*time.Millisecond)
	metrics.ObserveAccessDecision("workspace", "allowed", 1*time.Millisecond)

	expected := `
# HELP knossos_access_decisions_total Total number of access resolution decisions
# TYPE knossos_access_decisions_total counter
knossos_access_decisions_total{decision="allowed",resource="knowledge_entry"} 1
knossos_access_decisions_total{decision="allowed",resource="workspace"} 1
knossos_access_decisions_total{decision="denied",resource="knowledge_entry"} 1
`
	if err := testutil.CollectAndCompare(metrics.AccessDecisionsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected decision counters: %v", err)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	expected := `
# HELP knossos_http_requests_total Total number of HTTP requests
# TYPE knossos_http_requests_total counter
knossos_http_requests_total{method="GET",path="/api/test",status="418"} 1
`
	if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected request counters: %v", err)
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.WorkspacesTotal.Set(3)

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "knossos_workspaces_total 3") {
		t.Errorf("Expected workspace gauge in exposition, got:\n%s", rec.Body.String())
	}
}
