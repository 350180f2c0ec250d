package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker probes the platform's two backing stores: Postgres, which
// is required, and Redis, which only the distributed rate limiter uses and
// whose loss degrades rather than kills the service.
type HealthChecker struct {
	db    *sql.DB
	redis *redis.Client
}

// NewHealthChecker creates a health checker. redis may be nil when the
// deployment runs without it.
func NewHealthChecker(db *sql.DB, redis *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redis: redis}
}

// ProbeResult is the outcome of a single dependency probe.
type ProbeResult struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthReport is the readiness payload.
type HealthReport struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Probes    map[string]ProbeResult `json:"probes,omitempty"`
}

// serviceVersion reads the module version stamped into the binary.
func serviceVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "devel"
}

// Liveness answers 200 whenever the process is serving.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"service":   defaultServiceName,
		"timestamp": time.Now(),
	})
}

// Readiness probes the backing stores and answers 503 when the service
// cannot do useful work.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if report.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(report)
}

// Check runs every configured probe and folds the results into one status.
// Postgres being down is unhealthy; Redis being down is degraded.
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:    StatusHealthy,
		Service:   defaultServiceName,
		Version:   serviceVersion(),
		Timestamp: time.Now(),
		Probes:    make(map[string]ProbeResult),
	}

	if h.db != nil {
		result := h.probePostgres(ctx)
		report.Probes["postgres"] = result
		switch result.Status {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
		case StatusDegraded:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}

	if h.redis != nil {
		result := h.probeRedis(ctx)
		report.Probes["redis"] = result
		if result.Status == StatusUnhealthy && report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}

	return report
}

func (h *HealthChecker) probePostgres(ctx context.Context) ProbeResult {
	start := time.Now()

	if err := h.db.PingContext(ctx); err != nil {
		return ProbeResult{
			Status:    StatusUnhealthy,
			Detail:    err.Error(),
			LatencyMS: time.Since(start).Milliseconds(),
		}
	}

	var one int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return ProbeResult{
			Status:    StatusUnhealthy,
			Detail:    "query failed: " + err.Error(),
			LatencyMS: time.Since(start).Milliseconds(),
		}
	}

	result := ProbeResult{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	stats := h.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
		result.Status = StatusDegraded
		result.Detail = "connection pool exhausted"
	}
	return result
}

func (h *HealthChecker) probeRedis(ctx context.Context) ProbeResult {
	start := time.Now()

	if err := h.redis.Ping(ctx).Err(); err != nil {
		return ProbeResult{
			Status:    StatusUnhealthy,
			Detail:    err.Error(),
			LatencyMS: time.Since(start).Milliseconds(),
		}
	}
	return ProbeResult{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
}

// RegisterHealthRoutes mounts the probes on the operational listener, away
// from the public API port.
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
