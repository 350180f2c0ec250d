package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/knossos-io/knossos/pkg/api"
	"github.com/knossos-io/knossos/pkg/audit"
	"github.com/knossos-io/knossos/pkg/config"
	"github.com/knossos-io/knossos/pkg/middleware"
	"github.com/knossos-io/knossos/pkg/observability"
	"github.com/knossos-io/knossos/pkg/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting knossos API server")

	ctx := context.Background()

	db, err := storage.OpenPostgres(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	schema := storage.DefaultSchema()
	if err := storage.RunMigrations(ctx, db, schema); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}
	logger.Info("Database migrations applied")

	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		redisClient, err = storage.OpenRedis(ctx, cfg.Storage)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to redis")
			os.Exit(1)
		}
		defer redisClient.Close()
		logger.Info("Redis connected")
	}

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	auditLogger, err := audit.NewDBLogger(db, schema)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize audit logger")
		os.Exit(1)
	}
	auditStore := audit.NewDBStore(auditLogger)

	requestLog := logrus.New()
	requestLog.SetFormatter(&logrus.JSONFormatter{})

	server := api.NewServer(db, schema, api.Options{
		Logger:         requestLog,
		Metrics:        metrics,
		AuditLogger:    auditLogger,
		AuditStore:     auditStore,
		LogAllRequests: cfg.Audit.LogAllRequests,
		RateLimit:      buildRateLimit(ctx, cfg, redisClient, metrics, logger),
	})

	var apiHandler http.Handler = server
	if providers != nil {
		apiHandler = otelhttp.NewHandler(server, "knossos.api")
	}

	apiSrv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthSrv := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     healthMux,
		ReadTimeout: 5 * time.Second,
	}

	if metrics != nil {
		go pollDBStats(ctx, logger, metrics, db)
	}

	var g errgroup.Group
	g.Go(func() error {
		logger.Infof("API server listening on %s", apiSrv.Addr)
		if err := apiSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("Health server listening on %s", healthSrv.Addr)
		if err := healthSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	sm := observability.NewShutdownManager(logger, apiSrv, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthSrv.Shutdown(ctx)
	})
	if providers != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
	}
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

// buildRateLimit picks the configured limiter. With KNOSSOS_RATELIMIT_DISTRIBUTED
// the limit is enforced through Redis so it holds across replicas; otherwise
// each process keeps its own token buckets.
func buildRateLimit(ctx context.Context, cfg *config.Config, redisClient *redis.Client, metrics *observability.Metrics, logger *observability.Logger) mux.MiddlewareFunc {
	if !cfg.RateLimit.Enabled {
		return nil
	}

	onDrop := func(scope string) {
		if metrics != nil {
			metrics.RateLimitDropsTotal.WithLabelValues(scope).Inc()
		}
	}

	if cfg.RateLimit.Distributed && redisClient != nil {
		m := middleware.NewDistributedRateLimitMiddleware(redisClient)
		m.OnDrop = onDrop
		logger.Info("Distributed rate limiting enabled")
		return m.Handler
	}

	m := middleware.NewRateLimitMiddlewareWithConfig(cfg.RateLimit.RequestsPerMinute)
	m.OnDrop = onDrop
	m.StartCleanup(ctx)
	logger.Info("Local rate limiting enabled")
	return m.Handler
}

// pollDBStats feeds connection pool gauges once a minute.
func pollDBStats(ctx context.Context, logger *observability.Logger, metrics *observability.Metrics, db *sql.DB) {
	defer observability.RecoverPanic(logger, "db stats poller")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBStats(db)
		}
	}
}
