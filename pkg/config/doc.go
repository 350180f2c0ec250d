// Package config loads application configuration from KNOSSOS_* environment
// variables.
//
// Configuration covers the HTTP server, PostgreSQL and Redis connections,
// audit trail behavior, rate limiting, and observability (log level, metrics,
// OpenTelemetry). Every value has a sensible default except the PostgreSQL
// URL, which is required.
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	db, err := storage.OpenPostgres(ctx, cfg.Storage)
package config
