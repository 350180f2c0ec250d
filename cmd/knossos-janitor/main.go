package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/knossos-io/knossos/pkg/audit"
	"github.com/knossos-io/knossos/pkg/config"
	"github.com/knossos-io/knossos/pkg/observability"
	"github.com/knossos-io/knossos/pkg/orgs"
	"github.com/knossos-io/knossos/pkg/storage"
)

// The janitor runs the periodic maintenance jobs that the API server should
// not carry: pruning expired invitations and enforcing the audit retention
// policy.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting knossos janitor")

	ctx := context.Background()

	db, err := storage.OpenPostgres(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	schema := storage.DefaultSchema()
	orgService := orgs.NewPostgresService(db, schema)

	auditLogger, err := audit.NewDBLogger(db, schema)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize audit logger")
		os.Exit(1)
	}
	auditStore := audit.NewDBStore(auditLogger)
	retention := audit.RetentionPolicy{RetentionDays: cfg.Audit.RetentionDays}

	c := cron.New()

	_, err = c.AddFunc("@hourly", func() {
		defer observability.RecoverPanic(logger, "invitation cleanup")
		jobCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		removed, err := orgService.CleanupExpiredInvitations(jobCtx)
		if err != nil {
			logger.WithError(err).Error("Invitation cleanup failed")
			return
		}
		logger.WithField("removed", removed).Info("Expired invitations pruned")
	})
	if err != nil {
		logger.WithError(err).Error("Failed to schedule invitation cleanup")
		os.Exit(1)
	}

	_, err = c.AddFunc("@daily", func() {
		defer observability.RecoverPanic(logger, "audit retention cleanup")
		jobCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
		defer cancel()

		removed, err := auditStore.Cleanup(jobCtx, retention)
		if err != nil {
			logger.WithError(err).Error("Audit retention cleanup failed")
			return
		}
		logger.WithFields(map[string]interface{}{
			"removed":        removed,
			"retention_days": retention.RetentionDays,
		}).Info("Audit events pruned")
	})
	if err != nil {
		logger.WithError(err).Error("Failed to schedule audit cleanup")
		os.Exit(1)
	}

	c.Start()
	logger.Info("Janitor schedules registered")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Stopping janitor")
	stopCtx := c.Stop()
	<-stopCtx.Done()
	logger.Info("Janitor stopped")
}
