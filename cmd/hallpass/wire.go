package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/hallpass-dev/hallpass/internal/config"
	"github.com/hallpass-dev/hallpass/internal/db"
	"github.com/hallpass-dev/hallpass/internal/hallpass/archive"
	s3sink "github.com/hallpass-dev/hallpass/internal/hallpass/archive/s3"
	"github.com/hallpass-dev/hallpass/internal/hallpass/rules"
	"github.com/hallpass-dev/hallpass/internal/hallpass/service"
	"github.com/hallpass-dev/hallpass/internal/hallpass/store"
	"github.com/hallpass-dev/hallpass/internal/hallpass/store/memory"
	"github.com/hallpass-dev/hallpass/internal/hallpass/store/sqlite"
	"github.com/hallpass-dev/hallpass/internal/metrics"
)

// app is the wired dependency graph shared by every subcommand.
type app struct {
	cfg        config.Config
	store      store.DocumentStore
	metrics    *metrics.Recorder
	audit      *service.AuditLog
	passes     *service.PassService
	groups     *service.GroupService
	locations  *service.LocationService
	escalation *service.EscalationService
	sweeper    *service.Sweeper
	closers    []func()
}

func (a *app) escalationConfig() rules.EscalationConfig {
	return rules.EscalationConfig{
		WarningMinutes: a.cfg.EscalationWarningMinutes,
		AlertMinutes:   a.cfg.EscalationAlertMinutes,
	}
}

func newApp(ctx context.Context, cfg config.Config, logger *log.Logger) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}

	switch cfg.Store {
	case "sqlite":
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
		if err != nil {
			return nil, err
		}
		writer := db.NewWorker(conn)
		a.store = sqlite.NewDocumentStore(conn, writer)
		a.closers = append(a.closers, writer.Close, func() { _ = conn.Close() })
		logger.Printf("store: sqlite (%s)", cfg.DBPath)
	default:
		a.store = memory.New()
		logger.Printf("store: memory")
	}

	var sink archive.Sink
	if cfg.ArchiveS3Bucket != "" {
		s, err := s3sink.New(ctx, s3sink.Config{
			Bucket:    cfg.ArchiveS3Bucket,
			Region:    cfg.ArchiveS3Region,
			Endpoint:  cfg.ArchiveS3Endpoint,
			PathStyle: cfg.ArchiveS3PathStyle,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("archive sink: %w", err)
		}
		sink = s
		logger.Printf("archive: s3://%s", cfg.ArchiveS3Bucket)
	}

	a.audit = service.NewAuditLog(a.store, nil)
	a.passes = service.NewPassService(a.store, a.audit, service.PassConfig{
		RestroomLocationID: cfg.RestroomLocationID,
		Sink:               sink,
		Metrics:            a.metrics,
	}, logger)
	a.groups = service.NewGroupService(a.store, a.passes)
	a.locations = service.NewLocationService(a.store)
	a.escalation = service.NewEscalationService(a.store, a.metrics, nil)
	a.sweeper = service.NewSweeper(a.passes, a.escalation, a.audit, service.SweeperConfig{
		Escalation:         a.escalationConfig(),
		ArchiveAfterDays:   cfg.ArchiveAfterDays,
		AuditRetentionDays: cfg.AuditRetentionDays,
		IntervalMinutes:    cfg.SweepIntervalMinutes,
		Metrics:            a.metrics,
	}, logger)

	return a, nil
}

// close releases resources in reverse acquisition order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openSQLite opens the configured database without building the services.
func openSQLite(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	return db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
}
