package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"colorgarb_portal_backend/internal/audit"
	"colorgarb_portal_backend/internal/email"
	"colorgarb_portal_backend/internal/events"
	"colorgarb_portal_backend/internal/notification"
	"colorgarb_portal_backend/internal/pdf"
	"colorgarb_portal_backend/internal/scheduler"
	"colorgarb_portal_backend/internal/storage"
	"colorgarb_portal_backend/platform/config"
	"colorgarb_portal_backend/platform/db"
	"colorgarb_portal_backend/platform/logger"
	"colorgarb_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	schedulerClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer schedulerClient.Close()

	sender := email.NewSMTPSender(cfg)
	val := validator.New()

	var exportStore storage.ObjectStore
	if cfg.IsMinIOEnabled() {
		if err := withRetry(ctx, log, "export object store", 5, 2*time.Second, func() error {
			s, err := storage.NewMinIOStore(ctx, cfg)
			if err != nil {
				return err
			}
			exportStore = s
			return nil
		}); err != nil {
			log.Error("failed to initialize export object store", "error", err)
			panic("failed to initialize export object store: " + err.Error())
		}
	} else {
		log.Warn("MinIO not configured; export artifacts cannot be stored")
	}

	var converter pdf.Converter
	if cfg.IsGotenbergEnabled() {
		converter = pdf.NewGotenbergClient(cfg.GetGotenbergURL(), cfg.GetGotenbergUsername(), cfg.GetGotenbergPassword())
	}

	// Worker-side wiring: exports run here, outbox due events are handled here.
	auditModule := audit.NewModule(pool, exportStore, schedulerClient, converter, val, eventBus, log, cfg)

	notificationModule := notification.New(pool, sender, cfg, log)
	notificationModule.RegisterHandlers(eventBus)
	notificationModule.SetOutboxScheduler(schedulerClient)
	notificationModule.SetAuditRecorder(auditModule.Service())

	worker, err := scheduler.NewWorker(cfg, auditModule.Service(), eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
