package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"colorgarb_portal_backend/internal/audit"
	"colorgarb_portal_backend/internal/auth"
	"colorgarb_portal_backend/internal/email"
	"colorgarb_portal_backend/internal/events"
	apphttp "colorgarb_portal_backend/internal/http"
	"colorgarb_portal_backend/internal/http/router"
	"colorgarb_portal_backend/internal/messages"
	"colorgarb_portal_backend/internal/notification"
	"colorgarb_portal_backend/internal/orders"
	"colorgarb_portal_backend/internal/pdf"
	"colorgarb_portal_backend/internal/scheduler"
	"colorgarb_portal_backend/internal/storage"
	"colorgarb_portal_backend/migrations"
	"colorgarb_portal_backend/platform/config"
	"colorgarb_portal_backend/platform/db"
	"colorgarb_portal_backend/platform/logger"
	"colorgarb_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS, ".")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Redis backs message search history and the asynq scheduler queue.
	redisOpt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to parse REDIS_URL", "error", err)
		panic("failed to parse REDIS_URL: " + err.Error())
	}
	rdb := redis.NewClient(redisOpt)
	defer rdb.Close()

	schedulerClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer schedulerClient.Close()

	sender := email.NewSMTPSender(cfg)

	// Shared validator instance for dependency injection
	val := validator.New()

	// Object store for export artifacts (MinIO)
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
		log.Info("export object store initialized", "bucket", cfg.GetMinioBucketExports())
	} else {
		log.Warn("MinIO not configured; audit export downloads disabled")
	}

	// Gotenberg PDF generator for compliance reports
	var converter pdf.Converter
	if cfg.IsGotenbergEnabled() {
		converter = pdf.NewGotenbergClient(cfg.GetGotenbergURL(), cfg.GetGotenbergUsername(), cfg.GetGotenbergPassword())
		log.Info("gotenberg PDF generator initialized", "url", cfg.GetGotenbergURL())
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Notification module subscribes to domain events and owns the outbox
	notificationModule := notification.New(pool, sender, cfg, log)
	notificationModule.RegisterHandlers(eventBus)
	notificationModule.SetOutboxScheduler(schedulerClient)

	authModule := auth.NewModule(pool, cfg, log)
	ordersModule := orders.NewModule(pool, val, eventBus, log)
	messagesModule := messages.NewModule(pool, rdb, val, eventBus, log)
	auditModule := audit.NewModule(pool, exportStore, schedulerClient, converter, val, eventBus, log, cfg)

	// Delivered notifications are mirrored into the communication audit trail
	notificationModule.SetAuditRecorder(auditModule.Service())

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			authModule,
			ordersModule,
			messagesModule,
			auditModule,
			notificationModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
