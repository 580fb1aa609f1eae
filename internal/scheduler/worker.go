package scheduler

import (
	"context"
	"fmt"

	"colorgarb_portal_backend/internal/events"
	"colorgarb_portal_backend/platform/config"
	"colorgarb_portal_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// ExportRunner executes a queued communication-audit export job.
type ExportRunner interface {
	RunExportJob(ctx context.Context, jobID uuid.UUID) error
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	exports ExportRunner
	bus     events.Bus
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, exports ExportRunner, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		exports: exports,
		bus:     bus,
		log:     log,
	}

	mux.HandleFunc(TaskAuditExportRun, w.handleAuditExportRun)
	mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)

	return w, nil
}

func (w *Worker) handleAuditExportRun(ctx context.Context, task *asynq.Task) error {
	if w.exports == nil {
		return nil
	}

	payload, err := ParseAuditExportPayload(task)
	if err != nil {
		return err
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return err
	}

	w.log.Info("running audit export job", "jobId", jobID)
	return w.exports.RunExportJob(ctx, jobID)
}

func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	return w.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  outboxID,
	})
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
