// Package service implements communication audit search, export, and
// compliance reporting.
package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"colorgarb_portal_backend/internal/audit/export"
	"colorgarb_portal_backend/internal/audit/repository"
	"colorgarb_portal_backend/internal/events"
	"colorgarb_portal_backend/internal/pdf"
	"colorgarb_portal_backend/internal/scheduler"
	"colorgarb_portal_backend/internal/storage"
	"colorgarb_portal_backend/platform/apperr"
	"colorgarb_portal_backend/platform/config"
	"colorgarb_portal_backend/platform/logger"

	"github.com/google/uuid"
)

// LogStore is the audit log persistence surface.
type LogStore interface {
	Append(ctx context.Context, p repository.AppendParams) (repository.CommunicationLog, error)
	Search(ctx context.Context, f repository.SearchFilters) (repository.SearchResult, error)
	Stream(ctx context.Context, f repository.SearchFilters, limit int, fn func(repository.CommunicationLog) error) (int, error)
	Count(ctx context.Context, f repository.SearchFilters) (int, error)
}

// JobStore is the export job persistence surface.
type JobStore interface {
	CreateJob(ctx context.Context, requestedBy uuid.UUID, format string, filters repository.SearchFilters, recordCount int) (repository.ExportJob, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (repository.ExportJob, error)
	CompleteJob(ctx context.Context, jobID uuid.UUID, objectKey string, recordCount int) error
	FailJob(ctx context.Context, jobID uuid.UUID, message string) error
	DeleteJob(ctx context.Context, jobID uuid.UUID) (repository.ExportJob, error)
}

// Service implements communication audit operations.
type Service struct {
	logs      LogStore
	jobs      JobStore
	store     storage.ObjectStore
	exporter  scheduler.ExportScheduler
	converter pdf.Converter
	bus       events.Bus
	log       *logger.Logger

	syncThreshold int
	maxRecords    int
	downloadTTL   time.Duration
}

// New creates the audit service.
func New(
	logs LogStore,
	jobs JobStore,
	store storage.ObjectStore,
	exporter scheduler.ExportScheduler,
	converter pdf.Converter,
	bus events.Bus,
	log *logger.Logger,
	cfg config.ExportConfig,
) *Service {
	return &Service{
		logs:          logs,
		jobs:          jobs,
		store:         store,
		exporter:      exporter,
		converter:     converter,
		bus:           bus,
		log:           log,
		syncThreshold: cfg.GetExportSyncThreshold(),
		maxRecords:    cfg.GetExportMaxRecords(),
		downloadTTL:   cfg.GetExportDownloadTTL(),
	}
}

// Record appends an immutable audit entry. Called by messaging and
// notification delivery paths.
func (s *Service) Record(ctx context.Context, p repository.AppendParams) error {
	_, err := s.logs.Append(ctx, p)
	return err
}

// Search returns one page of matching audit entries with aggregates.
func (s *Service) Search(ctx context.Context, f repository.SearchFilters) (repository.SearchResult, error) {
	return s.logs.Search(ctx, f)
}

// SyncExport carries an export artifact written inline with the request.
type SyncExport struct {
	Data        []byte
	FileName    string
	ContentType string
	RecordCount int
}

// ExportOutcome is either an inline artifact or a queued job, never both.
type ExportOutcome struct {
	Sync *SyncExport
	Job  *repository.ExportJob
}

func validFormat(format string) bool {
	return format == repository.FormatCSV || format == repository.FormatExcel
}

// Export writes small result sets synchronously; larger ones become an async
// job handed to the worker.
func (s *Service) Export(ctx context.Context, requestedBy uuid.UUID, format string, f repository.SearchFilters, maxRecords int) (ExportOutcome, error) {
	if !validFormat(format) {
		return ExportOutcome{}, apperr.Validation("export format must be csv or excel")
	}
	if maxRecords <= 0 || maxRecords > s.maxRecords {
		maxRecords = s.maxRecords
	}

	total, err := s.logs.Count(ctx, f)
	if err != nil {
		return ExportOutcome{}, err
	}
	if total > maxRecords {
		total = maxRecords
	}

	if total <= s.syncThreshold {
		artifact, count, err := s.writeArtifact(ctx, format, f, total)
		if err != nil {
			return ExportOutcome{}, err
		}
		return ExportOutcome{Sync: &SyncExport{
			Data:        artifact,
			FileName:    artifactName(format),
			ContentType: export.ContentType(format),
			RecordCount: count,
		}}, nil
	}

	job, err := s.jobs.CreateJob(ctx, requestedBy, format, f, total)
	if err != nil {
		return ExportOutcome{}, err
	}
	if s.log != nil {
		s.log.ExportJob(job.ID.String(), job.Status, job.RecordCount)
	}

	err = s.exporter.ScheduleAuditExport(ctx, scheduler.AuditExportPayload{
		JobID:       job.ID.String(),
		RequestedBy: requestedBy.String(),
	})
	if err != nil {
		// The job stays visible with the failure recorded rather than
		// silently appearing stuck in Processing.
		_ = s.jobs.FailJob(ctx, job.ID, "failed to enqueue export task")
		return ExportOutcome{}, apperr.Wrap(apperr.KindInternal, "enqueue export task", err)
	}

	return ExportOutcome{Job: &job}, nil
}

func (s *Service) writeArtifact(ctx context.Context, format string, f repository.SearchFilters, limit int) ([]byte, int, error) {
	var buf bytes.Buffer
	w, err := export.NewWriter(format, &buf)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "create export writer", err)
	}

	count, err := s.logs.Stream(ctx, f, limit, w.Write)
	if err != nil {
		return nil, 0, err
	}
	if err := w.Flush(); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "finalize export artifact", err)
	}
	return buf.Bytes(), count, nil
}

func artifactName(format string) string {
	return fmt.Sprintf("communication-audit-%s%s",
		time.Now().UTC().Format("20060102-150405"), export.FileExtension(format))
}

// RunExportJob is the worker entry point: it writes the artifact, uploads it,
// and drives the job to a terminal state. Failures mark the job Failed; the
// task itself succeeds so asynq does not retry a job already terminal.
func (s *Service) RunExportJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != repository.JobProcessing {
		return nil
	}

	limit := job.RecordCount
	if limit <= 0 || limit > s.maxRecords {
		limit = s.maxRecords
	}

	artifact, count, err := s.writeArtifact(ctx, job.Format, job.Filters, limit)
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	key := fmt.Sprintf("exports/%s/%s", job.ID, artifactName(job.Format))
	err = s.store.Upload(ctx, key, export.ContentType(job.Format),
		bytes.NewReader(artifact), int64(len(artifact)))
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	if err := s.jobs.CompleteJob(ctx, job.ID, key, count); err != nil {
		return err
	}
	if s.log != nil {
		s.log.ExportJob(job.ID.String(), repository.JobCompleted, count)
	}
	if s.bus != nil {
		s.bus.Publish(ctx, events.ExportJobFinished{
			BaseEvent:   events.NewBaseEvent(),
			JobID:       job.ID,
			RequestedBy: job.RequestedBy,
			Status:      repository.JobCompleted,
			RecordCount: count,
		})
	}
	return nil
}

func (s *Service) failJob(ctx context.Context, job repository.ExportJob, cause error) error {
	if err := s.jobs.FailJob(ctx, job.ID, cause.Error()); err != nil {
		return err
	}
	if s.log != nil {
		s.log.ExportJob(job.ID.String(), repository.JobFailed, job.RecordCount)
	}
	if s.bus != nil {
		s.bus.Publish(ctx, events.ExportJobFinished{
			BaseEvent:   events.NewBaseEvent(),
			JobID:       job.ID,
			RequestedBy: job.RequestedBy,
			Status:      repository.JobFailed,
			Error:       cause.Error(),
		})
	}
	return nil
}

// JobStatus is the poll view of an export job.
type JobStatus struct {
	JobID        uuid.UUID
	Status       string
	DownloadURL  string
	ErrorMessage string
	RecordCount  int
}

// Status returns the job's current state, with a fresh presigned download
// link when completed.
func (s *Service) Status(ctx context.Context, jobID, requestedBy uuid.UUID) (JobStatus, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return JobStatus{}, err
	}
	if job.RequestedBy != requestedBy {
		return JobStatus{}, apperr.NotFound("export job not found")
	}

	status := JobStatus{
		JobID:        job.ID,
		Status:       job.Status,
		ErrorMessage: job.ErrorMessage,
		RecordCount:  job.RecordCount,
	}
	if job.Status == repository.JobCompleted && job.ObjectKey != "" {
		url, err := s.store.PresignedDownloadURL(ctx, job.ObjectKey, s.downloadTTL)
		if err != nil {
			return JobStatus{}, apperr.Wrap(apperr.KindInternal, "presign export download", err)
		}
		status.DownloadURL = url
	}
	return status, nil
}

// Dismiss removes a job record in any state, cleaning up its artifact.
func (s *Service) Dismiss(ctx context.Context, jobID, requestedBy uuid.UUID) error {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.RequestedBy != requestedBy {
		return apperr.NotFound("export job not found")
	}

	deleted, err := s.jobs.DeleteJob(ctx, jobID)
	if err != nil {
		return err
	}
	if deleted.ObjectKey != "" {
		if err := s.store.Delete(ctx, deleted.ObjectKey); err != nil && s.log != nil {
			s.log.Warn("export artifact cleanup failed",
				"jobId", jobID.String(), "error", err.Error())
		}
	}
	return nil
}
