package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"colorgarb_portal_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Export job statuses. Lifecycle is strictly Processing to Completed or Failed.
const (
	JobProcessing = "Processing"
	JobCompleted  = "Completed"
	JobFailed     = "Failed"
)

// Export formats.
const (
	FormatCSV   = "csv"
	FormatExcel = "excel"
)

// ExportJob tracks one async communication-audit export.
type ExportJob struct {
	ID           uuid.UUID
	RequestedBy  uuid.UUID
	Format       string
	Filters      SearchFilters
	Status       string
	RecordCount  int
	ObjectKey    string
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// CreateJob inserts a new job in the Processing state.
func (r *Repository) CreateJob(ctx context.Context, requestedBy uuid.UUID, format string, filters SearchFilters, recordCount int) (ExportJob, error) {
	filterJSON, err := json.Marshal(filters)
	if err != nil {
		return ExportJob{}, apperr.Wrap(apperr.KindInternal, "encode export filters", err)
	}

	job := ExportJob{
		ID:          uuid.New(),
		RequestedBy: requestedBy,
		Format:      format,
		Filters:     filters,
		Status:      JobProcessing,
		RecordCount: recordCount,
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO export_jobs (id, requested_by, format, filters, status, record_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 RETURNING created_at`,
		job.ID, job.RequestedBy, job.Format, filterJSON, job.Status, job.RecordCount,
	).Scan(&job.CreatedAt)
	if err != nil {
		return ExportJob{}, apperr.Wrap(apperr.KindInternal, "create export job", err)
	}
	return job, nil
}

// GetJob loads one job.
func (r *Repository) GetJob(ctx context.Context, jobID uuid.UUID) (ExportJob, error) {
	var job ExportJob
	var filterJSON []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, requested_by, format, filters, status, record_count,
		        COALESCE(object_key, ''), COALESCE(error_message, ''), created_at, completed_at
		 FROM export_jobs WHERE id = $1`,
		jobID,
	).Scan(
		&job.ID, &job.RequestedBy, &job.Format, &filterJSON, &job.Status,
		&job.RecordCount, &job.ObjectKey, &job.ErrorMessage, &job.CreatedAt, &job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ExportJob{}, apperr.NotFound("export job not found")
	}
	if err != nil {
		return ExportJob{}, apperr.Wrap(apperr.KindInternal, "load export job", err)
	}
	if err := json.Unmarshal(filterJSON, &job.Filters); err != nil {
		return ExportJob{}, apperr.Wrap(apperr.KindInternal, "decode export filters", err)
	}
	return job, nil
}

// CompleteJob transitions a Processing job to Completed with its artifact key.
func (r *Repository) CompleteJob(ctx context.Context, jobID uuid.UUID, objectKey string, recordCount int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE export_jobs
		 SET status = $2, object_key = $3, record_count = $4, completed_at = now()
		 WHERE id = $1 AND status = $5`,
		jobID, JobCompleted, objectKey, recordCount, JobProcessing,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "complete export job", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("export job is not processing")
	}
	return nil
}

// FailJob transitions a Processing job to Failed with the error message.
func (r *Repository) FailJob(ctx context.Context, jobID uuid.UUID, message string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE export_jobs
		 SET status = $2, error_message = $3, completed_at = now()
		 WHERE id = $1 AND status = $4`,
		jobID, JobFailed, message, JobProcessing,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "fail export job", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("export job is not processing")
	}
	return nil
}

// DeleteJob removes a job record regardless of state. Returns the deleted job
// so callers can clean up its artifact.
func (r *Repository) DeleteJob(ctx context.Context, jobID uuid.UUID) (ExportJob, error) {
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return ExportJob{}, err
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM export_jobs WHERE id = $1`, jobID); err != nil {
		return ExportJob{}, apperr.Wrap(apperr.KindInternal, "delete export job", err)
	}
	return job, nil
}
