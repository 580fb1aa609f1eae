package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"colorgarb_portal_backend/internal/audit/repository"
	"colorgarb_portal_backend/internal/events"
	"colorgarb_portal_backend/internal/scheduler"
	"colorgarb_portal_backend/platform/apperr"

	"github.com/google/uuid"
)

type fakeLogStore struct {
	entries []repository.CommunicationLog
}

func (f *fakeLogStore) Append(ctx context.Context, p repository.AppendParams) (repository.CommunicationLog, error) {
	entry := repository.CommunicationLog{
		ID:             uuid.New(),
		OrderID:        p.OrderID,
		OrganizationID: p.OrganizationID,
		Type:           p.Type,
		Direction:      p.Direction,
		Sender:         p.Sender,
		Recipient:      p.Recipient,
		Subject:        p.Subject,
		BodyExcerpt:    p.BodyExcerpt,
		DeliveryStatus: p.DeliveryStatus,
		SentAt:         p.SentAt,
	}
	f.entries = append(f.entries, entry)
	return entry, nil
}

func (f *fakeLogStore) Search(ctx context.Context, filters repository.SearchFilters) (repository.SearchResult, error) {
	status := make(map[string]int)
	types := make(map[string]int)
	for _, e := range f.entries {
		status[e.DeliveryStatus]++
		types[e.Type]++
	}
	return repository.SearchResult{
		Logs:          f.entries,
		TotalCount:    len(f.entries),
		Page:          1,
		PageSize:      25,
		StatusSummary: status,
		TypeSummary:   types,
	}, nil
}

func (f *fakeLogStore) Stream(ctx context.Context, filters repository.SearchFilters, limit int, fn func(repository.CommunicationLog) error) (int, error) {
	count := 0
	for _, e := range f.entries {
		if count >= limit {
			break
		}
		if err := fn(e); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (f *fakeLogStore) Count(ctx context.Context, filters repository.SearchFilters) (int, error) {
	return len(f.entries), nil
}

type fakeJobStore struct {
	jobs map[uuid.UUID]repository.ExportJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]repository.ExportJob)}
}

func (f *fakeJobStore) CreateJob(ctx context.Context, requestedBy uuid.UUID, format string, filters repository.SearchFilters, recordCount int) (repository.ExportJob, error) {
	job := repository.ExportJob{
		ID:          uuid.New(),
		RequestedBy: requestedBy,
		Format:      format,
		Filters:     filters,
		Status:      repository.JobProcessing,
		RecordCount: recordCount,
		CreatedAt:   time.Now(),
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobStore) GetJob(ctx context.Context, jobID uuid.UUID) (repository.ExportJob, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return repository.ExportJob{}, apperr.NotFound("export job not found")
	}
	return job, nil
}

func (f *fakeJobStore) CompleteJob(ctx context.Context, jobID uuid.UUID, objectKey string, recordCount int) error {
	job, ok := f.jobs[jobID]
	if !ok || job.Status != repository.JobProcessing {
		return apperr.Conflict("export job is not processing")
	}
	job.Status = repository.JobCompleted
	job.ObjectKey = objectKey
	job.RecordCount = recordCount
	now := time.Now()
	job.CompletedAt = &now
	f.jobs[jobID] = job
	return nil
}

func (f *fakeJobStore) FailJob(ctx context.Context, jobID uuid.UUID, message string) error {
	job, ok := f.jobs[jobID]
	if !ok || job.Status != repository.JobProcessing {
		return apperr.Conflict("export job is not processing")
	}
	job.Status = repository.JobFailed
	job.ErrorMessage = message
	now := time.Now()
	job.CompletedAt = &now
	f.jobs[jobID] = job
	return nil
}

func (f *fakeJobStore) DeleteJob(ctx context.Context, jobID uuid.UUID) (repository.ExportJob, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return repository.ExportJob{}, apperr.NotFound("export job not found")
	}
	delete(f.jobs, jobID)
	return job, nil
}

type fakeObjectStore struct {
	objects   map[string][]byte
	uploadErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) Upload(ctx context.Context, key, contentType string, r io.Reader, size int64) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStore) PresignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if _, ok := f.objects[key]; !ok {
		return "", errors.New("no such object")
	}
	return "https://storage.example/" + key, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

type fakeScheduler struct {
	payloads []scheduler.AuditExportPayload
	err      error
}

func (f *fakeScheduler) ScheduleAuditExport(ctx context.Context, payload scheduler.AuditExportPayload) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

type fakeBus struct {
	events []events.Event
}

func (b *fakeBus) Publish(ctx context.Context, e events.Event)           { b.events = append(b.events, e) }
func (b *fakeBus) PublishSync(ctx context.Context, e events.Event) error { b.Publish(ctx, e); return nil }
func (b *fakeBus) Subscribe(eventName string, h events.Handler)          {}

type exportCfg struct {
	threshold int
}

func (c exportCfg) GetExportSyncThreshold() int         { return c.threshold }
func (c exportCfg) GetExportMaxRecords() int            { return 10000 }
func (c exportCfg) GetExportDownloadTTL() time.Duration { return 24 * time.Hour }

func seedLogs(logs *fakeLogStore, n int) {
	for i := 0; i < n; i++ {
		orderID := uuid.New()
		logs.entries = append(logs.entries, repository.CommunicationLog{
			ID:             uuid.New(),
			OrderID:        &orderID,
			Type:           repository.TypeEmail,
			Direction:      "Outbound",
			Sender:         "noreply@colorgarb.example",
			Recipient:      "director@example.org",
			Subject:        "Stage update",
			DeliveryStatus: repository.StatusDelivered,
			SentAt:         time.Now(),
		})
	}
}

func newTestService(threshold int) (*Service, *fakeLogStore, *fakeJobStore, *fakeObjectStore, *fakeScheduler, *fakeBus) {
	logs := &fakeLogStore{}
	jobs := newFakeJobStore()
	store := newFakeObjectStore()
	sched := &fakeScheduler{}
	bus := &fakeBus{}
	svc := New(logs, jobs, store, sched, nil, bus, nil, exportCfg{threshold: threshold})
	return svc, logs, jobs, store, sched, bus
}

func TestExportSyncBelowThreshold(t *testing.T) {
	svc, logs, _, _, sched, _ := newTestService(10)
	seedLogs(logs, 3)

	outcome, err := svc.Export(context.Background(), uuid.New(), repository.FormatCSV, repository.SearchFilters{}, 0)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if outcome.Sync == nil {
		t.Fatal("expected inline artifact below threshold")
	}
	if outcome.Job != nil {
		t.Error("job must not be created for a sync export")
	}
	if len(sched.payloads) != 0 {
		t.Error("no task should be enqueued for a sync export")
	}
	if outcome.Sync.RecordCount != 3 {
		t.Errorf("recordCount = %d, want 3", outcome.Sync.RecordCount)
	}

	records, err := csv.NewReader(bytes.NewReader(outcome.Sync.Data)).ReadAll()
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(records) != 4 {
		t.Errorf("csv rows = %d, want header plus 3", len(records))
	}
	if !strings.HasSuffix(outcome.Sync.FileName, ".csv") {
		t.Errorf("fileName = %q", outcome.Sync.FileName)
	}
}

func TestExportAsyncAboveThreshold(t *testing.T) {
	svc, logs, jobs, _, sched, _ := newTestService(2)
	seedLogs(logs, 5)
	requestedBy := uuid.New()

	outcome, err := svc.Export(context.Background(), requestedBy, repository.FormatExcel, repository.SearchFilters{}, 0)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if outcome.Job == nil {
		t.Fatal("expected queued job above threshold")
	}
	if outcome.Sync != nil {
		t.Error("no inline artifact for an async export")
	}
	if outcome.Job.Status != repository.JobProcessing {
		t.Errorf("status = %s, want Processing", outcome.Job.Status)
	}
	if outcome.Job.RecordCount != 5 {
		t.Errorf("recordCount = %d, want 5", outcome.Job.RecordCount)
	}
	if len(sched.payloads) != 1 || sched.payloads[0].JobID != outcome.Job.ID.String() {
		t.Errorf("scheduled payloads = %+v", sched.payloads)
	}
	if _, err := jobs.GetJob(context.Background(), outcome.Job.ID); err != nil {
		t.Errorf("job not persisted: %v", err)
	}
}

func TestExportEnqueueFailureFailsJob(t *testing.T) {
	svc, logs, jobs, _, sched, _ := newTestService(1)
	seedLogs(logs, 3)
	sched.err = errors.New("redis down")

	_, err := svc.Export(context.Background(), uuid.New(), repository.FormatCSV, repository.SearchFilters{}, 0)
	if err == nil {
		t.Fatal("expected enqueue failure")
	}

	for _, job := range jobs.jobs {
		if job.Status != repository.JobFailed {
			t.Errorf("job status = %s, want Failed", job.Status)
		}
	}
}

func TestExportInvalidFormat(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(10)

	_, err := svc.Export(context.Background(), uuid.New(), "pdf", repository.SearchFilters{}, 0)
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestRunExportJobCompletes(t *testing.T) {
	svc, logs, jobs, store, _, bus := newTestService(0)
	seedLogs(logs, 4)

	job, _ := jobs.CreateJob(context.Background(), uuid.New(), repository.FormatCSV, repository.SearchFilters{}, 4)

	if err := svc.RunExportJob(context.Background(), job.ID); err != nil {
		t.Fatalf("RunExportJob: %v", err)
	}

	updated, _ := jobs.GetJob(context.Background(), job.ID)
	if updated.Status != repository.JobCompleted {
		t.Fatalf("status = %s, want Completed", updated.Status)
	}
	if updated.ObjectKey == "" {
		t.Error("objectKey not set")
	}
	if _, ok := store.objects[updated.ObjectKey]; !ok {
		t.Error("artifact not uploaded")
	}

	if len(bus.events) != 1 {
		t.Fatalf("events = %d, want 1", len(bus.events))
	}
	finished, ok := bus.events[0].(events.ExportJobFinished)
	if !ok || finished.Status != repository.JobCompleted || finished.RecordCount != 4 {
		t.Errorf("event = %+v", bus.events[0])
	}
}

func TestRunExportJobUploadFailureMarksFailed(t *testing.T) {
	svc, logs, jobs, store, _, bus := newTestService(0)
	seedLogs(logs, 2)
	store.uploadErr = errors.New("bucket unavailable")

	job, _ := jobs.CreateJob(context.Background(), uuid.New(), repository.FormatCSV, repository.SearchFilters{}, 2)

	// The task returns nil: the failure is terminal, not retryable.
	if err := svc.RunExportJob(context.Background(), job.ID); err != nil {
		t.Fatalf("RunExportJob: %v", err)
	}

	updated, _ := jobs.GetJob(context.Background(), job.ID)
	if updated.Status != repository.JobFailed {
		t.Fatalf("status = %s, want Failed", updated.Status)
	}
	if !strings.Contains(updated.ErrorMessage, "bucket unavailable") {
		t.Errorf("errorMessage = %q", updated.ErrorMessage)
	}

	if len(bus.events) != 1 {
		t.Fatalf("events = %d, want 1", len(bus.events))
	}
	if finished := bus.events[0].(events.ExportJobFinished); finished.Status != repository.JobFailed {
		t.Errorf("event status = %s", finished.Status)
	}
}

func TestRunExportJobSkipsTerminal(t *testing.T) {
	svc, _, jobs, store, _, _ := newTestService(0)

	job, _ := jobs.CreateJob(context.Background(), uuid.New(), repository.FormatCSV, repository.SearchFilters{}, 1)
	jobs.CompleteJob(context.Background(), job.ID, "exports/existing.csv", 1)

	if err := svc.RunExportJob(context.Background(), job.ID); err != nil {
		t.Fatalf("RunExportJob: %v", err)
	}
	if len(store.objects) != 0 {
		t.Error("terminal job must not be re-run")
	}
}

func TestStatusAndOwnership(t *testing.T) {
	svc, logs, jobs, _, _, _ := newTestService(0)
	seedLogs(logs, 1)
	owner := uuid.New()

	job, _ := jobs.CreateJob(context.Background(), owner, repository.FormatCSV, repository.SearchFilters{}, 1)
	svc.RunExportJob(context.Background(), job.ID)

	status, err := svc.Status(context.Background(), job.ID, owner)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Status != repository.JobCompleted {
		t.Errorf("status = %s", status.Status)
	}
	if !strings.HasPrefix(status.DownloadURL, "https://storage.example/") {
		t.Errorf("downloadUrl = %q", status.DownloadURL)
	}

	// Another user cannot see the job.
	if _, err := svc.Status(context.Background(), job.ID, uuid.New()); apperr.GetKind(err) != apperr.KindNotFound {
		t.Errorf("cross-user err = %v, want not found", err)
	}
}

func TestDismissRemovesJobAndArtifact(t *testing.T) {
	svc, logs, jobs, store, _, _ := newTestService(0)
	seedLogs(logs, 1)
	owner := uuid.New()

	job, _ := jobs.CreateJob(context.Background(), owner, repository.FormatCSV, repository.SearchFilters{}, 1)
	svc.RunExportJob(context.Background(), job.ID)

	if err := svc.Dismiss(context.Background(), job.ID, owner); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if _, err := jobs.GetJob(context.Background(), job.ID); apperr.GetKind(err) != apperr.KindNotFound {
		t.Errorf("job still present: %v", err)
	}
	if len(store.objects) != 0 {
		t.Error("artifact not cleaned up")
	}
}

func TestDismissProcessingJob(t *testing.T) {
	svc, _, jobs, _, _, _ := newTestService(0)
	owner := uuid.New()

	job, _ := jobs.CreateJob(context.Background(), owner, repository.FormatCSV, repository.SearchFilters{}, 100)
	if err := svc.Dismiss(context.Background(), job.ID, owner); err != nil {
		t.Fatalf("Dismiss of processing job: %v", err)
	}
}
