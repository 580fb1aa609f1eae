package portalclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TrackedJob is the locally stored view of one export job.
type TrackedJob struct {
	JobID        uuid.UUID `json:"jobId"`
	Format       string    `json:"format"`
	Status       string    `json:"status"`
	DownloadURL  string    `json:"downloadUrl,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	RecordCount  int       `json:"recordCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// JobStore persists tracked export jobs between sessions.
type JobStore interface {
	Load() ([]TrackedJob, error)
	Save(jobs []TrackedJob) error
}

// FileJobStore is a JSON-file JobStore.
type FileJobStore struct {
	path string
}

// NewFileJobStore stores jobs at the given path, creating parent
// directories on first save.
func NewFileJobStore(path string) *FileJobStore {
	return &FileJobStore{path: path}
}

// Load reads the stored jobs. A missing file yields an empty list.
func (s *FileJobStore) Load() ([]TrackedJob, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job store: %w", err)
	}
	var jobs []TrackedJob
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("decode job store: %w", err)
	}
	return jobs, nil
}

// Save writes the jobs atomically via a temp file rename.
func (s *FileJobStore) Save(jobs []TrackedJob) error {
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create job store dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write job store: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// ExportTracker keeps export-job bookkeeping in sync with the server. Each
// tracked job is polled by a context-bound goroutine until it reaches a
// terminal state.
type ExportTracker struct {
	client *Client
	store  JobStore

	initialDelay time.Duration
	pollInterval time.Duration

	mu   sync.Mutex
	jobs map[uuid.UUID]TrackedJob
}

// TrackerOption configures an ExportTracker.
type TrackerOption func(*ExportTracker)

// WithPollIntervals overrides the initial delay and poll interval.
func WithPollIntervals(initial, interval time.Duration) TrackerOption {
	return func(t *ExportTracker) {
		t.initialDelay = initial
		t.pollInterval = interval
	}
}

// NewExportTracker loads the stored jobs and re-syncs every job that was
// still Processing when the previous session ended.
func NewExportTracker(ctx context.Context, client *Client, store JobStore, opts ...TrackerOption) (*ExportTracker, error) {
	t := &ExportTracker{
		client:       client,
		store:        store,
		initialDelay: 2 * time.Second,
		pollInterval: 5 * time.Second,
		jobs:         make(map[uuid.UUID]TrackedJob),
	}
	for _, opt := range opts {
		opt(t)
	}

	stored, err := store.Load()
	if err != nil {
		return nil, err
	}
	for _, job := range stored {
		t.jobs[job.JobID] = job
	}

	for _, job := range stored {
		if job.Status != JobProcessing {
			continue
		}
		status, err := client.ExportStatus(ctx, job.JobID)
		if err != nil {
			continue
		}
		t.applyStatus(job.JobID, status)
	}
	return t, t.persist()
}

// Add records a freshly queued job.
func (t *ExportTracker) Add(job TrackedJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	t.mu.Lock()
	t.jobs[job.JobID] = job
	t.mu.Unlock()
	return t.persist()
}

// Jobs returns the tracked jobs, most recent first.
func (t *ExportTracker) Jobs() []TrackedJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TrackedJob, 0, len(t.jobs))
	for _, job := range t.jobs {
		out = append(out, job)
	}
	sortJobs(out)
	return out
}

// Job returns one tracked job.
func (t *ExportTracker) Job(jobID uuid.UUID) (TrackedJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[jobID]
	return job, ok
}

// Track polls the job until it reaches a terminal state or the context is
// cancelled. It blocks; run it in a goroutine to poll in the background.
func (t *ExportTracker) Track(ctx context.Context, jobID uuid.UUID) (TrackedJob, error) {
	timer := time.NewTimer(t.initialDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return TrackedJob{}, ctx.Err()
	case <-timer.C:
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		status, err := t.client.ExportStatus(ctx, jobID)
		if err == nil {
			t.applyStatus(jobID, status)
			_ = t.persist()
			if status.Status != JobProcessing {
				job, _ := t.Job(jobID)
				return job, nil
			}
		} else if ctx.Err() != nil {
			return TrackedJob{}, ctx.Err()
		}

		select {
		case <-ctx.Done():
			return TrackedJob{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Dismiss removes the job locally and on the server, regardless of state.
func (t *ExportTracker) Dismiss(ctx context.Context, jobID uuid.UUID) error {
	if err := t.client.DismissExport(ctx, jobID); err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.jobs, jobID)
	t.mu.Unlock()
	return t.persist()
}

func (t *ExportTracker) applyStatus(jobID uuid.UUID, status ExportJob) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[jobID]
	if !ok {
		job = TrackedJob{JobID: jobID, CreatedAt: time.Now().UTC()}
	}
	job.Status = status.Status
	job.DownloadURL = status.DownloadURL
	job.ErrorMessage = status.ErrorMessage
	job.RecordCount = status.RecordCount
	t.jobs[jobID] = job
}

func (t *ExportTracker) persist() error {
	t.mu.Lock()
	jobs := make([]TrackedJob, 0, len(t.jobs))
	for _, job := range t.jobs {
		jobs = append(jobs, job)
	}
	t.mu.Unlock()
	sortJobs(jobs)
	return t.store.Save(jobs)
}

func sortJobs(jobs []TrackedJob) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}
