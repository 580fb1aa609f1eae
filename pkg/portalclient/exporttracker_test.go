package portalclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func trackerTestStore(t *testing.T) *FileJobStore {
	t.Helper()
	return NewFileJobStore(filepath.Join(t.TempDir(), "communication-exports.json"))
}

func TestFileJobStoreRoundTrip(t *testing.T) {
	store := trackerTestStore(t)

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty list, got %v", loaded)
	}

	jobs := []TrackedJob{{JobID: uuid.New(), Format: "csv", Status: JobProcessing, CreatedAt: time.Now().UTC()}}
	if err := store.Save(jobs); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err = store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].JobID != jobs[0].JobID {
		t.Fatalf("unexpected jobs %v", loaded)
	}
}

func TestNewExportTrackerResyncsProcessingJobs(t *testing.T) {
	jobID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wantPath := "/api/v1/communication-audit/export/" + jobID.String() + "/status"
		if r.URL.Path != wantPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ExportJob{
			JobID:       jobID,
			Status:      JobCompleted,
			DownloadURL: "https://storage.example.com/exports/" + jobID.String() + ".csv",
			RecordCount: 120,
		})
	}))
	defer srv.Close()

	store := trackerTestStore(t)
	if err := store.Save([]TrackedJob{{JobID: jobID, Format: "csv", Status: JobProcessing, CreatedAt: time.Now().UTC()}}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	tracker, err := NewExportTracker(context.Background(), New(srv.URL, "token"), store)
	if err != nil {
		t.Fatalf("NewExportTracker: %v", err)
	}

	job, ok := tracker.Job(jobID)
	if !ok {
		t.Fatal("expected job tracked")
	}
	if job.Status != JobCompleted || job.RecordCount != 120 {
		t.Fatalf("expected re-synced job, got %+v", job)
	}

	// The terminal state must also have been persisted.
	stored, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stored[0].Status != JobCompleted {
		t.Fatalf("expected stored status Completed, got %q", stored[0].Status)
	}
}

func TestTrackPollsUntilTerminal(t *testing.T) {
	jobID := uuid.New()
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := JobProcessing
		if polls.Add(1) >= 3 {
			status = JobCompleted
		}
		json.NewEncoder(w).Encode(ExportJob{JobID: jobID, Status: status, RecordCount: 42})
	}))
	defer srv.Close()

	tracker, err := NewExportTracker(context.Background(), New(srv.URL, "token"), trackerTestStore(t),
		WithPollIntervals(time.Millisecond, time.Millisecond))
	if err != nil {
		t.Fatalf("NewExportTracker: %v", err)
	}
	if err := tracker.Add(TrackedJob{JobID: jobID, Format: "excel", Status: JobProcessing}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := tracker.Track(ctx, jobID)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if job.Status != JobCompleted {
		t.Fatalf("expected Completed, got %q", job.Status)
	}
	if polls.Load() < 3 {
		t.Fatalf("expected at least 3 polls, got %d", polls.Load())
	}
}

func TestTrackStopsOnCancel(t *testing.T) {
	jobID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ExportJob{JobID: jobID, Status: JobProcessing})
	}))
	defer srv.Close()

	tracker, err := NewExportTracker(context.Background(), New(srv.URL, "token"), trackerTestStore(t),
		WithPollIntervals(time.Millisecond, time.Millisecond))
	if err != nil {
		t.Fatalf("NewExportTracker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := tracker.Track(ctx, jobID)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Track did not stop after cancel")
	}
}

func TestDismissRemovesJobInAnyState(t *testing.T) {
	jobID := uuid.New()
	var deleted atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deleted.Store(true)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		json.NewEncoder(w).Encode(ExportJob{JobID: jobID, Status: JobProcessing})
	}))
	defer srv.Close()

	store := trackerTestStore(t)
	tracker, err := NewExportTracker(context.Background(), New(srv.URL, "token"), store)
	if err != nil {
		t.Fatalf("NewExportTracker: %v", err)
	}
	if err := tracker.Add(TrackedJob{JobID: jobID, Format: "csv", Status: JobProcessing}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := tracker.Dismiss(context.Background(), jobID); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if !deleted.Load() {
		t.Fatal("expected DELETE request")
	}
	if _, ok := tracker.Job(jobID); ok {
		t.Fatal("expected job removed")
	}

	stored, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("expected store emptied, got %v", stored)
	}
}
