package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/statement-reconciler/internal/jobs"
)

func waitForStatus(t *testing.T, s *Store, jobID string, want jobs.JobStatus, timeout time.Duration) *jobs.CategorizationJob {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := s.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := s.GetJob(context.Background(), jobID)
	t.Fatalf("job %s never reached %s, last: %+v", jobID, want, job)
	return nil
}

func TestQueue_PublishFillsDefaults(t *testing.T) {
	s := NewStore()
	q := NewQueue(1, 1, s)
	defer q.Close()

	job := &jobs.CategorizationJob{Total: 3}
	if err := q.PublishCategorization(context.Background(), job); err != nil {
		t.Fatalf("PublishCategorization: %v", err)
	}
	if job.JobID == "" {
		t.Error("JobID should be filled in")
	}
	if job.Status != jobs.JobStatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if job.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3", job.MaxRetries)
	}
	if _, err := s.GetJob(context.Background(), job.JobID); err != nil {
		t.Errorf("job should be saved on publish: %v", err)
	}
}

func TestQueue_SuccessfulJob(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	q := NewQueue(10, 2, s)
	defer q.Close()

	var handled atomic.Int32
	handler := func(ctx context.Context, job *jobs.CategorizationJob) error {
		handled.Add(1)
		return nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.CategorizationJob{Total: 4}
	if err := q.PublishCategorization(ctx, job); err != nil {
		t.Fatalf("PublishCategorization: %v", err)
	}

	final := waitForStatus(t, s, job.JobID, jobs.JobStatusCompleted, 2*time.Second)
	if final.Categorized != final.Total {
		t.Errorf("completed job categorized = %d, want %d", final.Categorized, final.Total)
	}
	if got := handled.Load(); got != 1 {
		t.Errorf("handler ran %d times, want 1", got)
	}
}

func TestQueue_RetriesThenFails(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	q := NewQueue(10, 1, s)
	defer q.Close()

	var attempts atomic.Int32
	handler := func(ctx context.Context, job *jobs.CategorizationJob) error {
		attempts.Add(1)
		return errors.New("always broken")
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.CategorizationJob{Total: 1, MaxRetries: 1}
	if err := q.PublishCategorization(ctx, job); err != nil {
		t.Fatalf("PublishCategorization: %v", err)
	}

	final := waitForStatus(t, s, job.JobID, jobs.JobStatusFailed, 5*time.Second)
	if final.Error == "" {
		t.Error("failed job should carry the handler error")
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("handler ran %d times, want initial try plus one retry", got)
	}
}

func TestQueue_DoneHookRunsOnPermanentFailure(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	q := NewQueue(10, 1, s)
	defer q.Close()

	var doneDoc atomic.Value
	var doneStatus atomic.Value
	q.OnJobDone(func(ctx context.Context, job *jobs.CategorizationJob) {
		doneDoc.Store(job.DocumentID)
		doneStatus.Store(job.Status)
	})

	handler := func(ctx context.Context, job *jobs.CategorizationJob) error {
		return errors.New("store down")
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.CategorizationJob{Total: 2, MaxRetries: 1, DocumentID: "doc-9"}
	if err := q.PublishCategorization(ctx, job); err != nil {
		t.Fatalf("PublishCategorization: %v", err)
	}

	waitForStatus(t, s, job.JobID, jobs.JobStatusFailed, 5*time.Second)

	deadline := time.Now().Add(time.Second)
	for doneDoc.Load() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := doneDoc.Load(); got != "doc-9" {
		t.Fatalf("done hook document = %v, want doc-9 even when the job fails", got)
	}
	if got := doneStatus.Load(); got != jobs.JobStatusFailed {
		t.Errorf("done hook saw status %v, want failed", got)
	}
}

func TestQueue_PublishAfterCloseFails(t *testing.T) {
	q := NewQueue(1, 1, NewStore())
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := q.PublishCategorization(context.Background(), &jobs.CategorizationJob{}); err == nil {
		t.Error("publish on a closed queue should fail")
	}
}
