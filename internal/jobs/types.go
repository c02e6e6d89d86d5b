// Package jobs carries the background categorization job model: the state
// machine, the queue/store abstractions and the progress poller.
package jobs

import (
	"context"
	"time"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// JobStatus represents the current status of a categorization job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusInProgress indicates the classifier is working through the batch.
	JobStatusInProgress JobStatus = "in_progress"
	// JobStatusCompleted indicates every transaction has been processed.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job gave up after exhausting retries.
	JobStatusFailed JobStatus = "failed"

	// JobStatusTimedOutButContinuing is a poller-side status only: the
	// polling budget ran out while the job keeps running server-side.
	JobStatusTimedOutButContinuing JobStatus = "timed_out_but_continuing"
)

// CategorizationJob finishes categorizing a large import batch after the
// synchronous import response has been returned. Progress only ever grows;
// a caller that stops polling does not cancel the job.
type CategorizationJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// UserID scopes the job to one user's ledger.
	UserID string `json:"user_id"`

	// DocumentID is the provenance document of the originating import.
	DocumentID string `json:"document_id,omitempty"`

	// TransactionIDs lists the persisted transactions awaiting categories.
	TransactionIDs []string `json:"transaction_ids"`

	// Total is the number of transactions the job was created with.
	Total int `json:"total"`

	// Categorized is the number of transactions processed so far.
	Categorized int `json:"categorized"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the classifier began processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job finished.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed outright.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been re-enqueued.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`

	// Pending holds the in-memory transactions still to classify. It is not
	// serialized; a multi-instance deployment would reload them by ID.
	Pending []*domain.NormalizedTransaction `json:"-"`
}

// Progress returns the completion percentage, 0-100.
func (j *CategorizationJob) Progress() int {
	if j.Total <= 0 {
		return 100
	}
	p := j.Categorized * 100 / j.Total
	if p > 100 {
		p = 100
	}
	return p
}

// Remaining returns the number of transactions not yet processed.
func (j *CategorizationJob) Remaining() int {
	r := j.Total - j.Categorized
	if r < 0 {
		return 0
	}
	return r
}

// IsActive reports whether the job is still running server-side.
func (j *CategorizationJob) IsActive() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusInProgress
}

// StatusView is the externally observable progress snapshot returned to
// pollers.
type StatusView struct {
	JobID       string    `json:"jobId"`
	Total       int       `json:"total"`
	Categorized int       `json:"categorized"`
	Progress    int       `json:"progress"`
	Remaining   int       `json:"remaining"`
	IsActive    bool      `json:"isActive"`
	Status      JobStatus `json:"status"`
}

// View builds the poller-facing snapshot of the job.
func (j *CategorizationJob) View() *StatusView {
	return &StatusView{
		JobID:       j.JobID,
		Total:       j.Total,
		Categorized: j.Categorized,
		Progress:    j.Progress(),
		Remaining:   j.Remaining(),
		IsActive:    j.IsActive(),
		Status:      j.Status,
	}
}

// Publisher defines the interface for publishing jobs to a queue.
// This abstraction allows for different queue implementations.
type Publisher interface {
	// PublishCategorization publishes a background categorization job.
	PublishCategorization(ctx context.Context, job *CategorizationJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job *CategorizationJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *CategorizationJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*CategorizationJob, error)

	// RecordProgress advances a job's categorized count. Progress is
	// monotonic: a value below the stored one is ignored.
	RecordProgress(ctx context.Context, jobID string, categorized int) error
}
