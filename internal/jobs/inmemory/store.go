package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/statement-reconciler/internal/jobs"
)

// Store keeps categorization jobs in a map, safe for concurrent use.
// Jobs vanish on restart; a persistent deployment would back this with a
// database table behind the same interface.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.CategorizationJob
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.CategorizationJob),
	}
}

// SaveJob implements jobs.JobStore. The categorized count never moves
// backwards, even when a stale snapshot is saved.
func (s *Store) SaveJob(ctx context.Context, job *jobs.CategorizationJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobCopy := *job
	if prev, ok := s.jobs[job.JobID]; ok && prev.Categorized > jobCopy.Categorized {
		jobCopy.Categorized = prev.Categorized
	}
	s.jobs[job.JobID] = &jobCopy

	return nil
}

// GetJob implements jobs.JobStore.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.CategorizationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("GetJob: job not found: %s", jobID)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// RecordProgress implements jobs.JobStore. A categorized value lower than
// the stored one is ignored, keeping progress monotonic.
func (s *Store) RecordProgress(ctx context.Context, jobID string, categorized int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("RecordProgress: job not found: %s", jobID)
	}

	if categorized > job.Categorized {
		job.Categorized = categorized
	}
	if job.Categorized >= job.Total {
		job.Status = jobs.JobStatusCompleted
	} else if job.Status == jobs.JobStatusPending {
		job.Status = jobs.JobStatusInProgress
	}

	return nil
}

var _ jobs.JobStore = (*Store)(nil)
