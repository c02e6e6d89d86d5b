package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-reconciler/internal/jobs"
)

const defaultMaxRetries = 3

// Queue distributes categorization jobs to a pool of workers over a
// buffered channel. Single-instance only; a multi-instance deployment
// would swap this for a hosted queue behind the same interfaces.
type Queue struct {
	pending chan *jobs.CategorizationJob
	quit    chan struct{}
	store   jobs.JobStore
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	// onDone, when set, runs once per job after it settles in a terminal
	// status, successful or not. Owners of per-job resources (such as the
	// provenance temp-file reference) hook cleanup here so a permanently
	// failed job cannot leak them.
	onDone func(ctx context.Context, job *jobs.CategorizationJob)
}

// OnJobDone registers the terminal-status callback.
func (q *Queue) OnJobDone(fn func(ctx context.Context, job *jobs.CategorizationJob)) {
	q.onDone = fn
}

// NewQueue creates a queue whose Publish blocks once bufferSize jobs are
// waiting.
func NewQueue(bufferSize, workers int, store jobs.JobStore) *Queue {
	if workers <= 0 {
		workers = 2
	}
	return &Queue{
		pending: make(chan *jobs.CategorizationJob, bufferSize),
		quit:    make(chan struct{}),
		store:   store,
		workers: workers,
	}
}

// PublishCategorization implements jobs.Publisher. Zero-valued job fields
// are defaulted and the job is recorded in the store before it is queued.
func (q *Queue) PublishCategorization(ctx context.Context, job *jobs.CategorizationJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return fmt.Errorf("PublishCategorization: queue is closed")
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = defaultMaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("PublishCategorization: %w", err)
		}
	}

	select {
	case q.pending <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.quit:
		return fmt.Errorf("PublishCategorization: queue is closed")
	}
}

// Start implements jobs.Consumer, launching the worker pool. Workers run
// until the context is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return fmt.Errorf("Start: queue is closed")
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.quit:
					return
				case job := <-q.pending:
					if job == nil {
						return
					}
					q.run(ctx, job, handler)
				}
			}
		}()
	}
	return nil
}

// run executes one job, retrying with linear backoff until the handler
// succeeds or the retry budget is spent.
func (q *Queue) run(ctx context.Context, job *jobs.CategorizationJob, handler jobs.JobHandler) {
	started := time.Now()
	job.Status = jobs.JobStatusInProgress
	job.StartedAt = &started
	q.save(ctx, job)

	var err error
	for attempt := 0; ; attempt++ {
		if err = handler(ctx, job); err == nil {
			break
		}
		if attempt >= job.MaxRetries {
			break
		}
		job.RetryCount = attempt + 1
		if !q.sleep(ctx, time.Duration(attempt+1)*time.Second) {
			break
		}
	}

	finished := time.Now()
	job.CompletedAt = &finished
	if err != nil {
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Categorized = job.Total
		job.Error = ""
	}
	q.save(ctx, job)

	if q.onDone != nil {
		q.onDone(ctx, job)
	}
}

// sleep waits out a retry backoff, reporting false when the queue is
// shutting down instead.
func (q *Queue) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-q.quit:
		return false
	}
}

func (q *Queue) save(ctx context.Context, job *jobs.CategorizationJob) {
	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}
}

// Stop implements jobs.Consumer. It rejects further publishes and waits
// for in-flight jobs until the context expires.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.quit)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements jobs.Publisher.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
