package jobs

import (
	"context"
	"fmt"
	"time"
)

// Poller samples a job's status at a fixed interval for a bounded number
// of attempts. Exhausting the budget stops the waiting, never the job: the
// returned view is flagged timed-out-but-continuing and stays active.
type Poller struct {
	Store    JobStore
	Interval time.Duration
	Attempts int
}

// NewPoller creates a poller with the given client-side budget.
func NewPoller(store JobStore, interval time.Duration, attempts int) *Poller {
	return &Poller{Store: store, Interval: interval, Attempts: attempts}
}

// Wait polls until the job completes, the context is cancelled, or the
// attempt budget runs out. Cancelling or timing out does not affect the
// job's server-side continuation.
func (p *Poller) Wait(ctx context.Context, jobID string) (*StatusView, error) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	// A budget of N means exactly N status reads; the last view from the
	// loop is reused when the budget runs out.
	var view *StatusView
	for attempt := 0; attempt < p.Attempts; attempt++ {
		job, err := p.Store.GetJob(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("Wait: fetching job %s: %w", jobID, err)
		}

		view = job.View()
		if !view.IsActive || view.Progress >= 100 {
			return view, nil
		}
		if attempt == p.Attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-ticker.C:
		}
	}

	if view == nil {
		return nil, fmt.Errorf("Wait: no polling budget for job %s", jobID)
	}
	view.Status = JobStatusTimedOutButContinuing
	return view, nil
}
