package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/reconcile"
	"github.com/dvloznov/statement-reconciler/internal/store"
)

// classifyChunkSize is how many transactions go to the classifier per call.
const classifyChunkSize = 25

// Categorizer runs deferred categorization jobs: it chunks the pending
// transactions through the classifier and applies each chunk's results with
// a single rate-limited batch update. Classifier failures degrade to
// uncategorized; they never fail the job.
type Categorizer struct {
	classifier reconcile.Classifier
	txStore    store.TransactionStore
	jobStore   JobStore
	publisher  Publisher
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// NewCategorizer wires the background categorization worker. limiter caps
// category-update calls against the downstream store; nil means unlimited.
func NewCategorizer(classifier reconcile.Classifier, txStore store.TransactionStore, jobStore JobStore, publisher Publisher, limiter *rate.Limiter, log zerolog.Logger) *Categorizer {
	return &Categorizer{
		classifier: classifier,
		txStore:    txStore,
		jobStore:   jobStore,
		publisher:  publisher,
		limiter:    limiter,
		log:        log,
	}
}

// Defer creates a categorization job for the given transactions and
// enqueues it. It returns immediately with the job ID.
func (c *Categorizer) Defer(ctx context.Context, userID, documentID string, txs []*domain.NormalizedTransaction) (string, error) {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.TransactionID
	}

	job := &CategorizationJob{
		JobID:          uuid.New().String(),
		UserID:         userID,
		DocumentID:     documentID,
		TransactionIDs: ids,
		Total:          len(txs),
		Status:         JobStatusPending,
		CreatedAt:      time.Now(),
		Pending:        txs,
	}

	if err := c.publisher.PublishCategorization(ctx, job); err != nil {
		return "", fmt.Errorf("Defer: publishing categorization job: %w", err)
	}

	c.log.Info().
		Str("job_id", job.JobID).
		Str("user_id", userID).
		Int("total", job.Total).
		Msg("Deferred categorization to background job")

	return job.JobID, nil
}

// Run processes one job. It is the JobHandler the queue invokes. Progress
// is recorded after every chunk so pollers observe monotonic growth.
func (c *Categorizer) Run(ctx context.Context, job *CategorizationJob) error {
	// Resume where a retried job left off.
	processed := job.Categorized

	for processed < len(job.Pending) {
		end := processed + classifyChunkSize
		if end > len(job.Pending) {
			end = len(job.Pending)
		}
		chunk := job.Pending[processed:end]

		updates := c.classifyChunk(ctx, job, chunk)
		if len(updates) > 0 {
			if err := c.applyUpdates(ctx, job.UserID, updates); err != nil {
				return fmt.Errorf("Run: applying category updates for job %s: %w", job.JobID, err)
			}
		}

		processed = end
		job.Categorized = processed
		if err := c.jobStore.RecordProgress(ctx, job.JobID, processed); err != nil {
			c.log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to record job progress")
		}
	}

	return nil
}

// classifyChunk returns the category updates for one chunk. A classifier
// failure leaves the whole chunk uncategorized.
func (c *Categorizer) classifyChunk(ctx context.Context, job *CategorizationJob, chunk []*domain.NormalizedTransaction) []store.CategoryUpdate {
	categoryIDs, err := c.classifier.Classify(ctx, chunk)
	if err != nil {
		c.log.Warn().
			Err(err).
			Str("job_id", job.JobID).
			Int("chunk_size", len(chunk)).
			Msg("Classifier unavailable, leaving chunk uncategorized")
		return nil
	}

	var updates []store.CategoryUpdate
	for i, tx := range chunk {
		if i >= len(categoryIDs) || categoryIDs[i] == "" {
			continue
		}
		updates = append(updates, store.CategoryUpdate{
			TransactionID:     tx.TransactionID,
			CategoryID:        categoryIDs[i],
			FinancialCategory: tx.FinancialCategory,
		})
	}
	return updates
}

func (c *Categorizer) applyUpdates(ctx context.Context, userID string, updates []store.CategoryUpdate) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return c.txStore.BatchUpdateCategory(ctx, userID, updates)
}

var _ reconcile.BackgroundCategorizer = (*Categorizer)(nil)
