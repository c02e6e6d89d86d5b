package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/store"
)

// Options carries the coordinator tunables. Zero values are replaced by
// the historical defaults.
type Options struct {
	// CurrencyEpsilon is the amount tolerance for duplicate detection and
	// exact balance matches.
	CurrencyEpsilon decimal.Decimal
	// MinorDiscrepancyMax is the largest balance discrepancy still treated
	// as a warning.
	MinorDiscrepancyMax decimal.Decimal
	// BackgroundThreshold is the number of classifier-needing records above
	// which categorization is deferred to a background job.
	BackgroundThreshold int
	// DedupWindowPad widens the statement period by this many days when
	// fetching the duplicate reference set.
	DedupWindowPad int
	// MinYear and MaxYear bound generic date parsing.
	MinYear int
	MaxYear int
	// CategoryUpdatesPerSecond caps batched category-update calls.
	CategoryUpdatesPerSecond float64
}

func (o Options) withDefaults() Options {
	if o.CurrencyEpsilon.IsZero() {
		o.CurrencyEpsilon = decimal.RequireFromString("0.01")
	}
	if o.MinorDiscrepancyMax.IsZero() {
		o.MinorDiscrepancyMax = decimal.RequireFromString("1.00")
	}
	if o.BackgroundThreshold == 0 {
		o.BackgroundThreshold = 100
	}
	if o.DedupWindowPad == 0 {
		o.DedupWindowPad = 3
	}
	if o.MinYear == 0 {
		o.MinYear = 2020
	}
	if o.MaxYear == 0 {
		o.MaxYear = 2026
	}
	if o.CategoryUpdatesPerSecond == 0 {
		o.CategoryUpdatesPerSecond = 2
	}
	return o
}

// Coordinator orchestrates one import batch through normalization,
// duplicate detection, category resolution, persistence and balance
// validation. No per-record condition aborts a batch; only an unreachable
// store fails the whole call, and that happens before any record is
// touched.
type Coordinator struct {
	txStore    store.TransactionStore
	rules      RuleEngine
	classifier Classifier
	background BackgroundCategorizer

	opts    Options
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewCoordinator wires the pipeline. rules, classifier and background may
// be nil; the corresponding resolution stages are then skipped.
func NewCoordinator(txStore store.TransactionStore, rules RuleEngine, classifier Classifier, background BackgroundCategorizer, opts Options, log zerolog.Logger) *Coordinator {
	opts = opts.withDefaults()
	return &Coordinator{
		txStore:    txStore,
		rules:      rules,
		classifier: classifier,
		background: background,
		opts:       opts,
		limiter:    rate.NewLimiter(rate.Limit(opts.CategoryUpdatesPerSecond), 1),
		log:        log,
	}
}

// Import reconciles a batch of raw records into the user's ledger.
// documentID is the provenance reference for this import; it may be empty.
func (c *Coordinator) Import(ctx context.Context, userID string, records []domain.RawRecord, meta *domain.StatementMetadata, documentID string) (*domain.ImportResult, error) {
	result := domain.NewImportResult(documentID)

	c.log.Info().
		Str("user_id", userID).
		Str("document_id", documentID).
		Int("records", len(records)).
		Msg("Import batch started")

	// Stage 1: normalize every record independently.
	normalizer := NewNormalizer(c.opts.MinYear, c.opts.MaxYear)
	var candidates []*domain.NormalizedTransaction
	for i, rec := range records {
		tx, rejection := normalizer.Normalize(rec, i)
		if rejection != nil {
			result.Rejected++
			result.AddWarning(rejection.Error())
			c.log.Debug().
				Int("record", rejection.Index).
				Str("reason", string(rejection.Reason)).
				Str("detail", rejection.Detail).
				Msg("Record rejected")
			continue
		}
		tx.UserID = userID
		tx.DocumentID = documentID
		candidates = append(candidates, tx)
	}

	if len(candidates) == 0 {
		result.BalanceValidation = NewBalanceValidator(c.opts.CurrencyEpsilon, c.opts.MinorDiscrepancyMax).Validate(nil, meta)
		c.logSummary(userID, result)
		return result, nil
	}

	// Stage 2: fetch the reference set once for the whole batch. An
	// unreachable store is the only batch-level failure, surfaced before
	// any record is persisted.
	from, to := c.referenceWindow(candidates, meta)
	existing, err := c.txStore.Query(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("Import: %w: %v", domain.ErrStoreUnavailable, err)
	}

	detector := NewDuplicateDetector(c.opts.CurrencyEpsilon, existing)
	resolver := NewCategoryResolver(c.rules, NewCounterpartyIndex(existing))

	// Stage 3: dedup, resolve, persist. Each record stands alone.
	var accepted []*domain.NormalizedTransaction
	var needClassifier []*domain.NormalizedTransaction
	for _, tx := range candidates {
		if detector.IsDuplicate(tx) {
			result.Duplicates++
			continue
		}

		deferred := resolver.Resolve(tx)

		tx.TransactionID = uuid.New().String()
		if err := c.txStore.Create(ctx, tx); err != nil {
			result.AddError(fmt.Sprintf("persist %q (%s): %v", tx.Title, tx.DateString(), err))
			continue
		}

		detector.Add(tx)
		accepted = append(accepted, tx)
		result.Inserted++
		if tx.Direction == domain.DirectionCredit {
			result.IncomeInserted++
		} else {
			result.ExpenseInserted++
		}
		if deferred {
			needClassifier = append(needClassifier, tx)
		}
	}

	// Stage 4: classifier-based categorization, synchronous for small
	// batches, deferred above the threshold.
	c.categorize(ctx, userID, documentID, needClassifier, result)

	// Stage 5: balance validation over what was actually accepted.
	validation := NewBalanceValidator(c.opts.CurrencyEpsilon, c.opts.MinorDiscrepancyMax).Validate(accepted, meta)
	result.BalanceValidation = validation
	switch validation.Status {
	case domain.BalanceFailed:
		result.AddError(fmt.Sprintf("balance validation failed: credits %s vs %s, debits %s vs %s",
			validation.Credits.Actual, validation.Credits.Declared,
			validation.Debits.Actual, validation.Debits.Declared))
	case domain.BalanceMinorDiscrepancy:
		result.AddWarning(fmt.Sprintf("minor balance discrepancy: credits off by %s, debits off by %s",
			validation.Credits.Difference, validation.Debits.Difference))
	}

	c.logSummary(userID, result)
	return result, nil
}

// categorize routes the classifier-needing records either through one
// synchronous classification pass or to a background job.
func (c *Coordinator) categorize(ctx context.Context, userID, documentID string, pending []*domain.NormalizedTransaction, result *domain.ImportResult) {
	if len(pending) == 0 || c.classifier == nil {
		return
	}

	if c.background != nil && len(pending) > c.opts.BackgroundThreshold {
		jobID, err := c.background.Defer(ctx, userID, documentID, pending)
		if err != nil {
			result.AddWarning(fmt.Sprintf("background categorization not started: %v", err))
			return
		}
		ids := make([]string, len(pending))
		for i, tx := range pending {
			ids[i] = tx.TransactionID
		}
		result.BackgroundCategorization = &domain.BackgroundCategorization{
			Started:        true,
			JobID:          jobID,
			Total:          len(pending),
			TransactionIDs: ids,
		}
		return
	}

	categoryIDs, err := c.classifier.Classify(ctx, pending)
	if err != nil {
		// Degrade to uncategorized; the records keep their conservative
		// direction-derived financial category.
		result.AddWarning(fmt.Sprintf("%v: %d records left uncategorized", domain.ErrClassifierUnavailable, len(pending)))
		return
	}

	var updates []store.CategoryUpdate
	for i, tx := range pending {
		if i >= len(categoryIDs) || categoryIDs[i] == "" {
			continue
		}
		id := categoryIDs[i]
		tx.CategoryID = &id
		updates = append(updates, store.CategoryUpdate{
			TransactionID:     tx.TransactionID,
			CategoryID:        id,
			FinancialCategory: tx.FinancialCategory,
		})
	}
	if len(updates) == 0 {
		return
	}

	// One batched update per batch, behind the rate limiter, so
	// post-import categorization cannot overwhelm the store.
	if err := c.limiter.Wait(ctx); err != nil {
		result.AddWarning(fmt.Sprintf("category update skipped: %v", err))
		return
	}
	if err := c.txStore.BatchUpdateCategory(ctx, userID, updates); err != nil {
		result.AddWarning(fmt.Sprintf("category update failed: %v", err))
	}
}

// referenceWindow resolves the date range used to fetch the duplicate
// reference set: the statement period when declared, otherwise the span of
// the normalized candidates, padded on both sides.
func (c *Coordinator) referenceWindow(candidates []*domain.NormalizedTransaction, meta *domain.StatementMetadata) (time.Time, time.Time) {
	minDate, maxDate := candidates[0].Date, candidates[0].Date
	for _, tx := range candidates[1:] {
		if tx.Date.Before(minDate) {
			minDate = tx.Date
		}
		if tx.Date.After(maxDate) {
			maxDate = tx.Date
		}
	}
	return meta.DateRange(c.opts.DedupWindowPad, minDate, maxDate)
}

func (c *Coordinator) logSummary(userID string, result *domain.ImportResult) {
	c.log.Info().
		Str("user_id", userID).
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Int("income", result.IncomeInserted).
		Int("expense", result.ExpenseInserted).
		Int("errors", len(result.Errors)).
		Int("warnings", len(result.Warnings)).
		Bool("background", result.BackgroundCategorization != nil).
		Msg("Import batch finished")
}
