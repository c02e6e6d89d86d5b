package reconcile

import (
	"context"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// RuleEngine is the deterministic category matcher consulted before any
// history- or classifier-based resolution.
type RuleEngine interface {
	// Match returns the category for the transaction, or ok=false when no
	// rule applies.
	Match(tx *domain.NormalizedTransaction) (categoryID string, financial domain.FinancialCategory, ok bool)
}

// Classifier is the remote, possibly AI-backed category service. It returns
// one category ID per input transaction; "" means the classifier could not
// decide. Any error must degrade to "uncategorized", never abort a batch.
type Classifier interface {
	Classify(ctx context.Context, txs []*domain.NormalizedTransaction) ([]string, error)
}

// BackgroundCategorizer defers classifier-based categorization of a large
// batch to a detached job. Defer returns immediately with a pollable job ID;
// the job itself is never awaited by the import call.
type BackgroundCategorizer interface {
	Defer(ctx context.Context, userID, documentID string, txs []*domain.NormalizedTransaction) (jobID string, err error)
}
