package reconcile

import (
	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// categoryCount tracks how often a category was seen for one counterparty,
// in first-encounter order so ties resolve deterministically.
type categoryCount struct {
	categoryID string
	count      int
}

// CounterpartyIndex aggregates the user's categorized history by UPI ID and
// account number, for the historical-pattern resolution stage.
type CounterpartyIndex struct {
	byUPI     map[string][]categoryCount
	byAccount map[string][]categoryCount
}

// NewCounterpartyIndex builds the index from the user's existing
// transactions. Uncategorized history contributes nothing.
func NewCounterpartyIndex(history []*domain.NormalizedTransaction) *CounterpartyIndex {
	idx := &CounterpartyIndex{
		byUPI:     make(map[string][]categoryCount),
		byAccount: make(map[string][]categoryCount),
	}
	for _, tx := range history {
		if tx.CategoryID == nil || *tx.CategoryID == "" {
			continue
		}
		if tx.UPIID != "" {
			idx.byUPI[tx.UPIID] = bump(idx.byUPI[tx.UPIID], *tx.CategoryID)
		}
		if tx.AccountNumber != "" {
			idx.byAccount[tx.AccountNumber] = bump(idx.byAccount[tx.AccountNumber], *tx.CategoryID)
		}
	}
	return idx
}

func bump(counts []categoryCount, categoryID string) []categoryCount {
	for i := range counts {
		if counts[i].categoryID == categoryID {
			counts[i].count++
			return counts
		}
	}
	return append(counts, categoryCount{categoryID: categoryID, count: 1})
}

// MostFrequent returns the dominant category for the transaction's
// counterparty, preferring the UPI ID over the account number. Ties break
// toward the category encountered first.
func (idx *CounterpartyIndex) MostFrequent(tx *domain.NormalizedTransaction) (string, bool) {
	if tx.UPIID != "" {
		if cat, ok := topCategory(idx.byUPI[tx.UPIID]); ok {
			return cat, true
		}
	}
	if tx.AccountNumber != "" {
		if cat, ok := topCategory(idx.byAccount[tx.AccountNumber]); ok {
			return cat, true
		}
	}
	return "", false
}

func topCategory(counts []categoryCount) (string, bool) {
	if len(counts) == 0 {
		return "", false
	}
	best := counts[0]
	for _, c := range counts[1:] {
		if c.count > best.count {
			best = c
		}
	}
	return best.categoryID, true
}

// CategoryResolver assigns categories with a fixed precedence: manual
// override, deterministic rule, historical counterparty pattern, then the
// remote classifier. Records nothing else could decide keep a nil category
// and a direction-derived financial category.
type CategoryResolver struct {
	rules   RuleEngine
	history *CounterpartyIndex
}

// NewCategoryResolver wires the rule engine and the per-batch history
// index. Either may be nil; the corresponding stage is then skipped.
func NewCategoryResolver(rules RuleEngine, history *CounterpartyIndex) *CategoryResolver {
	return &CategoryResolver{rules: rules, history: history}
}

// Resolve applies the synchronous stages to the transaction, mutating its
// CategoryID and FinancialCategory. It returns true when the transaction
// still needs the classifier.
func (r *CategoryResolver) Resolve(tx *domain.NormalizedTransaction) (needsClassifier bool) {
	if tx.ManualCategory {
		return false
	}

	if r.rules != nil {
		if categoryID, financial, ok := r.rules.Match(tx); ok {
			tx.CategoryID = &categoryID
			if financial != "" {
				tx.FinancialCategory = financial
			}
			return false
		}
	}

	if r.history != nil {
		if categoryID, ok := r.history.MostFrequent(tx); ok {
			tx.CategoryID = &categoryID
			return false
		}
	}

	return true
}
