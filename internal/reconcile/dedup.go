package reconcile

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// DuplicateDetector decides whether a candidate transaction already exists
// in the user's ledger. The reference set is fetched once per batch and
// indexed by calendar date; accepted candidates are added back so repeats
// within the same statement are caught too.
type DuplicateDetector struct {
	epsilon decimal.Decimal
	byDate  map[string][]*domain.NormalizedTransaction
}

// NewDuplicateDetector indexes the existing transactions by date. epsilon
// is the currency tolerance for amount equality.
func NewDuplicateDetector(epsilon decimal.Decimal, existing []*domain.NormalizedTransaction) *DuplicateDetector {
	d := &DuplicateDetector{
		epsilon: epsilon,
		byDate:  make(map[string][]*domain.NormalizedTransaction, len(existing)),
	}
	for _, tx := range existing {
		d.Add(tx)
	}
	return d
}

// IsDuplicate reports whether the candidate matches any indexed transaction
// on date, amount (within epsilon) and case-insensitive trimmed title.
// The first match wins.
func (d *DuplicateDetector) IsDuplicate(candidate *domain.NormalizedTransaction) bool {
	for _, existing := range d.byDate[candidate.DateString()] {
		if !amountsMatch(existing.Amount, candidate.Amount, d.epsilon) {
			continue
		}
		if titlesMatch(existing.Title, candidate.Title) {
			return true
		}
	}
	return false
}

// Add puts an accepted candidate into the reference set so later records in
// the same batch can be matched against it.
func (d *DuplicateDetector) Add(tx *domain.NormalizedTransaction) {
	key := tx.DateString()
	d.byDate[key] = append(d.byDate[key], tx)
}

func amountsMatch(a, b, epsilon decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(epsilon)
}

func titlesMatch(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
