package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// BalanceValidator compares the accepted batch totals against the totals
// the statement declares about itself. A mismatch is reported, never rolled
// back; absent metadata skips validation entirely.
type BalanceValidator struct {
	// Epsilon is the discrepancy treated as an exact match.
	Epsilon decimal.Decimal
	// MinorMax is the largest discrepancy still reported as minor.
	MinorMax decimal.Decimal
}

// NewBalanceValidator creates a validator with the given thresholds.
func NewBalanceValidator(epsilon, minorMax decimal.Decimal) *BalanceValidator {
	return &BalanceValidator{Epsilon: epsilon, MinorMax: minorMax}
}

// Validate sums the accepted transactions and classifies each side's
// discrepancy against the declared totals.
func (v *BalanceValidator) Validate(accepted []*domain.NormalizedTransaction, meta *domain.StatementMetadata) *domain.BalanceValidationResult {
	actualCredits := decimal.Zero
	actualDebits := decimal.Zero
	for _, tx := range accepted {
		actualCredits = actualCredits.Add(tx.CreditAmount())
		actualDebits = actualDebits.Add(tx.DebitAmount())
	}

	result := &domain.BalanceValidationResult{}
	if meta == nil {
		result.Credits = domain.BalanceSide{Actual: actualCredits, Status: domain.BalanceNotAvailable}
		result.Debits = domain.BalanceSide{Actual: actualDebits, Status: domain.BalanceNotAvailable}
		result.Status = domain.BalanceNotAvailable
		return result
	}

	result.Credits = v.side(actualCredits, meta.DeclaredCredits)
	result.Debits = v.side(actualDebits, meta.DeclaredDebits)
	result.Status = worse(result.Credits.Status, result.Debits.Status)
	return result
}

func (v *BalanceValidator) side(actual decimal.Decimal, declared *decimal.Decimal) domain.BalanceSide {
	if declared == nil {
		return domain.BalanceSide{Actual: actual, Status: domain.BalanceNotAvailable}
	}

	diff := actual.Sub(*declared).Abs()
	status := domain.BalanceFailed
	switch {
	case diff.LessThanOrEqual(v.Epsilon):
		status = domain.BalanceMatches
	case diff.LessThanOrEqual(v.MinorMax):
		status = domain.BalanceMinorDiscrepancy
	}

	return domain.BalanceSide{
		Actual:     actual,
		Declared:   *declared,
		Difference: diff,
		Status:     status,
	}
}

// statusRank orders balance statuses from benign to severe. NotAvailable
// never dominates a real comparison.
func statusRank(s domain.BalanceStatus) int {
	switch s {
	case domain.BalanceMatches:
		return 1
	case domain.BalanceMinorDiscrepancy:
		return 2
	case domain.BalanceFailed:
		return 3
	default:
		return 0
	}
}

func worse(a, b domain.BalanceStatus) domain.BalanceStatus {
	ra, rb := statusRank(a), statusRank(b)
	if ra == 0 && rb == 0 {
		return domain.BalanceNotAvailable
	}
	if ra >= rb {
		return a
	}
	return b
}
