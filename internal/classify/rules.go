// Package classify provides the two non-historical categorization
// strategies: a deterministic keyword rule engine and a Gemini-backed
// remote classifier.
package classify

import (
	"strings"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// Rule matches a transaction by keyword and suggests a category. Higher
// priority wins when several rules match.
type Rule struct {
	Name string

	// Keywords are matched case-insensitively against title and notes.
	// Any hit fires the rule.
	Keywords []string

	// Direction restricts the rule to one side; empty matches both.
	Direction domain.Direction

	CategoryID string
	Financial  domain.FinancialCategory

	Priority int
}

// matches reports whether the rule applies to the transaction.
func (r *Rule) matches(tx *domain.NormalizedTransaction) bool {
	if r.Direction != "" && tx.Direction != r.Direction {
		return false
	}
	haystack := strings.ToUpper(tx.Title + " " + tx.Notes)
	for _, kw := range r.Keywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// KeywordRuleEngine is the deterministic stage of category resolution:
// bank-statement-type heuristics plus merchant keyword rules.
type KeywordRuleEngine struct {
	rules []Rule
}

// NewKeywordRuleEngine creates an engine over the given rules.
func NewKeywordRuleEngine(rules []Rule) *KeywordRuleEngine {
	return &KeywordRuleEngine{rules: rules}
}

// Match returns the highest-priority matching rule's category, or ok=false.
func (e *KeywordRuleEngine) Match(tx *domain.NormalizedTransaction) (string, domain.FinancialCategory, bool) {
	var best *Rule
	for i := range e.rules {
		r := &e.rules[i]
		if !r.matches(tx) {
			continue
		}
		if best == nil || r.Priority > best.Priority {
			best = r
		}
	}
	if best == nil {
		return "", "", false
	}
	return best.CategoryID, best.Financial, true
}

// DefaultRules returns the built-in statement heuristics. Keywords are
// uppercase; matching is case-insensitive.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "salary",
			Keywords:   []string{"SALARY", "PAYROLL", "WAGES"},
			Direction:  domain.DirectionCredit,
			CategoryID: "salary",
			Financial:  domain.FinancialIncome,
			Priority:   50,
		},
		{
			Name:       "interest",
			Keywords:   []string{"INTEREST", "INT.PD", "INT PAID"},
			Direction:  domain.DirectionCredit,
			CategoryID: "interest",
			Financial:  domain.FinancialIncome,
			Priority:   40,
		},
		{
			Name:       "dividend",
			Keywords:   []string{"DIVIDEND", "DIV."},
			Direction:  domain.DirectionCredit,
			CategoryID: "dividends",
			Financial:  domain.FinancialIncome,
			Priority:   40,
		},
		{
			Name:       "investment",
			Keywords:   []string{"MUTUAL FUND", "SIP", "ZERODHA", "GROWW", "BROKING"},
			CategoryID: "investments",
			Financial:  domain.FinancialInvestment,
			Priority:   30,
		},
		{
			Name:       "self-transfer",
			Keywords:   []string{"SELF TRANSFER", "OWN ACCOUNT", "SELF-TRANSFER"},
			CategoryID: "transfers",
			Financial:  domain.FinancialTransfer,
			Priority:   30,
		},
		{
			Name:       "atm",
			Keywords:   []string{"ATM WDL", "ATM CASH", "CASH WITHDRAWAL", "ATM-CASH"},
			Direction:  domain.DirectionDebit,
			CategoryID: "cash",
			Financial:  domain.FinancialExpense,
			Priority:   20,
		},
		{
			Name:       "bank-charges",
			Keywords:   []string{"BANK CHARGES", "SMS CHARGE", "AMC CHARGE", "GST", "SERVICE CHARGE"},
			Direction:  domain.DirectionDebit,
			CategoryID: "fees",
			Financial:  domain.FinancialExpense,
			Priority:   20,
		},
		{
			Name:       "emi",
			Keywords:   []string{"EMI", "LOAN INSTAL"},
			Direction:  domain.DirectionDebit,
			CategoryID: "loan-repayment",
			Financial:  domain.FinancialExpense,
			Priority:   20,
		},
	}
}
