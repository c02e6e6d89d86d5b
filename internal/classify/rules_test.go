package classify

import (
	"testing"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

func TestKeywordRuleEngine_Match(t *testing.T) {
	e := NewKeywordRuleEngine(DefaultRules())

	tests := []struct {
		name          string
		tx            *domain.NormalizedTransaction
		wantCategory  string
		wantFinancial domain.FinancialCategory
		wantMatch     bool
	}{
		{
			name:          "salary credit",
			tx:            &domain.NormalizedTransaction{Title: "ACME CORP SALARY JUL", Direction: domain.DirectionCredit},
			wantCategory:  "salary",
			wantFinancial: domain.FinancialIncome,
			wantMatch:     true,
		},
		{
			name:      "salary keyword on a debit does not fire",
			tx:        &domain.NormalizedTransaction{Title: "SALARY ADVANCE REPAYMENT", Direction: domain.DirectionDebit},
			wantMatch: false,
		},
		{
			name:          "case-insensitive keyword",
			tx:            &domain.NormalizedTransaction{Title: "atm wdl mg road", Direction: domain.DirectionDebit},
			wantCategory:  "cash",
			wantFinancial: domain.FinancialExpense,
			wantMatch:     true,
		},
		{
			name:          "keyword in notes",
			tx:            &domain.NormalizedTransaction{Title: "UPI/99122", Notes: "mutual fund purchase", Direction: domain.DirectionDebit},
			wantCategory:  "investments",
			wantFinancial: domain.FinancialInvestment,
			wantMatch:     true,
		},
		{
			name:          "self transfer either direction",
			tx:            &domain.NormalizedTransaction{Title: "IMPS SELF TRANSFER", Direction: domain.DirectionCredit},
			wantCategory:  "transfers",
			wantFinancial: domain.FinancialTransfer,
			wantMatch:     true,
		},
		{
			name:      "no rule applies",
			tx:        &domain.NormalizedTransaction{Title: "Corner bakery", Direction: domain.DirectionDebit},
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, financial, ok := e.Match(tt.tx)
			if ok != tt.wantMatch {
				t.Fatalf("Match() ok = %v, want %v", ok, tt.wantMatch)
			}
			if !tt.wantMatch {
				return
			}
			if category != tt.wantCategory {
				t.Errorf("category = %s, want %s", category, tt.wantCategory)
			}
			if financial != tt.wantFinancial {
				t.Errorf("financial = %s, want %s", financial, tt.wantFinancial)
			}
		})
	}
}

func TestKeywordRuleEngine_PriorityWins(t *testing.T) {
	e := NewKeywordRuleEngine([]Rule{
		{Name: "low", Keywords: []string{"SHOP"}, CategoryID: "low", Priority: 1},
		{Name: "high", Keywords: []string{"SHOP"}, CategoryID: "high", Priority: 9},
	})

	category, _, ok := e.Match(&domain.NormalizedTransaction{Title: "My Shop"})
	if !ok || category != "high" {
		t.Errorf("Match() = %q, %v; want the high-priority rule", category, ok)
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain array", `["a","b"]`, `["a","b"]`},
		{"fenced", "```json\n[\"a\"]\n```", `["a"]`},
		{"fence without language", "```\n[\"a\"]\n```", `["a"]`},
		{"surrounding prose", "Here you go:\n[\"a\", \"b\"]\nHope that helps!", `["a", "b"]`},
		{"whitespace", "\n\n  [\"a\"]  \n", `["a"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.raw); got != tt.want {
				t.Errorf("cleanModelJSON(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
