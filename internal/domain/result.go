package domain

import "github.com/shopspring/decimal"

// BalanceStatus classifies the discrepancy between computed totals and the
// statement's self-declared totals.
type BalanceStatus string

const (
	// BalanceMatches means the discrepancy is within the currency epsilon.
	BalanceMatches BalanceStatus = "MATCHES"
	// BalanceMinorDiscrepancy means the discrepancy is above the epsilon but
	// below the failure threshold; reported as a warning only.
	BalanceMinorDiscrepancy BalanceStatus = "MINOR_DISCREPANCY"
	// BalanceFailed means the discrepancy exceeds the failure threshold. The
	// import is never rolled back because of it.
	BalanceFailed BalanceStatus = "FAILED"
	// BalanceNotAvailable means the statement declared no totals to compare
	// against. Informational, never a failure.
	BalanceNotAvailable BalanceStatus = "NOT_AVAILABLE"
)

// BalanceSide holds the comparison for one side (credits or debits).
type BalanceSide struct {
	Actual     decimal.Decimal `json:"actual"`
	Declared   decimal.Decimal `json:"declared"`
	Difference decimal.Decimal `json:"difference"`
	Status     BalanceStatus   `json:"status"`
}

// BalanceValidationResult is the outcome of comparing the accepted batch
// against the statement-declared totals.
type BalanceValidationResult struct {
	Credits BalanceSide   `json:"credits"`
	Debits  BalanceSide   `json:"debits"`
	Status  BalanceStatus `json:"status"`
}

// BackgroundCategorization is the handle returned when categorization of a
// large batch was deferred to a background job.
type BackgroundCategorization struct {
	Started        bool     `json:"started"`
	JobID          string   `json:"jobId"`
	Total          int      `json:"total"`
	TransactionIDs []string `json:"transactionIds"`
}

// ImportResult is the aggregate outcome of one import call. Errors and
// warnings are human-readable; per-record failures never abort the batch.
type ImportResult struct {
	Inserted        int `json:"inserted"`
	Duplicates      int `json:"duplicates"`
	IncomeInserted  int `json:"incomeInserted"`
	ExpenseInserted int `json:"expenseInserted"`
	Rejected        int `json:"rejected"`

	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`

	BalanceValidation *BalanceValidationResult `json:"balanceValidationResult,omitempty"`

	BackgroundCategorization *BackgroundCategorization `json:"backgroundCategorization,omitempty"`

	DocumentID  string `json:"documentId,omitempty"`
	ImportRunID string `json:"importRunId,omitempty"`
}

// NewImportResult creates an empty result for one import call. Errors and
// Warnings start as empty slices so a clean import serializes them as []
// rather than null.
func NewImportResult(documentID string) *ImportResult {
	return &ImportResult{
		DocumentID: documentID,
		Errors:     []string{},
		Warnings:   []string{},
	}
}

// AddError records a batch-scoped error message.
func (r *ImportResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// AddWarning records a batch-scoped warning message.
func (r *ImportResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
