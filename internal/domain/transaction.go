// Package domain defines the core types shared by the reconciliation
// pipeline: raw parser records, normalized transactions, statement
// metadata and import outcomes.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction states whether money moved into or out of the account.
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// FinancialCategory is the coarse financial type of a transaction,
// independent of the user-visible category taxonomy.
type FinancialCategory string

const (
	FinancialIncome     FinancialCategory = "INCOME"
	FinancialExpense    FinancialCategory = "EXPENSE"
	FinancialTransfer   FinancialCategory = "TRANSFER"
	FinancialInvestment FinancialCategory = "INVESTMENT"
	FinancialOther      FinancialCategory = "OTHER"
)

// DateFormat is the canonical calendar-date layout used across the pipeline.
const DateFormat = "2006-01-02"

// RawRecord is one unvalidated transaction as returned by the upstream
// document parser. Field names and types are whatever the parser emitted;
// the normalizer is responsible for making sense of it.
type RawRecord map[string]interface{}

// NormalizedTransaction is a canonical, validated transaction ready for
// duplicate detection and persistence. Amount is always positive; the
// direction carries the sign.
type NormalizedTransaction struct {
	TransactionID string

	UserID string

	Title     string
	Amount    decimal.Decimal
	Direction Direction

	// Date is the transaction calendar date, truncated to midnight UTC.
	Date time.Time

	Notes string

	// Optional counterparty and bank metadata, passed through verbatim
	// from the raw record. Empty string means absent.
	PersonName    string
	UPIID         string
	AccountNumber string
	BankCode      string
	BankReference string
	Branch        string

	BalanceAfter *decimal.Decimal

	// Raw is the verbatim source text the parser extracted this record from.
	Raw string

	// CategoryID is nil until category resolution assigns one.
	CategoryID *string
	// ManualCategory marks a CategoryID that was set by the user and must
	// never be overwritten by rule, pattern or classifier results.
	ManualCategory bool

	FinancialCategory FinancialCategory

	// DocumentID links the transaction to its provenance document.
	DocumentID string
}

// CreditAmount returns the credited amount, zero for debits.
func (t *NormalizedTransaction) CreditAmount() decimal.Decimal {
	if t.Direction == DirectionCredit {
		return t.Amount
	}
	return decimal.Zero
}

// DebitAmount returns the debited amount, zero for credits.
func (t *NormalizedTransaction) DebitAmount() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount
	}
	return decimal.Zero
}

// DateString returns the transaction date as YYYY-MM-DD.
func (t *NormalizedTransaction) DateString() string {
	return t.Date.Format(DateFormat)
}
