// Package bigquery persists the ledger in BigQuery: transactions,
// provenance documents, import runs and the category taxonomy.
package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// Table names inside the configured dataset.
const (
	transactionsTable = "transactions"
	documentsTable    = "documents"
	importRunsTable   = "import_runs"
	categoriesTable   = "categories"
)

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	UserID     string `bigquery:"user_id"`     // REQUIRED
	DocumentID string `bigquery:"document_id"` // NULLABLE

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED

	Title     string   `bigquery:"title"`     // REQUIRED
	Amount    *big.Rat `bigquery:"amount"`    // REQUIRED NUMERIC, always positive
	Direction string   `bigquery:"direction"` // REQUIRED (CREDIT | DEBIT)

	Notes bigquery.NullString `bigquery:"notes"` // NULLABLE

	PersonName    bigquery.NullString `bigquery:"person_name"`    // NULLABLE
	UPIID         bigquery.NullString `bigquery:"upi_id"`         // NULLABLE
	AccountNumber bigquery.NullString `bigquery:"account_number"` // NULLABLE
	BankCode      bigquery.NullString `bigquery:"bank_code"`      // NULLABLE
	BankReference bigquery.NullString `bigquery:"bank_reference"` // NULLABLE
	Branch        bigquery.NullString `bigquery:"branch"`         // NULLABLE

	BalanceAfter *big.Rat `bigquery:"balance_after"` // NULLABLE NUMERIC

	Raw bigquery.NullString `bigquery:"raw"` // NULLABLE

	CategoryID        bigquery.NullString `bigquery:"category_id"`        // NULLABLE
	ManualCategory    bigquery.NullBool   `bigquery:"manual_category"`    // NULLABLE
	FinancialCategory string              `bigquery:"financial_category"` // REQUIRED

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

type DocumentRow struct {
	DocumentID string `bigquery:"document_id"` // REQUIRED
	UserID     string `bigquery:"user_id"`     // REQUIRED

	SourceFilename string `bigquery:"source_filename"` // NULLABLE
	BankCode       string `bigquery:"bank_code"`       // NULLABLE

	TempFileKeys []string `bigquery:"temp_file_keys"` // REPEATED STRING

	StatementFrom bigquery.NullDate `bigquery:"statement_from"` // NULLABLE
	StatementTo   bigquery.NullDate `bigquery:"statement_to"`   // NULLABLE

	Status   string    `bigquery:"status"` // REQUIRED
	UploadTS time.Time `bigquery:"upload_ts"`
}

type ImportRunRow struct {
	RunID      string `bigquery:"run_id"`
	DocumentID string `bigquery:"document_id"`

	StartedAt  time.Time              `bigquery:"started_ts"`
	FinishedAt bigquery.NullTimestamp `bigquery:"finished_ts"`

	Status       string `bigquery:"status"`
	ErrorMessage string `bigquery:"error_message"`

	Inserted   bigquery.NullInt64 `bigquery:"inserted"`
	Duplicates bigquery.NullInt64 `bigquery:"duplicates"`
	Rejected   bigquery.NullInt64 `bigquery:"rejected"`
}

type CategoryRow struct {
	CategoryID string `bigquery:"category_id"` // REQUIRED
	Name       string `bigquery:"name"`        // REQUIRED

	Financial bigquery.NullString `bigquery:"financial_category"` // NULLABLE
	IsActive  bigquery.NullBool   `bigquery:"is_active"`          // NULLABLE
}

// rowFromTransaction maps a domain transaction onto the table schema.
func rowFromTransaction(tx *domain.NormalizedTransaction) *TransactionRow {
	row := &TransactionRow{
		TransactionID:     tx.TransactionID,
		UserID:            tx.UserID,
		DocumentID:        tx.DocumentID,
		TransactionDate:   civil.DateOf(tx.Date),
		Title:             tx.Title,
		Amount:            tx.Amount.Rat(),
		Direction:         string(tx.Direction),
		Notes:             nullString(tx.Notes),
		PersonName:        nullString(tx.PersonName),
		UPIID:             nullString(tx.UPIID),
		AccountNumber:     nullString(tx.AccountNumber),
		BankCode:          nullString(tx.BankCode),
		BankReference:     nullString(tx.BankReference),
		Branch:            nullString(tx.Branch),
		Raw:               nullString(tx.Raw),
		ManualCategory:    bigquery.NullBool{Bool: tx.ManualCategory, Valid: true},
		FinancialCategory: string(tx.FinancialCategory),
		CreatedTS:         time.Now(),
	}
	if tx.BalanceAfter != nil {
		row.BalanceAfter = tx.BalanceAfter.Rat()
	}
	if tx.CategoryID != nil {
		row.CategoryID = nullString(*tx.CategoryID)
	}
	return row
}

// transactionFromRow maps a table row back into the domain.
func transactionFromRow(row *TransactionRow) *domain.NormalizedTransaction {
	d := row.TransactionDate
	tx := &domain.NormalizedTransaction{
		TransactionID:     row.TransactionID,
		UserID:            row.UserID,
		DocumentID:        row.DocumentID,
		Title:             row.Title,
		Direction:         domain.Direction(row.Direction),
		Date:              time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC),
		Notes:             row.Notes.StringVal,
		PersonName:        row.PersonName.StringVal,
		UPIID:             row.UPIID.StringVal,
		AccountNumber:     row.AccountNumber.StringVal,
		BankCode:          row.BankCode.StringVal,
		BankReference:     row.BankReference.StringVal,
		Branch:            row.Branch.StringVal,
		Raw:               row.Raw.StringVal,
		ManualCategory:    row.ManualCategory.Bool,
		FinancialCategory: domain.FinancialCategory(row.FinancialCategory),
	}
	if row.Amount != nil {
		tx.Amount = decimalFromRat(row.Amount)
	}
	if row.BalanceAfter != nil {
		bal := decimalFromRat(row.BalanceAfter)
		tx.BalanceAfter = &bal
	}
	if row.CategoryID.Valid && row.CategoryID.StringVal != "" {
		id := row.CategoryID.StringVal
		tx.CategoryID = &id
	}
	return tx
}

// numericScale matches BigQuery NUMERIC's fractional precision.
const numericScale = 9

func decimalFromRat(r *big.Rat) decimal.Decimal {
	return decimal.NewFromBigRat(r, numericScale)
}

func nullString(s string) bigquery.NullString {
	if s == "" {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: s, Valid: true}
}

func nullDate(s string) bigquery.NullDate {
	d, err := civil.ParseDate(s)
	if err != nil {
		return bigquery.NullDate{}
	}
	return bigquery.NullDate{Date: d, Valid: true}
}
