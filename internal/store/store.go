// Package store defines the persistence interfaces the reconciliation
// pipeline depends on, plus the provenance document and import-run records.
// Implementations live in the bigquery and memory subpackages.
package store

import (
	"context"
	"time"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// CategoryUpdate assigns a resolved category to one persisted transaction.
type CategoryUpdate struct {
	TransactionID     string
	CategoryID        string
	FinancialCategory domain.FinancialCategory
}

// TransactionStore is the ledger the pipeline persists into. Create is
// per-record; BatchUpdateCategory applies many category assignments in one
// call so post-batch categorization does not hammer the store.
type TransactionStore interface {
	Create(ctx context.Context, tx *domain.NormalizedTransaction) error

	BatchUpdateCategory(ctx context.Context, userID string, updates []CategoryUpdate) error

	// Query returns the user's transactions dated within [from, to].
	Query(ctx context.Context, userID string, from, to time.Time) ([]*domain.NormalizedTransaction, error)
}

// DocumentStatus tracks a provenance document through an import.
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "PENDING"
	DocumentImported DocumentStatus = "IMPORTED"
	DocumentFailed   DocumentStatus = "FAILED"
)

// Document is the provenance record for one imported statement file.
type Document struct {
	DocumentID string
	UserID     string

	SourceFilename string
	BankCode       string

	// TempFileKeys are parser artifacts in object storage, deleted once the
	// import and any background categorization are finished with them.
	TempFileKeys []string

	StatementFrom string
	StatementTo   string

	Status     DocumentStatus
	UploadedAt time.Time
}

// RunStatus tracks one import run over a document.
type RunStatus string

const (
	RunRunning RunStatus = "RUNNING"
	RunSuccess RunStatus = "SUCCESS"
	RunFailed  RunStatus = "FAILED"
)

// ImportRun records one execution of the pipeline so reprocessing history
// stays queryable.
type ImportRun struct {
	RunID      string
	DocumentID string

	StartedAt  time.Time
	FinishedAt *time.Time

	Status       RunStatus
	ErrorMessage string

	Inserted   int
	Duplicates int
	Rejected   int
}

// DocumentStore persists provenance documents and import runs.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc *Document) error
	UpdateDocumentStatus(ctx context.Context, documentID string, status DocumentStatus) error

	StartImportRun(ctx context.Context, documentID string) (string, error)
	FinishImportRun(ctx context.Context, run *ImportRun) error
}
