package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/statement-reconciler/internal/classify"
	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/store"
)

// Store implements the persistence interfaces on top of one BigQuery dataset.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

var (
	_ store.TransactionStore  = (*Store)(nil)
	_ store.DocumentStore     = (*Store)(nil)
	_ classify.CategoryLister = (*Store)(nil)
)

// NewStore opens a BigQuery client against the given project and dataset.
func NewStore(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: bigquery client: %w", err)
	}
	return &Store{client: client, projectID: projectID, datasetID: datasetID}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) table(name string) *bigquery.Table {
	// Fully qualified table reference to avoid default-project surprises.
	return s.client.DatasetInProject(s.projectID, s.datasetID).Table(name)
}

func (s *Store) qualified(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.projectID, s.datasetID, name)
}

// Create streams one transaction row into the ledger.
func (s *Store) Create(ctx context.Context, tx *domain.NormalizedTransaction) error {
	inserter := s.table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rowFromTransaction(tx)); err != nil {
		return fmt.Errorf("Create: inserting row: %w", err)
	}
	return nil
}

// Query returns the user's transactions dated within [from, to].
func (s *Store) Query(ctx context.Context, userID string, from, to time.Time) ([]*domain.NormalizedTransaction, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT *
		FROM %s
		WHERE user_id = @user_id
		  AND transaction_date >= @from_date
		  AND transaction_date <= @to_date
		ORDER BY transaction_date, created_ts
	`, s.qualified(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "from_date", Value: from.Format(domain.DateFormat)},
		{Name: "to_date", Value: to.Format(domain.DateFormat)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("Query: query read: %w", err)
	}

	var txs []*domain.NormalizedTransaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Query: iterating rows: %w", err)
		}
		txs = append(txs, transactionFromRow(&row))
	}
	return txs, nil
}

// BatchUpdateCategory applies every category assignment in a single DML
// statement so a large background batch costs one job, not one per record.
func (s *Store) BatchUpdateCategory(ctx context.Context, userID string, updates []store.CategoryUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	var (
		catCases strings.Builder
		finCases strings.Builder
		inList   strings.Builder
		params   []bigquery.QueryParameter
	)
	for i, u := range updates {
		idName := fmt.Sprintf("id%d", i)
		catName := fmt.Sprintf("cat%d", i)
		finName := fmt.Sprintf("fin%d", i)

		fmt.Fprintf(&catCases, " WHEN @%s THEN @%s", idName, catName)
		fmt.Fprintf(&finCases, " WHEN @%s THEN @%s", idName, finName)
		if i > 0 {
			inList.WriteString(", ")
		}
		fmt.Fprintf(&inList, "@%s", idName)

		params = append(params,
			bigquery.QueryParameter{Name: idName, Value: u.TransactionID},
			bigquery.QueryParameter{Name: catName, Value: u.CategoryID},
			bigquery.QueryParameter{Name: finName, Value: string(u.FinancialCategory)},
		)
	}
	params = append(params, bigquery.QueryParameter{Name: "user_id", Value: userID})

	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET category_id = CASE transaction_id%s END,
		    financial_category = CASE transaction_id%s END,
		    updated_ts = CURRENT_TIMESTAMP()
		WHERE user_id = @user_id
		  AND transaction_id IN (%s)
	`, s.qualified(transactionsTable), catCases.String(), finCases.String(), inList.String()))
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("BatchUpdateCategory: running update: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("BatchUpdateCategory: waiting for update: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("BatchUpdateCategory: update failed: %w", err)
	}
	return nil
}

// InsertDocument records the provenance document for one statement file.
func (s *Store) InsertDocument(ctx context.Context, doc *store.Document) error {
	row := &DocumentRow{
		DocumentID:     doc.DocumentID,
		UserID:         doc.UserID,
		SourceFilename: doc.SourceFilename,
		BankCode:       doc.BankCode,
		TempFileKeys:   doc.TempFileKeys,
		StatementFrom:  nullDate(doc.StatementFrom),
		StatementTo:    nullDate(doc.StatementTo),
		Status:         string(doc.Status),
		UploadTS:       doc.UploadedAt,
	}
	inserter := s.table(documentsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertDocument: inserting row: %w", err)
	}
	return nil
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, documentID string, status store.DocumentStatus) error {
	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status
		WHERE document_id = @document_id
	`, s.qualified(documentsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(status)},
		{Name: "document_id", Value: documentID},
	}
	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("UpdateDocumentStatus: %w", err)
	}
	return nil
}

// StartImportRun opens a RUNNING run row and returns its id.
func (s *Store) StartImportRun(ctx context.Context, documentID string) (string, error) {
	runID := uuid.New().String()
	row := &ImportRunRow{
		RunID:      runID,
		DocumentID: documentID,
		StartedAt:  time.Now(),
		Status:     string(store.RunRunning),
	}
	inserter := s.table(importRunsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return "", fmt.Errorf("StartImportRun: inserting row: %w", err)
	}
	return runID, nil
}

func (s *Store) FinishImportRun(ctx context.Context, run *store.ImportRun) error {
	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET finished_ts = CURRENT_TIMESTAMP(),
		    status = @status,
		    error_message = @error_message,
		    inserted = @inserted,
		    duplicates = @duplicates,
		    rejected = @rejected
		WHERE run_id = @run_id
	`, s.qualified(importRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(run.Status)},
		{Name: "error_message", Value: run.ErrorMessage},
		{Name: "inserted", Value: int64(run.Inserted)},
		{Name: "duplicates", Value: int64(run.Duplicates)},
		{Name: "rejected", Value: int64(run.Rejected)},
		{Name: "run_id", Value: run.RunID},
	}
	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("FinishImportRun: %w", err)
	}
	return nil
}

// ListCategories returns the active taxonomy for the classifier prompt.
func (s *Store) ListCategories(ctx context.Context) ([]classify.Category, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT category_id, name, financial_category, is_active
		FROM %s
		WHERE is_active IS NOT FALSE
		ORDER BY category_id
	`, s.qualified(categoriesTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: query read: %w", err)
	}

	var cats []classify.Category
	for {
		var row CategoryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCategories: iterating rows: %w", err)
		}
		cats = append(cats, classify.Category{
			ID:        row.CategoryID,
			Name:      row.Name,
			Financial: domain.FinancialCategory(row.Financial.StringVal),
		})
	}
	return cats, nil
}

func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running statement: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for statement: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("statement failed: %w", err)
	}
	return nil
}
