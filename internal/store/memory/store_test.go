package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/store"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(domain.DateFormat, s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func tx(t *testing.T, userID, title, date string) *domain.NormalizedTransaction {
	return &domain.NormalizedTransaction{
		UserID:    userID,
		Title:     title,
		Amount:    decimal.NewFromInt(100),
		Direction: domain.DirectionDebit,
		Date:      day(t, date),
	}
}

func TestStore_CreateAndQuery(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	for _, rec := range []*domain.NormalizedTransaction{
		tx(t, "u1", "Rent May", "2024-05-01"),
		tx(t, "u1", "Groceries", "2024-05-15"),
		tx(t, "u1", "Rent June", "2024-06-01"),
		tx(t, "u2", "Other user", "2024-05-10"),
	} {
		if err := s.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if rec.TransactionID == "" {
			t.Fatal("Create should assign an ID")
		}
	}

	got, err := s.Query(ctx, "u1", day(t, "2024-05-01"), day(t, "2024-05-31"))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Query returned %d transactions, want 2", len(got))
	}
	for _, g := range got {
		if g.Title == "Rent June" || g.UserID != "u1" {
			t.Errorf("unexpected transaction in range: %+v", g)
		}
	}

	// Returned values are copies; mutating them must not touch the store.
	got[0].Title = "mutated"
	if s.Get(got[0].TransactionID).Title == "mutated" {
		t.Error("Query should return copies")
	}
}

func TestStore_BatchUpdateCategory(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	rec := tx(t, "u1", "Dinner", "2024-05-02")
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	updates := []store.CategoryUpdate{{
		TransactionID:     rec.TransactionID,
		CategoryID:        "dining",
		FinancialCategory: domain.FinancialExpense,
	}}
	if err := s.BatchUpdateCategory(ctx, "u1", updates); err != nil {
		t.Fatalf("BatchUpdateCategory: %v", err)
	}

	stored := s.Get(rec.TransactionID)
	if stored.CategoryID == nil || *stored.CategoryID != "dining" {
		t.Errorf("category = %v, want dining", stored.CategoryID)
	}
	if stored.FinancialCategory != domain.FinancialExpense {
		t.Errorf("financial category = %s", stored.FinancialCategory)
	}

	// A different user must not be able to touch the transaction.
	err := s.BatchUpdateCategory(ctx, "u2", updates)
	if err == nil {
		t.Error("update scoped to the wrong user should fail")
	}

	if err := s.BatchUpdateCategory(ctx, "u1", []store.CategoryUpdate{{TransactionID: "missing", CategoryID: "misc"}}); err == nil {
		t.Error("update of an unknown transaction should fail")
	}
}

func TestStore_QueryErr(t *testing.T) {
	s := NewStore()
	s.QueryErr = domain.ErrStoreUnavailable

	_, err := s.Query(context.Background(), "u1", time.Time{}, time.Now())
	if err != domain.ErrStoreUnavailable {
		t.Fatalf("Query error = %v, want ErrStoreUnavailable", err)
	}
}

func TestStore_DocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if err := s.InsertDocument(ctx, &store.Document{}); err == nil {
		t.Error("InsertDocument without an ID should fail")
	}

	doc := &store.Document{
		DocumentID: "doc-1",
		UserID:     "u1",
		BankCode:   "HDFC",
		Status:     store.DocumentPending,
	}
	if err := s.InsertDocument(ctx, doc); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}

	runID, err := s.StartImportRun(ctx, "doc-1")
	if err != nil {
		t.Fatalf("StartImportRun: %v", err)
	}
	if run := s.GetRun(runID); run == nil || run.Status != store.RunRunning {
		t.Fatalf("run after start = %+v, want RUNNING", run)
	}

	now := time.Now()
	err = s.FinishImportRun(ctx, &store.ImportRun{
		RunID:      runID,
		FinishedAt: &now,
		Status:     store.RunSuccess,
		Inserted:   4,
		Duplicates: 1,
	})
	if err != nil {
		t.Fatalf("FinishImportRun: %v", err)
	}
	run := s.GetRun(runID)
	if run.Status != store.RunSuccess || run.Inserted != 4 || run.Duplicates != 1 {
		t.Errorf("finished run = %+v", run)
	}

	if err := s.UpdateDocumentStatus(ctx, "doc-1", store.DocumentImported); err != nil {
		t.Fatalf("UpdateDocumentStatus: %v", err)
	}
	if got := s.GetDocument("doc-1").Status; got != store.DocumentImported {
		t.Errorf("document status = %s, want IMPORTED", got)
	}

	if err := s.UpdateDocumentStatus(ctx, "missing", store.DocumentFailed); err == nil {
		t.Error("status update on an unknown document should fail")
	}
	if err := s.FinishImportRun(ctx, &store.ImportRun{RunID: "missing"}); err == nil {
		t.Error("finishing an unknown run should fail")
	}
}
