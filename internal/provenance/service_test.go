package provenance

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/storage"
	"github.com/dvloznov/statement-reconciler/internal/store"
	memstore "github.com/dvloznov/statement-reconciler/internal/store/memory"
)

func parseResult() *domain.ParseResult {
	return &domain.ParseResult{
		SourceFilename: "hdfc_statement_may.pdf",
		TempFiles:      []string{"tmp/a.json", "tmp/b.json"},
		Metadata:       &domain.StatementMetadata{FromDate: "2024-05-01", ToDate: "2024-05-31"},
	}
}

func TestService_OpenRecordsDocumentAndRun(t *testing.T) {
	ctx := context.Background()
	mem := memstore.NewStore()
	files := storage.NewMemoryFileStore()
	s := NewService(mem, files, zerolog.Nop())

	doc, runID, err := s.Open(ctx, "u1", parseResult())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if doc.DocumentID == "" || runID == "" {
		t.Fatalf("ids missing: doc=%q run=%q", doc.DocumentID, runID)
	}
	if doc.BankCode != "HDFC" {
		t.Errorf("bank code = %q, want HDFC", doc.BankCode)
	}
	if doc.StatementFrom != "2024-05-01" || doc.StatementTo != "2024-05-31" {
		t.Errorf("statement period = %q..%q", doc.StatementFrom, doc.StatementTo)
	}

	stored := mem.GetDocument(doc.DocumentID)
	if stored == nil || stored.Status != store.DocumentPending {
		t.Fatalf("stored document = %+v, want PENDING", stored)
	}
	run := mem.GetRun(runID)
	if run == nil || run.Status != store.RunRunning {
		t.Fatalf("stored run = %+v, want RUNNING", run)
	}
}

func TestService_ReleaseDeletesAtZero(t *testing.T) {
	ctx := context.Background()
	mem := memstore.NewStore()
	files := storage.NewMemoryFileStore()
	s := NewService(mem, files, zerolog.Nop())

	doc, _, err := s.Open(ctx, "u1", parseResult())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// A background job takes a second reference.
	s.Retain(doc.DocumentID)

	s.Release(ctx, doc.DocumentID)
	if got := files.Deleted(); len(got) != 0 {
		t.Fatalf("temp files deleted while still referenced: %v", got)
	}

	s.Release(ctx, doc.DocumentID)
	if got := files.Deleted(); len(got) != 2 {
		t.Fatalf("deleted = %v, want both temp files", got)
	}

	// Releasing an unknown or already settled document is a no-op.
	s.Release(ctx, doc.DocumentID)
	s.Release(ctx, "unknown")
	if got := files.Deleted(); len(got) != 2 {
		t.Errorf("extra releases deleted more files: %v", got)
	}
}

func TestService_FinishSuccess(t *testing.T) {
	ctx := context.Background()
	mem := memstore.NewStore()
	s := NewService(mem, storage.NewMemoryFileStore(), zerolog.Nop())

	doc, runID, err := s.Open(ctx, "u1", parseResult())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	result := &domain.ImportResult{Inserted: 12, Duplicates: 3, Rejected: 1}
	s.Finish(ctx, doc, runID, result, nil)

	run := mem.GetRun(runID)
	if run.Status != store.RunSuccess {
		t.Errorf("run status = %s, want SUCCESS", run.Status)
	}
	if run.Inserted != 12 || run.Duplicates != 3 || run.Rejected != 1 {
		t.Errorf("run counters = %+v", run)
	}
	if run.FinishedAt == nil {
		t.Error("run should be finished")
	}
	if got := mem.GetDocument(doc.DocumentID).Status; got != store.DocumentImported {
		t.Errorf("document status = %s, want IMPORTED", got)
	}
}

func TestService_FinishFailure(t *testing.T) {
	ctx := context.Background()
	mem := memstore.NewStore()
	s := NewService(mem, storage.NewMemoryFileStore(), zerolog.Nop())

	doc, runID, err := s.Open(ctx, "u1", parseResult())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.Finish(ctx, doc, runID, nil, errors.New("store unreachable"))

	run := mem.GetRun(runID)
	if run.Status != store.RunFailed || run.ErrorMessage == "" {
		t.Errorf("run = %+v, want FAILED with message", run)
	}
	if got := mem.GetDocument(doc.DocumentID).Status; got != store.DocumentFailed {
		t.Errorf("document status = %s, want FAILED", got)
	}
}
