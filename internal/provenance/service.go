// Package provenance owns the import-side bookkeeping around a statement
// file: the document record, the import run, and the lifecycle of the
// parser's temporary artifacts.
package provenance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/storage"
	"github.com/dvloznov/statement-reconciler/internal/store"
)

// Service creates provenance documents and reference-counts their temp
// files: the import itself holds one reference, each background job holds
// another. The files are deleted when the count reaches zero.
type Service struct {
	docs  store.DocumentStore
	files storage.FileStore
	log   zerolog.Logger

	mu   sync.Mutex
	refs map[string]*docRef
}

type docRef struct {
	count     int
	tempFiles []string
}

// NewService creates the provenance service.
func NewService(docs store.DocumentStore, files storage.FileStore, log zerolog.Logger) *Service {
	return &Service{
		docs:  docs,
		files: files,
		log:   log,
		refs:  make(map[string]*docRef),
	}
}

// Open records a new provenance document and starts an import run. The
// returned document holds one temp-file reference for the import call.
func (s *Service) Open(ctx context.Context, userID string, parse *domain.ParseResult) (*store.Document, string, error) {
	doc := &store.Document{
		DocumentID:     uuid.New().String(),
		UserID:         userID,
		SourceFilename: parse.SourceFilename,
		BankCode:       domain.InferBankCode(parse.SourceFilename),
		TempFileKeys:   parse.TempFiles,
		Status:         store.DocumentPending,
		UploadedAt:     time.Now(),
	}
	if parse.Metadata != nil {
		doc.StatementFrom = parse.Metadata.FromDate
		doc.StatementTo = parse.Metadata.ToDate
	}

	if err := s.docs.InsertDocument(ctx, doc); err != nil {
		return nil, "", err
	}

	runID, err := s.docs.StartImportRun(ctx, doc.DocumentID)
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	s.refs[doc.DocumentID] = &docRef{count: 1, tempFiles: parse.TempFiles}
	s.mu.Unlock()

	return doc, runID, nil
}

// Retain adds a temp-file reference, typically for a background
// categorization job that outlives the import call.
func (s *Service) Retain(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.refs[documentID]; ok {
		ref.count++
	}
}

// Release drops one temp-file reference. At zero the parser artifacts are
// deleted; deletion failures are warnings, never import failures.
func (s *Service) Release(ctx context.Context, documentID string) {
	s.mu.Lock()
	ref, ok := s.refs[documentID]
	if !ok {
		s.mu.Unlock()
		return
	}
	ref.count--
	if ref.count > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.refs, documentID)
	tempFiles := ref.tempFiles
	s.mu.Unlock()

	for _, key := range tempFiles {
		if err := s.files.Delete(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Str("document_id", documentID).Msg("Failed to delete temp file")
		}
	}
}

// Finish closes the import run and settles the document status from the
// import outcome.
func (s *Service) Finish(ctx context.Context, doc *store.Document, runID string, result *domain.ImportResult, importErr error) {
	now := time.Now()
	run := &store.ImportRun{
		RunID:      runID,
		DocumentID: doc.DocumentID,
		FinishedAt: &now,
		Status:     store.RunSuccess,
	}

	status := store.DocumentImported
	if importErr != nil {
		run.Status = store.RunFailed
		run.ErrorMessage = importErr.Error()
		status = store.DocumentFailed
	} else if result != nil {
		run.Inserted = result.Inserted
		run.Duplicates = result.Duplicates
		run.Rejected = result.Rejected
	}

	if err := s.docs.FinishImportRun(ctx, run); err != nil {
		s.log.Warn().Err(err).Str("run_id", runID).Msg("Failed to finish import run")
	}
	if err := s.docs.UpdateDocumentStatus(ctx, doc.DocumentID, status); err != nil {
		s.log.Warn().Err(err).Str("document_id", doc.DocumentID).Msg("Failed to update document status")
	}
}
