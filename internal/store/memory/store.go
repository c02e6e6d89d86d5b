// Package memory is an in-memory implementation of the persistence
// interfaces, used by tests and by local CLI runs. It is safe for
// concurrent use; data is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-reconciler/internal/classify"
	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/store"
)

// Store holds transactions, provenance documents and import runs in maps.
type Store struct {
	mu sync.RWMutex

	byUser map[string][]*domain.NormalizedTransaction
	byID   map[string]*domain.NormalizedTransaction

	docs map[string]*store.Document
	runs map[string]*store.ImportRun

	categories []classify.Category

	// CreateErr, when set, is consulted before each Create so tests can
	// inject per-record persistence failures.
	CreateErr func(tx *domain.NormalizedTransaction) error
	// QueryErr, when set, makes Query fail, simulating an unreachable store.
	QueryErr error
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		byUser: make(map[string][]*domain.NormalizedTransaction),
		byID:   make(map[string]*domain.NormalizedTransaction),
		docs:   make(map[string]*store.Document),
		runs:   make(map[string]*store.ImportRun),
	}
}

// SetCategories seeds the taxonomy returned by ListCategories.
func (s *Store) SetCategories(categories []classify.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = categories
}

// Create implements store.TransactionStore.
func (s *Store) Create(ctx context.Context, tx *domain.NormalizedTransaction) error {
	if s.CreateErr != nil {
		if err := s.CreateErr(tx); err != nil {
			return err
		}
	}
	if tx.TransactionID == "" {
		tx.TransactionID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txCopy := *tx
	s.byUser[tx.UserID] = append(s.byUser[tx.UserID], &txCopy)
	s.byID[tx.TransactionID] = &txCopy
	return nil
}

// BatchUpdateCategory implements store.TransactionStore.
func (s *Store) BatchUpdateCategory(ctx context.Context, userID string, updates []store.CategoryUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		tx, ok := s.byID[u.TransactionID]
		if !ok || tx.UserID != userID {
			return fmt.Errorf("BatchUpdateCategory: transaction not found: %s", u.TransactionID)
		}
		id := u.CategoryID
		tx.CategoryID = &id
		if u.FinancialCategory != "" {
			tx.FinancialCategory = u.FinancialCategory
		}
	}
	return nil
}

// Query implements store.TransactionStore. It returns copies of the user's
// transactions dated within [from, to].
func (s *Store) Query(ctx context.Context, userID string, from, to time.Time) ([]*domain.NormalizedTransaction, error) {
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.NormalizedTransaction
	for _, tx := range s.byUser[userID] {
		if tx.Date.Before(from) || tx.Date.After(to) {
			continue
		}
		txCopy := *tx
		result = append(result, &txCopy)
	}
	return result, nil
}

// Get returns the stored transaction with the given ID, or nil.
func (s *Store) Get(transactionID string) *domain.NormalizedTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.byID[transactionID]
	if !ok {
		return nil
	}
	txCopy := *tx
	return &txCopy
}

// All returns copies of every transaction stored for the user.
func (s *Store) All(userID string) []*domain.NormalizedTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.NormalizedTransaction, 0, len(s.byUser[userID]))
	for _, tx := range s.byUser[userID] {
		txCopy := *tx
		out = append(out, &txCopy)
	}
	return out
}

// InsertDocument implements store.DocumentStore.
func (s *Store) InsertDocument(ctx context.Context, doc *store.Document) error {
	if doc.DocumentID == "" {
		return fmt.Errorf("InsertDocument: document ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docCopy := *doc
	s.docs[doc.DocumentID] = &docCopy
	return nil
}

// UpdateDocumentStatus implements store.DocumentStore.
func (s *Store) UpdateDocumentStatus(ctx context.Context, documentID string, status store.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return fmt.Errorf("UpdateDocumentStatus: document not found: %s", documentID)
	}
	doc.Status = status
	return nil
}

// StartImportRun implements store.DocumentStore.
func (s *Store) StartImportRun(ctx context.Context, documentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := &store.ImportRun{
		RunID:      uuid.New().String(),
		DocumentID: documentID,
		StartedAt:  time.Now(),
		Status:     store.RunRunning,
	}
	s.runs[run.RunID] = run
	return run.RunID, nil
}

// FinishImportRun implements store.DocumentStore.
func (s *Store) FinishImportRun(ctx context.Context, run *store.ImportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.RunID]
	if !ok {
		return fmt.Errorf("FinishImportRun: run not found: %s", run.RunID)
	}
	existing.FinishedAt = run.FinishedAt
	existing.Status = run.Status
	existing.ErrorMessage = run.ErrorMessage
	existing.Inserted = run.Inserted
	existing.Duplicates = run.Duplicates
	existing.Rejected = run.Rejected
	return nil
}

// GetRun returns the stored import run, or nil.
func (s *Store) GetRun(runID string) *store.ImportRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil
	}
	runCopy := *run
	return &runCopy
}

// GetDocument returns the stored document, or nil.
func (s *Store) GetDocument(documentID string) *store.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return nil
	}
	docCopy := *doc
	return &docCopy
}

// ListCategories implements classify.CategoryLister.
func (s *Store) ListCategories(ctx context.Context) ([]classify.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]classify.Category, len(s.categories))
	copy(out, s.categories)
	return out, nil
}

var _ store.TransactionStore = (*Store)(nil)
var _ store.DocumentStore = (*Store)(nil)
var _ classify.CategoryLister = (*Store)(nil)
