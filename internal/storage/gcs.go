// Package storage is the file-storage collaborator: it deletes the
// parser's temporary artifacts once an import no longer references them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gcs "cloud.google.com/go/storage"
)

// FileStore abstracts object deletion so tests and local runs do not need
// a real bucket.
type FileStore interface {
	// Delete removes one object by key. Deleting a missing object is not
	// an error.
	Delete(ctx context.Context, key string) error
}

// GCSFileStore deletes objects from a Google Cloud Storage bucket.
// It assumes Application Default Credentials are configured.
type GCSFileStore struct {
	bucket string
}

// NewGCSFileStore creates a file store over the given bucket.
func NewGCSFileStore(bucket string) *GCSFileStore {
	return &GCSFileStore{bucket: bucket}
}

// Delete removes the object with the given key from the bucket.
func (s *GCSFileStore) Delete(ctx context.Context, key string) error {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("Delete: create storage client: %w", err)
	}
	defer client.Close()

	if err := client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("Delete: object %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// MemoryFileStore is an in-memory FileStore for tests and local runs. It
// records the keys it was asked to delete.
type MemoryFileStore struct {
	mu      sync.Mutex
	deleted []string
}

// NewMemoryFileStore creates an empty in-memory file store.
func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{}
}

// Delete records the key.
func (s *MemoryFileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	return nil
}

// Deleted returns the keys deleted so far.
func (s *MemoryFileStore) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.deleted))
	copy(out, s.deleted)
	return out
}

var _ FileStore = (*GCSFileStore)(nil)
var _ FileStore = (*MemoryFileStore)(nil)
