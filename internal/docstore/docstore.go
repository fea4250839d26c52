// Package docstore keeps ingested documents keyed by id. The store, not
// model.Document, decides that ids are unique.
package docstore

import (
	"context"
	"sync"

	"github.com/nylar/kensaku/internal/model"
	apperrors "github.com/nylar/kensaku/pkg/errors"
)

// Status values recorded once the indexer has processed a document.
const (
	StatusPending = "PENDING"
	StatusIndexed = "INDEXED"
	StatusFailed  = "FAILED"
)

type Store interface {
	// Put stores doc, failing with ErrDocumentExists if its id is taken.
	Put(ctx context.Context, doc model.Document) error
	// Get fails with ErrDocumentNotFound for unknown ids.
	Get(ctx context.Context, id int) (model.Document, error)
	Delete(ctx context.Context, id int) error
	Count(ctx context.Context) (int, error)
	// MarkIndexed records the indexing outcome for id.
	MarkIndexed(ctx context.Context, id int, status string) error
}

type memoryEntry struct {
	doc    model.Document
	status string
}

// MemoryStore is a Store backed by a map, used in tests and single-process
// setups.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[int]memoryEntry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[int]memoryEntry)}
}

func (s *MemoryStore) Put(_ context.Context, doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID()]; exists {
		return apperrors.Newf(apperrors.ErrDocumentExists, "id %d", doc.ID())
	}
	s.docs[doc.ID()] = memoryEntry{doc: doc, status: StatusPending}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id int) (model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[id]
	if !ok {
		return model.Document{}, apperrors.Newf(apperrors.ErrDocumentNotFound, "id %d", id)
	}
	return e.doc, nil
}

func (s *MemoryStore) Delete(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return apperrors.Newf(apperrors.ErrDocumentNotFound, "id %d", id)
	}
	delete(s.docs, id)
	return nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

func (s *MemoryStore) MarkIndexed(_ context.Context, id int, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[id]
	if !ok {
		return apperrors.Newf(apperrors.ErrDocumentNotFound, "id %d", id)
	}
	e.status = status
	s.docs[id] = e
	return nil
}

// Status returns the recorded indexing status for id.
func (s *MemoryStore) Status(id int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[id]
	return e.status, ok
}
