package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of DocumentStore, used by
// tests and as a zero-dependency development backend.
type MemoryStore struct {
	collections map[string]map[string]Fields
	mu          sync.RWMutex
}

// NewMemoryStore creates a new instance of MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Fields),
	}
}

// collection lazily creates the named collection. Write paths only:
// the caller must hold the write lock.
func (s *MemoryStore) collection(name string) map[string]Fields {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]Fields)
		s.collections[name] = c
	}
	return c
}

// resolveTimestamps replaces ServerTimestamp sentinels with the write
// time and copies the map so callers keep ownership of theirs.
func resolveTimestamps(fields Fields) Fields {
	now := time.Now()
	out := make(Fields, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestampSentinel); ok {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}

// Set upserts a document with full field replacement.
func (s *MemoryStore) Set(_ context.Context, collection, id string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collection(collection)[id] = resolveTimestamps(fields)
	return nil
}

// Add inserts a document under a generated id.
func (s *MemoryStore) Add(_ context.Context, collection string, fields Fields) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.collection(collection)[id] = resolveTimestamps(fields)
	return id, nil
}

// Get returns a copy of the document's fields, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, collection, id string) (Fields, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(Fields, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, nil
}

// UpdateFields merges the named fields into an existing document.
func (s *MemoryStore) UpdateFields(_ context.Context, collection, id string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collection(collection)[id]
	if !ok {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	for k, v := range resolveTimestamps(fields) {
		doc[k] = v
	}
	return nil
}

// Delete removes a document by its id.
func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collection(collection), id)
	return nil
}

// Query returns the documents whose field equals value. Only the "=="
// operator is supported.
func (s *MemoryStore) Query(_ context.Context, collection, field, op string, value any) (Iterator, error) {
	if op != "==" {
		return nil, fmt.Errorf("unsupported query operator %q", op)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []Document
	for id, fields := range s.collections[collection] {
		if fields[field] != value {
			continue
		}
		out := make(Fields, len(fields))
		for k, v := range fields {
			out[k] = v
		}
		docs = append(docs, Document{ID: id, Fields: out})
	}
	return &sliceIterator{docs: docs}, nil
}
