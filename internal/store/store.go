package store

import (
	"context"
	"errors"
)

// Collection names used by the application.
const (
	CollectionProfiles = "perfiles"
	CollectionTasks    = "tareas"
)

var (
	// ErrNotFound is returned by Get and UpdateFields when no document
	// exists under the given collection and id.
	ErrNotFound = errors.New("document not found")

	// ErrIteratorDone is returned by Iterator.Next once the query result
	// is exhausted.
	ErrIteratorDone = errors.New("no more documents")
)

// serverTimestampSentinel marks a field whose value must be assigned by
// the store at write time rather than by the caller.
type serverTimestampSentinel struct{}

// ServerTimestamp is placed in a field map to request a server-assigned
// timestamp. Each backend resolves it inside its own write path.
var ServerTimestamp = serverTimestampSentinel{}

// Fields is the schema-less payload of a document.
type Fields = map[string]any

// Document is a single query result: a document id plus its fields.
type Document struct {
	ID     string
	Fields Fields
}

// Iterator yields the documents of a query one at a time. It is finite
// and consumed once; after ErrIteratorDone it yields nothing further.
type Iterator interface {
	Next() (Document, error)
}

// DocumentStore defines the data access contract over named collections
// of schema-less documents.
type DocumentStore interface {
	// Set upserts a document, replacing all of its fields.
	Set(ctx context.Context, collection, id string, fields Fields) error
	// Add inserts a document under a store-generated id and returns it.
	Add(ctx context.Context, collection string, fields Fields) (string, error)
	// Get returns the fields of a document, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Fields, error)
	// UpdateFields merges the named fields into an existing document,
	// leaving other fields untouched. Returns ErrNotFound when the
	// document does not exist.
	UpdateFields(ctx context.Context, collection, id string, fields Fields) error
	// Delete removes a document. Deleting an absent document is not an
	// error.
	Delete(ctx context.Context, collection, id string) error
	// Query returns the documents whose field compares to value under op
	// (currently "==" on every backend).
	Query(ctx context.Context, collection, field, op string, value any) (Iterator, error)
}

// sliceIterator serves pre-materialized results for the backends that
// cannot stream.
type sliceIterator struct {
	docs []Document
	pos  int
}

func (it *sliceIterator) Next() (Document, error) {
	if it.pos >= len(it.docs) {
		return Document{}, ErrIteratorDone
	}
	doc := it.docs[it.pos]
	it.pos++
	return doc, nil
}
