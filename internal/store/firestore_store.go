package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore is the managed-service implementation of DocumentStore,
// backed by Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore connects a Firestore client for the given project.
func NewFirestoreStore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

// Close releases the underlying client connection.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// translateSentinels maps our ServerTimestamp sentinel onto Firestore's,
// so timestamps are assigned by the service itself.
func translateSentinels(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestampSentinel); ok {
			out[k] = firestore.ServerTimestamp
			continue
		}
		out[k] = v
	}
	return out
}

// Set upserts a document with full field replacement.
func (s *FirestoreStore) Set(ctx context.Context, collection, id string, fields Fields) error {
	_, err := s.client.Collection(collection).Doc(id).Set(ctx, translateSentinels(fields))
	if err != nil {
		return fmt.Errorf("failed to set document %s/%s: %w", collection, id, err)
	}
	return nil
}

// Add inserts a document under a service-generated id.
func (s *FirestoreStore) Add(ctx context.Context, collection string, fields Fields) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, translateSentinels(fields))
	if err != nil {
		return "", fmt.Errorf("failed to add document to %s: %w", collection, err)
	}
	return ref.ID, nil
}

// Get returns the fields of a document, or ErrNotFound.
func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (Fields, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	return snap.Data(), nil
}

// UpdateFields merges the named fields into an existing document.
func (s *FirestoreStore) UpdateFields(ctx context.Context, collection, id string, fields Fields) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range translateSentinels(fields) {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
		}
		return fmt.Errorf("failed to update document %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes a document by its id.
func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Doc(id).Delete(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

// firestoreIterator adapts the Firestore document iterator to Iterator.
type firestoreIterator struct {
	iter *firestore.DocumentIterator
}

func (it *firestoreIterator) Next() (Document, error) {
	snap, err := it.iter.Next()
	if err == iterator.Done {
		return Document{}, ErrIteratorDone
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to read query result: %w", err)
	}
	return Document{ID: snap.Ref.ID, Fields: snap.Data()}, nil
}

// Query streams the documents whose field compares to value under op.
func (s *FirestoreStore) Query(ctx context.Context, collection, field, op string, value any) (Iterator, error) {
	iter := s.client.Collection(collection).Where(field, op, value).Documents(ctx)
	return &firestoreIterator{iter: iter}, nil
}
