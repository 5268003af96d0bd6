package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// documentRow is the relational shape of a document: one row per
// collection+id with the fields serialized into a JSON payload.
type documentRow struct {
	Collection string `gorm:"primaryKey;type:varchar(64)"`
	DocID      string `gorm:"primaryKey;type:varchar(64);column:doc_id"`
	Payload    []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (documentRow) TableName() string {
	return "documents"
}

// GormStore is a GORM-backed implementation of DocumentStore for
// self-hosted deployments (SQLite or PostgreSQL by driver).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new instance of GormStore and migrates the
// documents table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate documents table: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Timestamps are stored as a one-key wrapper object so decoding can
// tell them apart from plain strings that happen to look like dates.
const timeWrapperKey = "$time"

func encodePayload(fields Fields) ([]byte, error) {
	resolved := resolveTimestamps(fields)
	wrapped := make(map[string]any, len(resolved))
	for k, v := range resolved {
		if ts, ok := v.(time.Time); ok {
			wrapped[k] = map[string]string{timeWrapperKey: ts.Format(time.RFC3339Nano)}
			continue
		}
		wrapped[k] = v
	}
	payload, err := json.Marshal(wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document payload: %w", err)
	}
	return payload, nil
}

// decodePayload restores a fields map from its JSON payload, unwrapping
// timestamp values back to time.Time.
func decodePayload(payload []byte) (Fields, error) {
	var raw Fields
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode document payload: %w", err)
	}
	for k, v := range raw {
		wrapper, ok := v.(map[string]any)
		if !ok || len(wrapper) != 1 {
			continue
		}
		s, ok := wrapper[timeWrapperKey].(string)
		if !ok {
			continue
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			raw[k] = ts
		}
	}
	return raw, nil
}

// Set upserts a document with full field replacement.
func (s *GormStore) Set(ctx context.Context, collection, id string, fields Fields) error {
	payload, err := encodePayload(fields)
	if err != nil {
		return err
	}
	row := documentRow{Collection: collection, DocID: id, Payload: payload}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to set document %s/%s: %w", collection, id, err)
	}
	return nil
}

// Add inserts a document under a generated id.
func (s *GormStore) Add(ctx context.Context, collection string, fields Fields) (string, error) {
	payload, err := encodePayload(fields)
	if err != nil {
		return "", err
	}
	row := documentRow{Collection: collection, DocID: uuid.New().String(), Payload: payload}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to add document to %s: %w", collection, err)
	}
	return row.DocID, nil
}

// Get returns the fields of a document, or ErrNotFound.
func (s *GormStore) Get(ctx context.Context, collection, id string) (Fields, error) {
	var row documentRow
	err := s.db.WithContext(ctx).
		First(&row, "collection = ? AND doc_id = ?", collection, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	return decodePayload(row.Payload)
}

// UpdateFields merges the named fields into an existing document. The
// read-merge-write runs in a transaction so concurrent updates to the
// same document stay last-write-wins at the document level.
func (s *GormStore) UpdateFields(ctx context.Context, collection, id string, fields Fields) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row documentRow
		err := tx.First(&row, "collection = ? AND doc_id = ?", collection, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
			}
			return fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
		}
		current, err := decodePayload(row.Payload)
		if err != nil {
			return err
		}
		for k, v := range resolveTimestamps(fields) {
			current[k] = v
		}
		payload, err := encodePayload(current)
		if err != nil {
			return err
		}
		err = tx.Model(&documentRow{}).
			Where("collection = ? AND doc_id = ?", collection, id).
			Update("payload", payload).Error
		if err != nil {
			return fmt.Errorf("failed to update document %s/%s: %w", collection, id, err)
		}
		return nil
	})
}

// Delete removes a document by its id.
func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	err := s.db.WithContext(ctx).
		Delete(&documentRow{}, "collection = ? AND doc_id = ?", collection, id).Error
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

// Query returns the documents whose field equals value. The filter runs
// over the decoded payloads so it stays portable across drivers.
func (s *GormStore) Query(ctx context.Context, collection, field, op string, value any) (Iterator, error) {
	if op != "==" {
		return nil, fmt.Errorf("unsupported query operator %q", op)
	}

	var rows []documentRow
	err := s.db.WithContext(ctx).
		Find(&rows, "collection = ?", collection).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}

	var docs []Document
	for _, row := range rows {
		fields, err := decodePayload(row.Payload)
		if err != nil {
			return nil, err
		}
		if fields[field] != value {
			continue
		}
		docs = append(docs, Document{ID: row.DocID, Fields: fields})
	}
	return &sliceIterator{docs: docs}, nil
}
