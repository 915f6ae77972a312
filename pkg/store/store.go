package store

import (
	"time"

	"docproc/pkg/domain"
)

// Store defines persistence operations for document records.
//
// UpdateDocument is deliberately fire-and-forget: updating a document that
// does not exist is a silent no-op, not an error. Callers (including any
// future crash-recovery tooling) rely on updates to vanished documents being
// harmless.
type Store interface {
	// CreateDocument inserts a new record. The store assigns UploadedAt.
	// Inserting an id that already exists is a uniqueness error.
	CreateDocument(doc domain.Document) (domain.Document, error)

	// UpdateDocument applies only the fields set in the update. An empty
	// update or an unknown id succeeds without touching anything.
	UpdateDocument(id string, update DocumentUpdate) error

	// GetDocument returns the record, or ok=false when it does not exist.
	GetDocument(id string) (domain.Document, bool, error)

	// ListDocuments returns all records ordered by UploadedAt descending.
	ListDocuments() ([]domain.Document, error)
}

// DocumentUpdate carries the mutable slice of a document row. Nil fields are
// left untouched.
type DocumentUpdate struct {
	Status       *domain.ProcessingStatus
	ProcessedAt  *time.Time
	Metadata     *domain.DocumentMetadata
	ErrorMessage *string
}

// Empty reports whether the update carries no recognized field.
func (u DocumentUpdate) Empty() bool {
	return u.Status == nil && u.ProcessedAt == nil && u.Metadata == nil && u.ErrorMessage == nil
}
