package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"docproc/pkg/domain"
)

// MemoryStore keeps document records in-process. Used by tests and local
// development without a database.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]domain.Document
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]domain.Document)}
}

// CreateDocument inserts a new record with a server-assigned upload time.
func (m *MemoryStore) CreateDocument(doc domain.Document) (domain.Document, error) {
	if strings.TrimSpace(doc.ID) == "" {
		return domain.Document{}, fmt.Errorf("document id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[doc.ID]; exists {
		return domain.Document{}, fmt.Errorf("document %s already exists", doc.ID)
	}
	if doc.Status == "" {
		doc.Status = domain.StatusUploaded
	}
	doc.UploadedAt = time.Now().UTC()
	m.docs[doc.ID] = doc
	return doc, nil
}

// UpdateDocument applies only the fields present in the update. Unknown ids
// are a silent no-op per the store contract.
func (m *MemoryStore) UpdateDocument(id string, update DocumentUpdate) error {
	if update.Empty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil
	}
	if update.Status != nil {
		doc.Status = *update.Status
	}
	if update.ProcessedAt != nil {
		t := update.ProcessedAt.UTC()
		doc.ProcessedAt = &t
	}
	if update.Metadata != nil {
		md := *update.Metadata
		doc.Metadata = &md
	}
	if update.ErrorMessage != nil {
		doc.ErrorMessage = *update.ErrorMessage
	}
	m.docs[id] = doc
	return nil
}

// GetDocument retrieves a document by id.
func (m *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	return doc, ok, nil
}

// ListDocuments returns all documents, newest upload first.
func (m *MemoryStore) ListDocuments() ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]domain.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UploadedAt.After(docs[j].UploadedAt)
	})
	return docs, nil
}
