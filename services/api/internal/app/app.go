// Package app implements the upload side of the document pipeline: persist
// the blob, insert the record, enqueue exactly one processing job.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docproc/pkg/domain"
	"docproc/pkg/queue"
	"docproc/pkg/storage"
	"docproc/pkg/store"
)

// Config holds the app's dependencies.
type Config struct {
	Store store.Store
	Blobs storage.BlobStore
	Queue queue.JobQueue
}

// App coordinates uploads and read access to documents.
type App struct {
	store store.Store
	blobs storage.BlobStore
	queue queue.JobQueue
}

// New validates dependencies and constructs the app.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("document store required")
	}
	if cfg.Blobs == nil {
		return nil, errors.New("blob storage required")
	}
	if cfg.Queue == nil {
		return nil, errors.New("job queue required")
	}
	return &App{store: cfg.Store, blobs: cfg.Blobs, queue: cfg.Queue}, nil
}

// Upload stores the file, creates the document record and enqueues the
// processing job. The storage key doubles as the job's file path. If the
// record insert fails the blob is removed again; if enqueue fails the
// document is marked failed so it never sits in "uploaded" forever.
func (a *App) Upload(ctx context.Context, originalName, mimeType string, r io.Reader, size int64) (domain.Document, error) {
	if strings.TrimSpace(originalName) == "" {
		return domain.Document{}, errors.New("filename required")
	}
	id := uuid.NewString()
	filename := id + strings.ToLower(filepath.Ext(originalName))
	storageKey := "uploads/" + filename

	if err := a.blobs.Put(ctx, storageKey, r, size, mimeType); err != nil {
		return domain.Document{}, fmt.Errorf("save file: %w", err)
	}

	doc, err := a.store.CreateDocument(domain.Document{
		ID:           id,
		Filename:     filename,
		OriginalName: filepath.Base(originalName),
		MimeType:     mimeType,
		Size:         size,
		Status:       domain.StatusUploaded,
	})
	if err != nil {
		_ = a.blobs.Delete(ctx, storageKey)
		return domain.Document{}, fmt.Errorf("save document: %w", err)
	}

	if _, err := a.queue.Enqueue(ctx, id, storageKey); err != nil {
		a.markFailed(id, fmt.Sprintf("failed to enqueue processing job: %v", err))
		return domain.Document{}, fmt.Errorf("enqueue processing: %w", err)
	}
	return doc, nil
}

// ListDocuments returns all documents, newest upload first.
func (a *App) ListDocuments() ([]domain.Document, error) {
	return a.store.ListDocuments()
}

// GetDocument retrieves a document by ID.
func (a *App) GetDocument(id string) (domain.Document, bool, error) {
	return a.store.GetDocument(id)
}

// QueueStats returns the processing queue snapshot.
func (a *App) QueueStats(ctx context.Context) (queue.Stats, error) {
	return a.queue.Stats(ctx)
}

func (a *App) markFailed(id, message string) {
	status := domain.StatusFailed
	processedAt := time.Now().UTC()
	_ = a.store.UpdateDocument(id, store.DocumentUpdate{
		Status:       &status,
		ProcessedAt:  &processedAt,
		ErrorMessage: &message,
	})
}
