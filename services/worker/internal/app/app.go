// Package app drives documents through the processing lifecycle:
// uploaded -> processing -> validating -> completed | failed.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docproc/pkg/domain"
	"docproc/pkg/extract"
	"docproc/pkg/queue"
	"docproc/pkg/storage"
	"docproc/pkg/store"
)

// Runner consumes processing jobs and writes results back to the document
// store. It is constructed with explicit dependencies; the queue invokes
// Process for every delivery.
type Runner struct {
	store     store.Store
	blobs     storage.BlobStore
	extractor extract.Extractor
}

// NewRunner wires the runner's dependencies.
func NewRunner(documents store.Store, blobs storage.BlobStore, extractor extract.Extractor) *Runner {
	return &Runner{store: documents, blobs: blobs, extractor: extractor}
}

// Process executes one job attempt. Each status write is committed before
// the next step starts, so readers observe a monotonically advancing view.
//
// A returned error signals the queue to retry; validation failures return
// nil because re-running the same extraction is a content problem, not a
// transient fault.
func (r *Runner) Process(ctx context.Context, job queue.Job) error {
	logger := slog.With("document_id", job.DocumentID, "job_id", job.ID, "attempt", job.Attempt)
	logger.Info("processing document")

	// Mark in-flight before any work so pollers see progress promptly.
	if err := r.setStatus(job.DocumentID, domain.StatusProcessing); err != nil {
		return r.fail(logger, job.DocumentID, err)
	}

	data, err := r.blobs.Get(ctx, job.FilePath)
	if err != nil {
		return r.fail(logger, job.DocumentID, fmt.Errorf("read document file: %w", err))
	}

	ocrResult, err := r.extractor.Extract(ctx, data)
	if err != nil {
		return r.fail(logger, job.DocumentID, fmt.Errorf("extract text: %w", err))
	}
	metadata := r.extractor.DeriveMetadata(ocrResult, job.FilePath)

	if err := r.setStatus(job.DocumentID, domain.StatusValidating); err != nil {
		return r.fail(logger, job.DocumentID, err)
	}

	validation := r.extractor.Validate(metadata)
	if validation.IsValid {
		status := domain.StatusCompleted
		processedAt := time.Now().UTC()
		if err := r.store.UpdateDocument(job.DocumentID, store.DocumentUpdate{
			Status:      &status,
			ProcessedAt: &processedAt,
			Metadata:    &metadata,
		}); err != nil {
			return r.fail(logger, job.DocumentID, fmt.Errorf("persist result: %w", err))
		}
		logger.Info("document processed", "document_type", metadata.DocumentType, "confidence", metadata.Confidence)
		return nil
	}

	// The document failed its business rules. That is a terminal outcome
	// for the document but a successful execution of the job: the queue
	// must not retry it.
	r.failDocument(job.DocumentID, joinErrors(validation.Errors))
	logger.Info("document failed validation", "errors", validation.Errors)
	return nil
}

// fail records the terminal failure on the document and propagates the
// error so the queue applies its retry policy.
func (r *Runner) fail(logger *slog.Logger, documentID string, err error) error {
	msg := "Unknown error occurred"
	if err != nil {
		msg = err.Error()
	}
	r.failDocument(documentID, msg)
	logger.Error("document processing failed", "err", msg)
	return err
}

// failDocument best-effort writes the failed terminal state. Updates to
// vanished documents are silent no-ops by store contract.
func (r *Runner) failDocument(documentID, message string) {
	status := domain.StatusFailed
	processedAt := time.Now().UTC()
	_ = r.store.UpdateDocument(documentID, store.DocumentUpdate{
		Status:       &status,
		ProcessedAt:  &processedAt,
		ErrorMessage: &message,
	})
}

func (r *Runner) setStatus(documentID string, status domain.ProcessingStatus) error {
	return r.store.UpdateDocument(documentID, store.DocumentUpdate{Status: &status})
}

func joinErrors(errs []string) string {
	return strings.Join(errs, "; ")
}
