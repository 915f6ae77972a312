package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"docproc/pkg/domain"
	"docproc/pkg/extract"
	"docproc/pkg/queue"
	"docproc/pkg/store"
)

type fakeExtractor struct {
	result domain.OCRResult
	err    error
}

func (f *fakeExtractor) Extract(context.Context, []byte) (domain.OCRResult, error) {
	return f.result, f.err
}

func (f *fakeExtractor) DeriveMetadata(result domain.OCRResult, sourceName string) domain.DocumentMetadata {
	return extract.DeriveMetadata(result, sourceName)
}

func (f *fakeExtractor) Validate(md domain.DocumentMetadata) extract.ValidationResult {
	return extract.Validate(md)
}

// recordingStore wraps the memory store to capture the order of status
// transitions the runner persists.
type recordingStore struct {
	store.Store
	mu       sync.Mutex
	statuses []domain.ProcessingStatus
}

func (r *recordingStore) UpdateDocument(id string, update store.DocumentUpdate) error {
	if update.Status != nil {
		r.mu.Lock()
		r.statuses = append(r.statuses, *update.Status)
		r.mu.Unlock()
	}
	return r.Store.UpdateDocument(id, update)
}

func newRunnerFixture(t *testing.T, extractor *fakeExtractor, blobs map[string][]byte) (*Runner, *recordingStore) {
	t.Helper()
	rec := &recordingStore{Store: store.NewMemoryStore()}
	if _, err := rec.CreateDocument(domain.Document{
		ID:           "doc-1",
		Filename:     "doc-1.pdf",
		OriginalName: "scan.pdf",
		MimeType:     "application/pdf",
		Size:         42,
		Status:       domain.StatusUploaded,
	}); err != nil {
		t.Fatalf("create document: %v", err)
	}
	return NewRunner(rec, &blobStore{data: blobs}, extractor), rec
}

// blobStore is the minimal storage.BlobStore used in tests.
type blobStore struct {
	data map[string][]byte
}

func (b *blobStore) Get(_ context.Context, key string) ([]byte, error) {
	d, ok := b.data[key]
	if !ok {
		return nil, errors.New("ENOENT: no such file or directory")
	}
	return d, nil
}

func (b *blobStore) Put(context.Context, string, io.Reader, int64, string) error {
	return nil
}

func (b *blobStore) Delete(context.Context, string) error { return nil }

func TestProcessCompletesValidDocument(t *testing.T) {
	extractor := &fakeExtractor{result: domain.OCRResult{
		Text:       "BUSINESS CARD\nJohn Smith\nSenior Developer",
		Confidence: 0.91,
		Language:   "en",
	}}
	runner, rec := newRunnerFixture(t, extractor, map[string][]byte{"uploads/doc-1.pdf": []byte("bytes")})

	err := runner.Process(context.Background(), queue.Job{ID: "job-1", DocumentID: "doc-1", FilePath: "uploads/doc-1.pdf", Attempt: 1})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	doc, _, _ := rec.GetDocument("doc-1")
	if doc.Status != domain.StatusCompleted {
		t.Fatalf("status = %q, want completed", doc.Status)
	}
	if doc.ProcessedAt == nil {
		t.Fatal("expected ProcessedAt on terminal state")
	}
	if doc.Metadata == nil || doc.Metadata.DocumentType != "business_card" {
		t.Fatalf("unexpected metadata: %+v", doc.Metadata)
	}
	if doc.ErrorMessage != "" {
		t.Fatalf("errorMessage should be unset, got %q", doc.ErrorMessage)
	}

	want := []domain.ProcessingStatus{domain.StatusProcessing, domain.StatusValidating, domain.StatusCompleted}
	if len(rec.statuses) != len(want) {
		t.Fatalf("status transitions = %v, want %v", rec.statuses, want)
	}
	for i := range want {
		if rec.statuses[i] != want[i] {
			t.Fatalf("transition %d = %q, want %q", i, rec.statuses[i], want[i])
		}
	}
}

func TestProcessValidationFailureIsTerminalButNotRetried(t *testing.T) {
	extractor := &fakeExtractor{result: domain.OCRResult{
		Text:       "unclassifiable scribbles",
		Confidence: 0.42,
		Language:   "en",
	}}
	runner, rec := newRunnerFixture(t, extractor, map[string][]byte{"uploads/doc-1.pdf": []byte("bytes")})

	err := runner.Process(context.Background(), queue.Job{ID: "job-1", DocumentID: "doc-1", FilePath: "uploads/doc-1.pdf", Attempt: 1})
	if err != nil {
		t.Fatalf("validation failure must not signal a retry, got %v", err)
	}

	doc, _, _ := rec.GetDocument("doc-1")
	if doc.Status != domain.StatusFailed {
		t.Fatalf("status = %q, want failed", doc.Status)
	}
	if doc.ProcessedAt == nil {
		t.Fatal("expected ProcessedAt on terminal state")
	}
	if !strings.Contains(doc.ErrorMessage, "confidence is too low") {
		t.Fatalf("errorMessage = %q", doc.ErrorMessage)
	}
}

func TestProcessValidationErrorsAreJoined(t *testing.T) {
	extractor := &fakeExtractor{result: domain.OCRResult{Text: "   ", Confidence: 0.1}}
	runner, rec := newRunnerFixture(t, extractor, map[string][]byte{"uploads/doc-1.pdf": []byte("bytes")})

	if err := runner.Process(context.Background(), queue.Job{DocumentID: "doc-1", FilePath: "uploads/doc-1.pdf"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	doc, _, _ := rec.GetDocument("doc-1")
	if !strings.Contains(doc.ErrorMessage, "; ") {
		t.Fatalf("expected errors joined by \"; \", got %q", doc.ErrorMessage)
	}
}

func TestProcessUnreadableFileFailsAndRetries(t *testing.T) {
	extractor := &fakeExtractor{result: domain.OCRResult{Text: "RECEIPT", Confidence: 0.9}}
	runner, rec := newRunnerFixture(t, extractor, map[string][]byte{})

	err := runner.Process(context.Background(), queue.Job{DocumentID: "doc-1", FilePath: "uploads/missing.pdf"})
	if err == nil {
		t.Fatal("expected I/O failure to propagate for queue retry")
	}

	doc, _, _ := rec.GetDocument("doc-1")
	if doc.Status != domain.StatusFailed {
		t.Fatalf("status = %q, want failed", doc.Status)
	}
	if doc.ProcessedAt == nil || doc.ErrorMessage == "" {
		t.Fatalf("terminal failure fields missing: %+v", doc)
	}
}

func TestProcessExtractionErrorFailsAndRetries(t *testing.T) {
	extractor := &fakeExtractor{err: errors.New("ocr backend unavailable")}
	runner, rec := newRunnerFixture(t, extractor, map[string][]byte{"uploads/doc-1.pdf": []byte("bytes")})

	err := runner.Process(context.Background(), queue.Job{DocumentID: "doc-1", FilePath: "uploads/doc-1.pdf"})
	if err == nil {
		t.Fatal("expected extraction failure to propagate for queue retry")
	}
	doc, _, _ := rec.GetDocument("doc-1")
	if !strings.Contains(doc.ErrorMessage, "ocr backend unavailable") {
		t.Fatalf("errorMessage = %q", doc.ErrorMessage)
	}
}

func TestProcessUnknownDocumentIsHarmless(t *testing.T) {
	extractor := &fakeExtractor{result: domain.OCRResult{Text: "RECEIPT", Confidence: 0.9}}
	runner, rec := newRunnerFixture(t, extractor, map[string][]byte{"uploads/ghost.pdf": []byte("bytes")})

	// The document row vanished; every store write is a silent no-op and
	// the pipeline still runs to completion.
	if err := runner.Process(context.Background(), queue.Job{DocumentID: "ghost", FilePath: "uploads/ghost.pdf"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, ok, _ := rec.GetDocument("ghost"); ok {
		t.Fatal("no row should have been created")
	}
}
