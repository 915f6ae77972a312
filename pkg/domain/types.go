package domain

import "time"

// ProcessingStatus is the document lifecycle state. Transitions only move
// forward: uploaded -> processing -> validating -> completed | failed.
type ProcessingStatus string

const (
	StatusUploaded   ProcessingStatus = "uploaded"
	StatusProcessing ProcessingStatus = "processing"
	StatusValidating ProcessingStatus = "validating"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Terminal reports whether no further automatic transition occurs.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Document struct {
	ID           string            `json:"id"`
	Filename     string            `json:"filename"`
	OriginalName string            `json:"originalName"`
	MimeType     string            `json:"mimeType"`
	Size         int64             `json:"size"`
	Status       ProcessingStatus  `json:"status"`
	UploadedAt   time.Time         `json:"uploadedAt"`
	ProcessedAt  *time.Time        `json:"processedAt,omitempty"`
	Metadata     *DocumentMetadata `json:"metadata,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
}

// DocumentMetadata is the structured extraction result. Invoice-specific
// fields are set only when DocumentType is "invoice", and each one is
// optional on its own.
type DocumentMetadata struct {
	ExtractedText string  `json:"extractedText"`
	Confidence    float64 `json:"confidence"`
	Language      string  `json:"language"`
	PageCount     int     `json:"pageCount,omitempty"`
	DocumentType  string  `json:"documentType,omitempty"`

	InvoiceNumber string  `json:"invoiceNumber,omitempty"`
	CustomerName  string  `json:"customerName,omitempty"`
	TotalAmount   float64 `json:"totalAmount,omitempty"`
	IssueDate     string  `json:"issueDate,omitempty"`
}

// OCRResult is the raw output of the extraction backend.
type OCRResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

// ProcessingJob is the queue message driving one document through the
// pipeline. Attempt counting is owned by the queue, never by the producer.
type ProcessingJob struct {
	DocumentID string `json:"documentId"`
	FilePath   string `json:"filePath"`
	Attempt    int    `json:"attempt"`
}
