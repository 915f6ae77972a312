// Package extract turns raw document bytes into text and structured
// metadata. The production implementation is a simulation; the Extractor
// interface exists so a real OCR backend can replace it without touching
// the processing pipeline.
package extract

import (
	"context"

	"docproc/pkg/domain"
)

// Extractor is the capability the job runner depends on.
type Extractor interface {
	// Extract runs OCR over the raw file bytes.
	Extract(ctx context.Context, data []byte) (domain.OCRResult, error)
	// DeriveMetadata classifies the document and pulls type-specific fields
	// out of the extracted text. sourceName is the stored artifact name,
	// available to backends that key off file extensions.
	DeriveMetadata(result domain.OCRResult, sourceName string) domain.DocumentMetadata
	// Validate checks the derived metadata against business rules. Rule
	// violations are collected, not raised.
	Validate(md domain.DocumentMetadata) ValidationResult
}

// ValidationResult aggregates rule violations for one document.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}
