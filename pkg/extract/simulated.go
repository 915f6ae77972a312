package extract

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"docproc/pkg/domain"
)

// Canned OCR outputs; the template is selected by len(data) mod 4 so
// different uploads exercise different document types.
var sampleTexts = []string{
	"INVOICE\nInvoice #: INV-2024-001\nCustomer: Acme Corp\nAmount: $1,250.00\nDate: 2024-06-19",
	"RECEIPT\nStore: Tech Supplies Inc\nItem: Laptop Computer\nPrice: $899.99\nDate: 2024-06-19",
	"BUSINESS CARD\nJohn Smith\nSenior Developer\ntech@company.com\n+1-555-0123",
	"CONTRACT\nService Agreement\nParty A: Digital Solutions LLC\nParty B: Client Services Corp\nEffective Date: 2024-06-19",
}

const (
	defaultMinLatency = 500 * time.Millisecond
	defaultMaxLatency = 1500 * time.Millisecond
)

// SimulatedExtractor emulates an OCR backend: canned text keyed by input
// length, a pseudo-random confidence in [0.85, 0.98], and a uniform
// processing delay. Because confidence is randomized, a document that fails
// the confidence rule on one run may pass on the next; callers must not
// treat validation outcomes of this backend as deterministic.
type SimulatedExtractor struct {
	MinLatency time.Duration
	MaxLatency time.Duration
}

// NewSimulatedExtractor returns the extractor with production latency
// bounds (500ms-1.5s).
func NewSimulatedExtractor() *SimulatedExtractor {
	return &SimulatedExtractor{
		MinLatency: defaultMinLatency,
		MaxLatency: defaultMaxLatency,
	}
}

// Extract returns one of the canned texts after the simulated delay. The
// only error condition is context cancellation during the delay.
func (e *SimulatedExtractor) Extract(ctx context.Context, data []byte) (domain.OCRResult, error) {
	if err := e.sleep(ctx); err != nil {
		return domain.OCRResult{}, err
	}

	text := sampleTexts[len(data)%len(sampleTexts)]
	confidence := 0.85 + rand.Float64()*0.13
	confidence = math.Round(confidence*100) / 100

	return domain.OCRResult{
		Text:       text,
		Confidence: confidence,
		Language:   "en",
	}, nil
}

// DeriveMetadata delegates to the shared derivation rules.
func (e *SimulatedExtractor) DeriveMetadata(result domain.OCRResult, sourceName string) domain.DocumentMetadata {
	return DeriveMetadata(result, sourceName)
}

// Validate delegates to the shared validation rules.
func (e *SimulatedExtractor) Validate(md domain.DocumentMetadata) ValidationResult {
	return Validate(md)
}

func (e *SimulatedExtractor) sleep(ctx context.Context) error {
	minLatency := e.MinLatency
	maxLatency := e.MaxLatency
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	delay := minLatency
	if span := maxLatency - minLatency; span > 0 {
		delay += rand.N(span)
	}
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
