package extract

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"
)

func fastExtractor() *SimulatedExtractor {
	return &SimulatedExtractor{MinLatency: time.Millisecond, MaxLatency: 2 * time.Millisecond}
}

func TestExtractSelectsTemplateByLength(t *testing.T) {
	e := fastExtractor()
	// 42 mod 4 == 2 -> business card template.
	result, err := e.Extract(context.Background(), make([]byte, 42))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.HasPrefix(result.Text, "BUSINESS CARD") {
		t.Fatalf("expected business card template, got %q", result.Text)
	}
	if result.Language != "en" {
		t.Fatalf("language = %q, want en", result.Language)
	}

	md := e.DeriveMetadata(result, "card.png")
	if md.DocumentType != "business_card" {
		t.Fatalf("documentType = %q, want business_card", md.DocumentType)
	}
	if v := e.Validate(md); !v.IsValid {
		t.Fatalf("expected valid document, got %v", v.Errors)
	}
}

func TestExtractConfidenceBounds(t *testing.T) {
	e := fastExtractor()
	for i := 0; i < 50; i++ {
		result, err := e.Extract(context.Background(), make([]byte, i))
		if err != nil {
			t.Fatalf("extract: %v", err)
		}
		if result.Confidence < 0.85 || result.Confidence > 0.98 {
			t.Fatalf("confidence %v outside [0.85, 0.98]", result.Confidence)
		}
		if rounded := math.Round(result.Confidence*100) / 100; rounded != result.Confidence {
			t.Fatalf("confidence %v not rounded to 2 decimals", result.Confidence)
		}
	}
}

func TestExtractHonorsContextCancellation(t *testing.T) {
	e := &SimulatedExtractor{MinLatency: time.Second, MaxLatency: 2 * time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Extract(ctx, []byte("x")); err == nil {
		t.Fatal("expected context error during simulated delay")
	}
}
