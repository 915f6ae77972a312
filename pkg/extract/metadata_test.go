package extract

import (
	"strings"
	"testing"

	"docproc/pkg/domain"
)

func TestDeriveMetadataInvoiceFields(t *testing.T) {
	result := domain.OCRResult{
		Text:       "INVOICE\nInvoice #: INV-2024-001\nCustomer: Acme Corp\nAmount: $1,250.00\nDate: 2024-06-19",
		Confidence: 0.92,
		Language:   "en",
	}

	md := DeriveMetadata(result, "scan.pdf")

	if md.DocumentType != "invoice" {
		t.Fatalf("documentType = %q, want invoice", md.DocumentType)
	}
	if md.InvoiceNumber != "INV-2024-001" {
		t.Fatalf("invoiceNumber = %q, want INV-2024-001", md.InvoiceNumber)
	}
	if md.CustomerName != "Acme Corp" {
		t.Fatalf("customerName = %q, want Acme Corp", md.CustomerName)
	}
	if md.TotalAmount != 1250.00 {
		t.Fatalf("totalAmount = %v, want 1250.00", md.TotalAmount)
	}
	if md.IssueDate != "2024-06-19" {
		t.Fatalf("issueDate = %q, want 2024-06-19", md.IssueDate)
	}
	if md.PageCount != 1 {
		t.Fatalf("pageCount = %d, want 1", md.PageCount)
	}

	if v := Validate(md); !v.IsValid {
		t.Fatalf("expected valid invoice, got errors: %v", v.Errors)
	}
}

func TestDeriveMetadataClassification(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"RECEIPT\nStore: Tech Supplies Inc", "receipt"},
		{"BUSINESS CARD\nJohn Smith", "business_card"},
		{"CONTRACT\nService Agreement", "contract"},
		{"handwritten note with no keywords", "unknown"},
		// First keyword wins when several appear.
		{"INVOICE for a CONTRACT with receipt attached", "invoice"},
	}
	for _, tc := range cases {
		md := DeriveMetadata(domain.OCRResult{Text: tc.text, Confidence: 0.9, Language: "en"}, "doc.png")
		if md.DocumentType != tc.want {
			t.Fatalf("DeriveMetadata(%q).DocumentType = %q, want %q", tc.text, md.DocumentType, tc.want)
		}
	}
}

func TestDeriveMetadataInvoiceFieldsWithoutLabelDecorations(t *testing.T) {
	result := domain.OCRResult{
		Text:       "Invoice INV-2024-002\nCustomer Globex\nAmount: $10.00",
		Confidence: 0.9,
		Language:   "en",
	}

	md := DeriveMetadata(result, "scan.pdf")

	if md.InvoiceNumber != "INV-2024-002" {
		t.Fatalf("invoiceNumber = %q, want INV-2024-002", md.InvoiceNumber)
	}
	if md.CustomerName != "Globex" {
		t.Fatalf("customerName = %q, want Globex", md.CustomerName)
	}
}

func TestDeriveMetadataInvoiceFieldsAreOptional(t *testing.T) {
	md := DeriveMetadata(domain.OCRResult{Text: "INVOICE\nno structured fields here", Confidence: 0.9}, "doc.pdf")
	if md.DocumentType != "invoice" {
		t.Fatalf("documentType = %q, want invoice", md.DocumentType)
	}
	if md.InvoiceNumber != "" || md.CustomerName != "" || md.TotalAmount != 0 || md.IssueDate != "" {
		t.Fatalf("expected unmatched fields to stay unset, got %+v", md)
	}
}

func TestValidateRejectsEmptyText(t *testing.T) {
	v := Validate(domain.DocumentMetadata{ExtractedText: "   \n\t", Confidence: 0.95})
	if v.IsValid {
		t.Fatal("expected whitespace-only text to fail validation")
	}
	if len(v.Errors) != 1 || !strings.Contains(v.Errors[0], "No text") {
		t.Fatalf("unexpected errors: %v", v.Errors)
	}
}

func TestValidateRejectsLowConfidence(t *testing.T) {
	v := Validate(domain.DocumentMetadata{ExtractedText: "some text", Confidence: 0.69})
	if v.IsValid {
		t.Fatal("expected confidence below 0.70 to fail validation")
	}
}

func TestValidateInvoiceRequiredFields(t *testing.T) {
	md := domain.DocumentMetadata{
		ExtractedText: "INVOICE",
		Confidence:    0.9,
		DocumentType:  "invoice",
	}
	v := Validate(md)
	if v.IsValid {
		t.Fatal("expected invoice without required fields to fail")
	}
	if len(v.Errors) != 3 {
		t.Fatalf("expected 3 errors (number, customer, amount), got %v", v.Errors)
	}

	md.InvoiceNumber = "INV-1"
	md.CustomerName = "Acme"
	md.TotalAmount = -5
	v = Validate(md)
	if v.IsValid {
		t.Fatal("expected non-positive amount to fail")
	}
	if len(v.Errors) != 1 {
		t.Fatalf("expected only the amount error, got %v", v.Errors)
	}
}

func TestValidateUnknownTypeSkipsInvoiceRules(t *testing.T) {
	v := Validate(domain.DocumentMetadata{ExtractedText: "something", Confidence: 0.71, DocumentType: "unknown"})
	if !v.IsValid {
		t.Fatalf("unknown type should only need text + confidence, got %v", v.Errors)
	}
}
