package extract

import (
	"regexp"
	"strconv"
	"strings"

	"docproc/pkg/domain"
)

// MinConfidence is the floor below which extraction results are rejected.
const MinConfidence = 0.70

// The "#" and ":" label decorations are optional so looser layouts (for
// example "Invoice INV-1" or "Customer Acme") still yield the field.
var (
	invoiceNumberRe = regexp.MustCompile(`(?i)invoice #?:?\s*([^\n\r]+)`)
	customerRe      = regexp.MustCompile(`(?i)customer:?\s*([^\n\r]+)`)
	amountRe        = regexp.MustCompile(`(?i)amount\s*:\s*\$?\s*([0-9,]+\.?[0-9]*)`)
	issueDateRe     = regexp.MustCompile(`(?i)date\s*:\s*([0-9]{4}-[0-9]{2}-[0-9]{2})`)
)

// DeriveMetadata classifies the document type by substring match, first
// match wins, and extracts invoice fields when applicable. A field whose
// pattern does not match is simply left unset.
func DeriveMetadata(result domain.OCRResult, sourceName string) domain.DocumentMetadata {
	md := domain.DocumentMetadata{
		ExtractedText: result.Text,
		Confidence:    result.Confidence,
		Language:      result.Language,
		PageCount:     1,
	}

	lower := strings.ToLower(result.Text)
	switch {
	case strings.Contains(lower, "invoice"):
		md.DocumentType = "invoice"
		if m := invoiceNumberRe.FindStringSubmatch(result.Text); m != nil {
			md.InvoiceNumber = strings.TrimSpace(m[1])
		}
		if m := customerRe.FindStringSubmatch(result.Text); m != nil {
			md.CustomerName = strings.TrimSpace(m[1])
		}
		if m := amountRe.FindStringSubmatch(result.Text); m != nil {
			raw := strings.ReplaceAll(m[1], ",", "")
			if amount, err := strconv.ParseFloat(raw, 64); err == nil {
				md.TotalAmount = amount
			}
		}
		if m := issueDateRe.FindStringSubmatch(result.Text); m != nil {
			md.IssueDate = m[1]
		}
	case strings.Contains(lower, "receipt"):
		md.DocumentType = "receipt"
	case strings.Contains(lower, "business card"):
		md.DocumentType = "business_card"
	case strings.Contains(lower, "contract"):
		md.DocumentType = "contract"
	default:
		md.DocumentType = "unknown"
	}

	return md
}

// Validate applies the minimum-confidence and required-field rules. It never
// fails hard: every violation is collected into the result.
func Validate(md domain.DocumentMetadata) ValidationResult {
	var errs []string

	if strings.TrimSpace(md.ExtractedText) == "" {
		errs = append(errs, "No text could be extracted from the document")
	}
	if md.Confidence < MinConfidence {
		errs = append(errs, "OCR confidence is too low (minimum 70% required)")
	}

	if md.DocumentType == "invoice" {
		if md.InvoiceNumber == "" {
			errs = append(errs, "Invoice number is required for invoice documents")
		}
		if md.CustomerName == "" {
			errs = append(errs, "Customer name is required for invoice documents")
		}
		if md.TotalAmount <= 0 {
			errs = append(errs, "Valid total amount is required for invoice documents")
		}
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}
