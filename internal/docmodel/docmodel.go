// Package docmodel provides shared types used across the extraction pipeline.
// This package has no dependencies on other glean packages to avoid import cycles.
package docmodel

// Tier selects the accuracy/latency trade-off for a document run.
type Tier string

const (
	// TierFast runs a single extraction pass with minimal prompt context.
	TierFast Tier = "FAST"
	// TierBalanced runs a single pass with document-type field hints. Default.
	TierBalanced Tier = "BALANCED"
	// TierHigh runs initial, refinement, and self-consistency passes.
	TierHigh Tier = "HIGH"
)

// ParseTier converts a string to a Tier.
// Returns TierBalanced if the string is not recognized.
func ParseTier(s string) Tier {
	switch s {
	case "FAST", "fast":
		return TierFast
	case "BALANCED", "balanced":
		return TierBalanced
	case "HIGH", "high":
		return TierHigh
	default:
		return TierBalanced
	}
}

// DocumentType classifies the document for prompt hints and validation rules.
type DocumentType string

const (
	DocTypeInvoice      DocumentType = "invoice"
	DocTypeReceipt      DocumentType = "receipt"
	DocTypeBusinessCard DocumentType = "business_card"
	DocTypeForm         DocumentType = "form"
	DocTypeContract     DocumentType = "contract"
	DocTypeCustom       DocumentType = "custom"
	DocTypeUnknown      DocumentType = "unknown"
)

// ParseDocumentType converts a string to a DocumentType.
// Returns DocTypeUnknown if the string is not recognized.
func ParseDocumentType(s string) DocumentType {
	switch DocumentType(s) {
	case DocTypeInvoice, DocTypeReceipt, DocTypeBusinessCard, DocTypeForm, DocTypeContract, DocTypeCustom:
		return DocumentType(s)
	default:
		return DocTypeUnknown
	}
}

// ConfidenceLevel buckets a numeric confidence for display and filtering.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// LevelForConfidence maps a calibrated confidence to its display bucket:
// high ≥ 0.9, medium ≥ 0.7, low otherwise.
func LevelForConfidence(c float64) ConfidenceLevel {
	switch {
	case c >= 0.9:
		return ConfidenceHigh
	case c >= 0.7:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
