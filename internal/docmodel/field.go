package docmodel

// PassKind identifies which extraction pass produced a candidate.
type PassKind string

const (
	// PassInitial is the first full-document extraction pass.
	PassInitial PassKind = "initial"
	// PassRefinement targets missing or low-confidence critical fields.
	PassRefinement PassKind = "refinement"
	// PassConsistency re-asks critical fields as a self-consistency check.
	PassConsistency PassKind = "consistency"
	// PassDetect is the document-type detection pass.
	PassDetect PassKind = "detect"
)

// FieldCandidate is an unlocated, unvalidated field produced by one
// extraction pass. Names are not unique across passes; candidate lists are
// append-only and resolved once, centrally, during validation.
type FieldCandidate struct {
	Name         string   `json:"name"`
	Value        any      `json:"value"` // string, number, list, or nested map
	Pass         PassKind `json:"pass"`
	PassSeq      int      `json:"pass_seq"`   // monotonically increasing per backend call
	Confidence   float64  `json:"confidence"` // backend self-reported, 0 when absent
	OriginalText string   `json:"original_text,omitempty"`
}

// FieldLocation anchors a field to a region of the source page.
type FieldLocation struct {
	BBox BoundingBox `json:"bounding_box"`
	Page int         `json:"page"`
}

// ExtractedField is a final, located, calibrated field. This is the durable
// output unit; its shape is the stable wire contract.
type ExtractedField struct {
	Name         string          `json:"name"`
	Value        any             `json:"value"`
	Location     *FieldLocation  `json:"location,omitempty"`
	Confidence   float64         `json:"confidence"` // calibrated, in [0,1]
	Level        ConfidenceLevel `json:"confidence_level"`
	OriginalText string          `json:"original_text,omitempty"` // OCR-evidenced substring when recoverable
	Notes        []string        `json:"validation_notes,omitempty"`
}
