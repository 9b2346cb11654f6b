package docmodel

// Summary carries document-level statistics for one extraction run.
type Summary struct {
	TotalFieldsExtracted   int              `json:"total_fields_extracted"`
	OverallConfidence      float64          `json:"overall_confidence"`
	DocumentType           DocumentType     `json:"document_type"`
	DocumentTypeConfidence float64          `json:"document_type_confidence"`
	Tier                   Tier             `json:"accuracy_tier"`
	DurationMS             int64            `json:"duration_ms"`
	StageTimingsMS         map[string]int64 `json:"stage_timings_ms,omitempty"`
}

// ExtractionResult is the complete output for one document. Created once by
// the orchestrator and immutable after return; re-processing the same
// document creates a new result with a new ID.
type ExtractionResult struct {
	ID      string                    `json:"id"`
	Fields  map[string]ExtractedField `json:"fields"`
	Summary Summary                   `json:"summary"`
}
