package extract

import (
	"fmt"
	"strings"

	"github.com/gleanhq/glean/internal/docmodel"
	"github.com/gleanhq/glean/internal/profile"
)

const extractionSystem = `You are a document field extraction engine. You read scanned document
images and return structured fields as JSON. Extract EXACTLY what you see:
keep original formatting for amounts and dates, do not interpret or
translate values, and report conservative confidence scores.`

const detectSystem = `You classify scanned document images by type.`

const detectPrompt = `Determine this document's type.

Indicators:
- invoice: vendor info, invoice number, line items, total amount
- receipt: store name, transaction date, payment method, short item list
- business_card: personal contact info, company name, small format
- form: labeled fields in a structured layout
- contract: legal language, signatures, terms

Respond with ONLY the type and a confidence between 0.0 and 1.0, in the
format TYPE|confidence, for example: invoice|0.95`

const outputFormat = `Return a single JSON object mapping each field name to an entry:
{
  "field_name": {
    "value": "extracted value exactly as seen",
    "confidence": 0.95,
    "original_text": "text as it appears in the document"
  }
}
Return ONLY the JSON object, no commentary.`

// buildExtractionPrompt assembles the user prompt for an initial pass.
// FAST keeps it minimal; BALANCED and HIGH add profile hints and the OCR
// text context.
func buildExtractionPrompt(tier docmodel.Tier, prof profile.Profile, customFields []string, textContext string) string {
	var b strings.Builder

	b.WriteString("Extract all field name / value pairs from this document.\n")

	if tier != docmodel.TierFast {
		if len(prof.PromptHints) > 0 {
			b.WriteString("\nExpected fields for this document type:\n")
			for _, hint := range prof.PromptHints {
				b.WriteString("- ")
				b.WriteString(hint)
				b.WriteString("\n")
			}
			b.WriteString("Also extract any other visible fields not listed above.\n")
		}
		if textContext != "" {
			b.WriteString("\nOCR text recognized on the page, for reference:\n")
			b.WriteString(truncate(textContext, 6000))
			b.WriteString("\n")
		}
	}

	if len(customFields) > 0 {
		b.WriteString("\nAdditionally extract these caller-requested fields, using these exact names:\n")
		for _, f := range customFields {
			b.WriteString("- ")
			b.WriteString(f)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(outputFormat)
	return b.String()
}

// buildRefinementPrompt targets specific fields the initial pass missed or
// extracted with low confidence.
func buildRefinementPrompt(fields []string) string {
	return fmt.Sprintf(`Look carefully at the document and find ONLY these specific fields,
which were missed or uncertain in a previous read:
%s

%s`, "- "+strings.Join(fields, "\n- "), outputFormat)
}

// buildConsistencyPrompt re-asks the critical fields independently so the
// validator can compare answers across passes.
func buildConsistencyPrompt(fields []string) string {
	return fmt.Sprintf(`Re-read the document and extract these fields, independently of any
previous answer:
%s

Report exactly what the document shows.

%s`, "- "+strings.Join(fields, "\n- "), outputFormat)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n...[truncated]"
}
