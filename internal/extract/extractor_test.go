package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gleanhq/glean/internal/docmodel"
	"github.com/gleanhq/glean/internal/ocr"
)

var testPage = ocr.PageImage{Data: []byte("png-bytes"), MIME: "image/png", Page: 1}

const invoiceResponse = `{
  "vendor_name": {"value": "Acme Corp", "confidence": 0.92, "original_text": "Acme Corp"},
  "total_amount": {"value": "150.00", "confidence": 0.88, "original_text": "$150.00"},
  "invoice_date": {"value": "2024-01-15", "confidence": 0.9}
}`

func newTestExtractor(backend Backend) *Extractor {
	return New(Config{Backend: backend})
}

func TestExtractFast(t *testing.T) {
	t.Run("single pass with minimal prompt", func(t *testing.T) {
		mock := &MockBackend{Responses: map[docmodel.PassKind]string{
			docmodel.PassInitial: invoiceResponse,
		}}
		e := newTestExtractor(mock)

		candidates, detection, err := e.Extract(context.Background(), &Request{
			Images:      []ocr.PageImage{testPage},
			TextContext: "should not appear in fast prompts",
			Tier:        docmodel.TierFast,
		})
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if len(candidates) != 3 {
			t.Errorf("expected 3 candidates, got %d", len(candidates))
		}
		if mock.RequestCount() != 1 {
			t.Errorf("expected 1 backend call, got %d", mock.RequestCount())
		}
		if detection.Type != docmodel.DocTypeUnknown {
			t.Errorf("expected unknown type without hint, got %s", detection.Type)
		}

		prompt := mock.Requests()[0].Prompt
		if strings.Contains(prompt, "should not appear") {
			t.Errorf("FAST prompt included text context")
		}
	})

	t.Run("type hint is trusted without a detect pass", func(t *testing.T) {
		mock := &MockBackend{Responses: map[docmodel.PassKind]string{
			docmodel.PassInitial: invoiceResponse,
		}}
		e := newTestExtractor(mock)

		_, detection, err := e.Extract(context.Background(), &Request{
			Images:   []ocr.PageImage{testPage},
			Tier:     docmodel.TierFast,
			TypeHint: docmodel.DocTypeInvoice,
		})
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if detection.Type != docmodel.DocTypeInvoice {
			t.Errorf("expected invoice, got %s", detection.Type)
		}
		if detection.Confidence != hintedTypeConfidence {
			t.Errorf("expected confidence %v, got %v", hintedTypeConfidence, detection.Confidence)
		}
	})
}

func TestExtractBalanced(t *testing.T) {
	t.Run("detects type then extracts with hints", func(t *testing.T) {
		mock := &MockBackend{Responses: map[docmodel.PassKind]string{
			docmodel.PassDetect:  "invoice|0.91",
			docmodel.PassInitial: invoiceResponse,
		}}
		e := newTestExtractor(mock)

		candidates, detection, err := e.Extract(context.Background(), &Request{
			Images:      []ocr.PageImage{testPage},
			TextContext: "INVOICE Acme Corp Total 150.00",
			Tier:        docmodel.TierBalanced,
		})
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if detection.Type != docmodel.DocTypeInvoice {
			t.Errorf("expected detected invoice, got %s", detection.Type)
		}
		if detection.Confidence != 0.91 {
			t.Errorf("expected confidence 0.91, got %v", detection.Confidence)
		}
		if len(candidates) != 3 {
			t.Errorf("expected 3 candidates, got %d", len(candidates))
		}
		if mock.RequestCount() != 2 {
			t.Errorf("expected 2 backend calls, got %d", mock.RequestCount())
		}

		reqs := mock.Requests()
		extractPrompt := reqs[1].Prompt
		if !strings.Contains(extractPrompt, "vendor_name") {
			t.Errorf("BALANCED prompt missing profile hints")
		}
		if !strings.Contains(extractPrompt, "INVOICE Acme Corp") {
			t.Errorf("BALANCED prompt missing text context")
		}
	})

	t.Run("custom fields appear in the prompt", func(t *testing.T) {
		mock := &MockBackend{Responses: map[docmodel.PassKind]string{
			docmodel.PassInitial: `{"po_number": {"value": "PO-77"}}`,
		}}
		e := newTestExtractor(mock)

		candidates, _, err := e.Extract(context.Background(), &Request{
			Images:       []ocr.PageImage{testPage},
			Tier:         docmodel.TierBalanced,
			TypeHint:     docmodel.DocTypeInvoice,
			CustomFields: []string{"po_number"},
		})
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if !strings.Contains(mock.Requests()[0].Prompt, "po_number") {
			t.Errorf("prompt missing custom field")
		}
		if candidates[0].Name != "po_number" {
			t.Errorf("expected po_number candidate, got %s", candidates[0].Name)
		}
	})
}

func TestExtractHigh(t *testing.T) {
	t.Run("runs refinement and consistency passes", func(t *testing.T) {
		// Initial pass misses invoice_number and reports total_amount low.
		initial := `{
  "vendor_name": {"value": "Acme Corp", "confidence": 0.92},
  "total_amount": {"value": "150.00", "confidence": 0.4},
  "invoice_date": {"value": "2024-01-15", "confidence": 0.9}
}`
		mock := &MockBackend{Responses: map[docmodel.PassKind]string{
			docmodel.PassDetect:      "invoice|0.9",
			docmodel.PassInitial:     initial,
			docmodel.PassRefinement:  `{"invoice_number": {"value": "INV-001", "confidence": 0.85}, "total_amount": {"value": "150.00", "confidence": 0.9}}`,
			docmodel.PassConsistency: `{"vendor_name": {"value": "Acme Corp", "confidence": 0.95}, "total_amount": {"value": "150.00", "confidence": 0.93}}`,
		}}
		e := newTestExtractor(mock)

		candidates, detection, err := e.Extract(context.Background(), &Request{
			Images: []ocr.PageImage{testPage},
			Tier:   docmodel.TierHigh,
		})
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if detection.Type != docmodel.DocTypeInvoice {
			t.Errorf("expected invoice, got %s", detection.Type)
		}
		if mock.RequestCount() != 4 {
			t.Errorf("expected 4 backend calls, got %d", mock.RequestCount())
		}

		// Disagreeing candidates for total_amount are all retained.
		totals := 0
		for _, c := range candidates {
			if c.Name == "total_amount" {
				totals++
			}
		}
		if totals != 3 {
			t.Errorf("expected 3 total_amount candidates retained, got %d", totals)
		}

		var refinementPrompt string
		for _, r := range mock.Requests() {
			if r.Kind == docmodel.PassRefinement {
				refinementPrompt = r.Prompt
			}
		}
		if !strings.Contains(refinementPrompt, "invoice_number") {
			t.Errorf("refinement prompt missing missed critical field")
		}
		if !strings.Contains(refinementPrompt, "total_amount") {
			t.Errorf("refinement prompt missing low-confidence field")
		}
	})

	t.Run("skips refinement when all criticals are confident", func(t *testing.T) {
		full := `{
  "vendor_name": {"value": "Acme Corp", "confidence": 0.95},
  "invoice_number": {"value": "INV-001", "confidence": 0.95},
  "total_amount": {"value": "150.00", "confidence": 0.95},
  "invoice_date": {"value": "2024-01-15", "confidence": 0.95}
}`
		mock := &MockBackend{Responses: map[docmodel.PassKind]string{
			docmodel.PassInitial:     full,
			docmodel.PassConsistency: full,
		}}
		e := newTestExtractor(mock)

		_, _, err := e.Extract(context.Background(), &Request{
			Images:   []ocr.PageImage{testPage},
			Tier:     docmodel.TierHigh,
			TypeHint: docmodel.DocTypeInvoice,
		})
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		for _, r := range mock.Requests() {
			if r.Kind == docmodel.PassRefinement {
				t.Errorf("unexpected refinement pass")
			}
		}
	})
}

func TestExtractRetries(t *testing.T) {
	t.Run("recovers from transient failures", func(t *testing.T) {
		mock := &MockBackend{
			FailFirst: 2,
			Retries:   3,
			Responses: map[docmodel.PassKind]string{docmodel.PassInitial: invoiceResponse},
		}
		e := newTestExtractor(mock)

		_, _, err := e.Extract(context.Background(), &Request{
			Images:   []ocr.PageImage{testPage},
			Tier:     docmodel.TierFast,
			TypeHint: docmodel.DocTypeInvoice,
		})
		if err != nil {
			t.Fatalf("Extract failed after transient errors: %v", err)
		}
		if mock.RequestCount() != 3 {
			t.Errorf("expected 3 attempts, got %d", mock.RequestCount())
		}
	})

	t.Run("surfaces PassError when retries exhausted", func(t *testing.T) {
		mock := &MockBackend{ShouldFail: true, Retries: 2}
		e := newTestExtractor(mock)

		_, _, err := e.Extract(context.Background(), &Request{
			Images: []ocr.PageImage{testPage},
			Tier:   docmodel.TierFast,
		})
		if err == nil {
			t.Fatalf("expected error")
		}
		var passErr *PassError
		if !errors.As(err, &passErr) {
			t.Fatalf("expected PassError, got %T", err)
		}
		if passErr.Kind != docmodel.PassInitial {
			t.Errorf("expected initial pass, got %s", passErr.Kind)
		}
		if passErr.Attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", passErr.Attempts)
		}
	})

	t.Run("respects cancellation", func(t *testing.T) {
		mock := &MockBackend{ShouldFail: true, Retries: 5, Delay: time.Millisecond}
		e := newTestExtractor(mock)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, _, err := e.Extract(ctx, &Request{
			Images: []ocr.PageImage{testPage},
			Tier:   docmodel.TierFast,
		})
		if err == nil {
			t.Fatalf("expected error from cancelled context")
		}
		if mock.RequestCount() > 1 {
			t.Errorf("expected no retries after cancellation, got %d attempts", mock.RequestCount())
		}
	})
}

func TestParseDetection(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		wantType docmodel.DocumentType
		wantConf float64
	}{
		{"plain", "invoice|0.95", docmodel.DocTypeInvoice, 0.95},
		{"uppercase", "RECEIPT|0.87", docmodel.DocTypeReceipt, 0.87},
		{"fenced", "```\nform|0.8\n```", docmodel.DocTypeForm, 0.8},
		{"whitespace", "  contract | 0.75 ", docmodel.DocTypeContract, 0.75},
		{"clamped", "invoice|1.4", docmodel.DocTypeInvoice, 1.0},
		{"garbage", "not a detection", docmodel.DocTypeUnknown, 0.5},
		{"unknown type", "poster|0.9", docmodel.DocTypeUnknown, 0.9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseDetection(tc.in)
			if got.Type != tc.wantType {
				t.Errorf("expected type %s, got %s", tc.wantType, got.Type)
			}
			if got.Confidence != tc.wantConf {
				t.Errorf("expected confidence %v, got %v", tc.wantConf, got.Confidence)
			}
		})
	}
}

func TestParseCandidates(t *testing.T) {
	t.Run("recovers JSON from code fences", func(t *testing.T) {
		content := "Here are the fields:\n```json\n{\"vendor_name\": {\"value\": \"Acme\"}}\n```"
		candidates, err := parseCandidates(content, docmodel.PassInitial, 1)
		if err != nil {
			t.Fatalf("parseCandidates failed: %v", err)
		}
		if candidates[0].Name != "vendor_name" {
			t.Errorf("expected vendor_name, got %s", candidates[0].Name)
		}
	})

	t.Run("accepts bare value entries", func(t *testing.T) {
		candidates, err := parseCandidates(`{"total": "99.50"}`, docmodel.PassInitial, 1)
		if err != nil {
			t.Fatalf("parseCandidates failed: %v", err)
		}
		if candidates[0].Value != "99.50" {
			t.Errorf("expected value 99.50, got %v", candidates[0].Value)
		}
		if candidates[0].Confidence != 0.5 {
			t.Errorf("expected default confidence 0.5, got %v", candidates[0].Confidence)
		}
	})

	t.Run("skips null and empty values", func(t *testing.T) {
		candidates, err := parseCandidates(
			`{"empty": {"value": ""}, "missing": {"value": null}, "good": {"value": "x"}}`,
			docmodel.PassInitial, 1)
		if err != nil {
			t.Fatalf("parseCandidates failed: %v", err)
		}
		if len(candidates) != 1 || candidates[0].Name != "good" {
			t.Errorf("expected only the good field, got %v", candidates)
		}
	})

	t.Run("tags pass and sequence", func(t *testing.T) {
		candidates, err := parseCandidates(`{"f": {"value": "v"}}`, docmodel.PassRefinement, 4)
		if err != nil {
			t.Fatalf("parseCandidates failed: %v", err)
		}
		if candidates[0].Pass != docmodel.PassRefinement || candidates[0].PassSeq != 4 {
			t.Errorf("expected refinement/4, got %s/%d", candidates[0].Pass, candidates[0].PassSeq)
		}
	})

	t.Run("no usable fields is an error", func(t *testing.T) {
		if _, err := parseCandidates(`{}`, docmodel.PassInitial, 1); !errors.Is(err, errNoFields) {
			t.Errorf("expected errNoFields, got %v", err)
		}
	})
}
