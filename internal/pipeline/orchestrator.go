// Package pipeline sequences the document stages: OCR, layout analysis,
// generative extraction, field location, and validation. The orchestrator
// owns stage ordering and timing; each stage package owns its own logic.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gleanhq/glean/internal/docmodel"
	"github.com/gleanhq/glean/internal/extract"
	"github.com/gleanhq/glean/internal/layout"
	"github.com/gleanhq/glean/internal/locate"
	"github.com/gleanhq/glean/internal/ocr"
	"github.com/gleanhq/glean/internal/profile"
	"github.com/gleanhq/glean/internal/validate"
)

// Request describes one document to process. The orchestrator never mutates
// the request or its page images.
type Request struct {
	Images       []ocr.PageImage
	Tier         docmodel.Tier
	TypeHint     docmodel.DocumentType
	CustomFields []string
}

// Config wires the orchestrator's stages.
type Config struct {
	Engine    *ocr.Engine
	Extractor *extract.Extractor
	Profiles  *profile.Registry

	// Optional; defaults are created when nil.
	Analyzer  *layout.Analyzer
	Locator   *locate.Locator
	Validator *validate.Validator
	Logger    *slog.Logger
	Progress  ProgressFunc
}

// Orchestrator runs documents through the full stage sequence. Safe for
// concurrent use; per-document state lives on the stack of Process.
type Orchestrator struct {
	engine    *ocr.Engine
	analyzer  *layout.Analyzer
	extractor *extract.Extractor
	locator   *locate.Locator
	validator *validate.Validator
	profiles  *profile.Registry
	logger    *slog.Logger
	progress  ProgressFunc
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	analyzer := cfg.Analyzer
	if analyzer == nil {
		analyzer = layout.New(layout.Config{})
	}
	locator := cfg.Locator
	if locator == nil {
		locator = locate.New(locate.Config{})
	}
	validator := cfg.Validator
	if validator == nil {
		validator = validate.New(validate.Config{Logger: logger})
	}
	profiles := cfg.Profiles
	if profiles == nil {
		profiles = profile.NewRegistry()
	}
	return &Orchestrator{
		engine:    cfg.Engine,
		analyzer:  analyzer,
		extractor: cfg.Extractor,
		locator:   locator,
		validator: validator,
		profiles:  profiles,
		logger:    logger.With("component", "pipeline"),
		progress:  cfg.Progress,
	}
}

// Process runs one document through every stage and returns its result.
// The result is complete when err is nil; there are no partial results.
// Each call produces a fresh result with a fresh ID.
func (o *Orchestrator) Process(ctx context.Context, req *Request) (*docmodel.ExtractionResult, error) {
	if len(req.Images) == 0 {
		return nil, &StageError{Stage: "input", Err: fmt.Errorf("no page images")}
	}

	docID := uuid.NewString()
	logger := o.logger.With("doc_id", docID, "tier", req.Tier)
	start := time.Now()
	timings := make(map[string]int64)

	tokens, err := o.runOCR(ctx, req, logger, timings)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.report("layout", 0.40, fmt.Sprintf("grouping %d tokens", len(tokens)))
	stageStart := time.Now()
	blocks := o.analyzer.Group(tokens)
	timings["layout"] = time.Since(stageStart).Milliseconds()
	logger.Debug("layout complete", "blocks", len(blocks))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.report("extract", 0.45, "running extraction passes")
	stageStart = time.Now()
	candidates, detection, err := o.extractor.Extract(ctx, &extract.Request{
		Images:       req.Images,
		TextContext:  textContext(blocks),
		Tier:         req.Tier,
		TypeHint:     req.TypeHint,
		CustomFields: req.CustomFields,
	})
	timings["extract"] = time.Since(stageStart).Milliseconds()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, stageErr("extract", ErrExtractionFailed, err)
	}
	logger.Debug("extraction complete", "candidates", len(candidates),
		"type", detection.Type, "type_confidence", detection.Confidence)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.report("locate", 0.80, "matching fields to page regions")
	stageStart = time.Now()
	located := o.locator.Locate(candidates, blocks)
	timings["locate"] = time.Since(stageStart).Milliseconds()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.report("validate", 0.90, "validating and calibrating")
	stageStart = time.Now()
	prof := o.profiles.Lookup(detection.Type)
	fields := o.validator.Validate(located, req.Tier, prof)
	timings["validate"] = time.Since(stageStart).Milliseconds()

	result := &docmodel.ExtractionResult{
		ID:     docID,
		Fields: fields,
		Summary: docmodel.Summary{
			TotalFieldsExtracted:   len(fields),
			OverallConfidence:      validate.OverallConfidence(fields, prof),
			DocumentType:           detection.Type,
			DocumentTypeConfidence: detection.Confidence,
			Tier:                   req.Tier,
			DurationMS:             time.Since(start).Milliseconds(),
			StageTimingsMS:         timings,
		},
	}

	o.report("done", 1.0, fmt.Sprintf("%d fields extracted", len(fields)))
	logger.Info("document processed",
		"fields", len(fields),
		"confidence", result.Summary.OverallConfidence,
		"duration_ms", result.Summary.DurationMS)
	return result, nil
}

// runOCR recognizes every page. A page where every provider fails is
// tolerated as long as at least one page yields tokens.
func (o *Orchestrator) runOCR(ctx context.Context, req *Request, logger *slog.Logger, timings map[string]int64) ([]docmodel.Token, error) {
	stageStart := time.Now()
	var tokens []docmodel.Token
	usablePages := 0

	for i, page := range req.Images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.report("ocr", 0.35*float64(i)/float64(len(req.Images)),
			fmt.Sprintf("recognizing page %d/%d", i+1, len(req.Images)))

		pageTokens, err := o.engine.Recognize(ctx, page)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			logger.Warn("page recognition failed", "page", page.Page, "error", err)
			continue
		}
		usablePages++
		tokens = append(tokens, pageTokens...)
	}
	timings["ocr"] = time.Since(stageStart).Milliseconds()

	if usablePages == 0 {
		return nil, stageErr("ocr", ErrOCRUnavailable,
			fmt.Errorf("no provider produced tokens for any of %d pages", len(req.Images)))
	}
	logger.Debug("ocr complete", "tokens", len(tokens), "pages", usablePages)
	return tokens, nil
}

func (o *Orchestrator) report(stage string, percent float64, message string) {
	if o.progress == nil {
		return
	}
	o.progress(ProgressEvent{Stage: stage, Percent: percent, Message: message})
}

// textContext renders the layout blocks as reading-order text for prompt
// grounding.
func textContext(blocks []docmodel.LayoutBlock) string {
	var b strings.Builder
	for i, block := range blocks {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(block.Text)
	}
	return b.String()
}
