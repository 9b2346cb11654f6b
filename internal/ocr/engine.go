package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/gleanhq/glean/internal/docmodel"
)

// ErrNoUsableProvider is returned when no configured provider produced
// tokens for a page. The orchestrator converts it into the caller-facing
// OCR-unavailable error.
var ErrNoUsableProvider = errors.New("no usable OCR provider")

// DefaultDedupeOverlap is the box overlap (IoU) above which two detections
// of the same text are considered duplicates.
const DefaultDedupeOverlap = 0.5

// EngineConfig configures the OCR engine.
type EngineConfig struct {
	Providers     []Provider
	Logger        *slog.Logger
	DedupeOverlap float64 // 0 = DefaultDedupeOverlap
}

// Engine fans a page image out to all configured providers concurrently and
// merges their token streams. Each provider writes into its own result slot,
// so no shared state is mutated during recognition; the merge and dedupe run
// single-threaded afterwards.
type Engine struct {
	providers     []Provider
	logger        *slog.Logger
	dedupeOverlap float64
}

// NewEngine creates an OCR engine.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	overlap := cfg.DedupeOverlap
	if overlap <= 0 {
		overlap = DefaultDedupeOverlap
	}
	return &Engine{
		providers:     cfg.Providers,
		logger:        logger.With("component", "ocr"),
		dedupeOverlap: overlap,
	}
}

// Recognize runs all providers against the page and returns the merged,
// deduplicated token stream. Read-only with respect to the image. Fails with
// ErrNoUsableProvider (wrapped with per-provider causes) when every provider
// fails; a partial provider failure only logs.
func (e *Engine) Recognize(ctx context.Context, page PageImage) ([]docmodel.Token, error) {
	if len(e.providers) == 0 {
		return nil, fmt.Errorf("%w: none configured", ErrNoUsableProvider)
	}

	results := make([][]docmodel.Token, len(e.providers))
	errs := make([]error, len(e.providers))

	var wg sync.WaitGroup
	for i, p := range e.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			tokens, err := p.Recognize(ctx, page)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", p.Name(), err)
				return
			}
			results[i] = tokens
		}(i, p)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var merged []docmodel.Token
	succeeded := 0
	for i := range results {
		if errs[i] != nil {
			e.logger.Warn("ocr provider failed",
				"provider", e.providers[i].Name(), "page", page.Page, "error", errs[i])
			continue
		}
		succeeded++
		merged = append(merged, results[i]...)
	}

	if succeeded == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoUsableProvider, errors.Join(errs...))
	}

	deduped := e.dedupe(merged)
	sortTokens(deduped)

	e.logger.Debug("page recognized",
		"page", page.Page, "providers_ok", succeeded,
		"tokens_raw", len(merged), "tokens", len(deduped))

	return deduped, nil
}

// dedupe removes overlapping detections of the same text instance, keeping
// the highest-confidence one. Two tokens are duplicates when their texts
// match case-insensitively and their boxes overlap beyond the threshold.
func (e *Engine) dedupe(tokens []docmodel.Token) []docmodel.Token {
	kept := make([]docmodel.Token, 0, len(tokens))
	for _, tok := range tokens {
		replaced := false
		dup := false
		for i, k := range kept {
			if k.Page != tok.Page {
				continue
			}
			if !strings.EqualFold(k.Text, tok.Text) {
				continue
			}
			if k.BBox.Overlap(tok.BBox) < e.dedupeOverlap {
				continue
			}
			dup = true
			if tok.Confidence > k.Confidence {
				kept[i] = tok
				replaced = true
			}
			break
		}
		if !dup && !replaced {
			kept = append(kept, tok)
		}
	}
	return kept
}

// sortTokens orders tokens by (page, y, x, text) so the merged stream is
// deterministic regardless of provider completion order.
func sortTokens(tokens []docmodel.Token) {
	sort.SliceStable(tokens, func(i, j int) bool {
		a, b := tokens[i], tokens[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.BBox.Y != b.BBox.Y {
			return a.BBox.Y < b.BBox.Y
		}
		if a.BBox.X != b.BBox.X {
			return a.BBox.X < b.BBox.X
		}
		return a.Text < b.Text
	})
}
