package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/gleanhq/glean/internal/docmodel"
	"github.com/gleanhq/glean/internal/ocr"
	"github.com/gleanhq/glean/internal/profile"
	"github.com/gleanhq/glean/internal/ratelimit"
)

// lowConfidenceFloor marks an initial-pass critical field as a refinement
// target when its self-reported confidence falls below it.
const lowConfidenceFloor = 0.6

// hintedTypeConfidence is the type confidence recorded when the caller
// supplied the document type instead of a detection pass.
const hintedTypeConfidence = 0.95

// Request describes one document to extract fields from.
type Request struct {
	Images []ocr.PageImage
	// TextContext is the layout text, used to ground BALANCED and HIGH
	// prompts.
	TextContext string
	Tier        docmodel.Tier
	// TypeHint is DocTypeUnknown when the caller gave none.
	TypeHint     docmodel.DocumentType
	CustomFields []string
}

// Detection is the outcome of document-type detection.
type Detection struct {
	Type       docmodel.DocumentType
	Confidence float64
}

// Extractor runs the per-tier pass sequence against one backend.
type Extractor struct {
	backend  Backend
	limiter  *ratelimit.Limiter
	profiles *profile.Registry
	logger   *slog.Logger
}

// Config configures an extractor.
type Config struct {
	Backend  Backend
	Profiles *profile.Registry
	Logger   *slog.Logger
}

// New creates an extractor. A rate limiter is attached when the backend
// reports a positive requests-per-second limit.
func New(cfg Config) *Extractor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	profiles := cfg.Profiles
	if profiles == nil {
		profiles = profile.NewRegistry()
	}

	var limiter *ratelimit.Limiter
	if rps := cfg.Backend.RequestsPerSecond(); rps > 0 {
		limiter = ratelimit.New(rps)
	}

	return &Extractor{
		backend:  cfg.Backend,
		limiter:  limiter,
		profiles: profiles,
		logger:   logger.With("component", "extract", "backend", cfg.Backend.Name()),
	}
}

// Extract runs the pass sequence for the requested tier and returns every
// candidate produced, append-only across passes. Disagreeing candidates for
// the same field are all retained; the validator resolves them centrally.
func (e *Extractor) Extract(ctx context.Context, req *Request) ([]docmodel.FieldCandidate, Detection, error) {
	if len(req.Images) == 0 {
		return nil, Detection{}, fmt.Errorf("no page images to extract from")
	}

	detection := Detection{Type: req.TypeHint, Confidence: hintedTypeConfidence}
	if req.TypeHint == docmodel.DocTypeUnknown || req.TypeHint == "" {
		detection = Detection{Type: docmodel.DocTypeUnknown, Confidence: 0}
	}

	switch req.Tier {
	case docmodel.TierFast:
		return e.extractFast(ctx, req, detection)
	case docmodel.TierHigh:
		return e.extractHigh(ctx, req, detection)
	default:
		return e.extractBalanced(ctx, req, detection)
	}
}

// extractFast is a single minimal-context pass. No detection pass runs when
// the type hint is absent; lowest latency wins.
func (e *Extractor) extractFast(ctx context.Context, req *Request, detection Detection) ([]docmodel.FieldCandidate, Detection, error) {
	prof := e.profiles.Lookup(detection.Type)
	prompt := buildExtractionPrompt(docmodel.TierFast, prof, req.CustomFields, "")

	candidates, err := e.runExtractionPass(ctx, req, docmodel.PassInitial, 1, prompt)
	if err != nil {
		return nil, detection, err
	}
	return candidates, detection, nil
}

// extractBalanced detects the document type when no hint was given, then
// runs one full-context pass with profile hints.
func (e *Extractor) extractBalanced(ctx context.Context, req *Request, detection Detection) ([]docmodel.FieldCandidate, Detection, error) {
	seq := 0
	if detection.Confidence == 0 {
		seq++
		d, err := e.runDetectPass(ctx, req, seq)
		if err != nil {
			return nil, detection, err
		}
		detection = d
	}

	prof := e.profiles.Lookup(detection.Type)
	prompt := buildExtractionPrompt(docmodel.TierBalanced, prof, req.CustomFields, req.TextContext)

	seq++
	candidates, err := e.runExtractionPass(ctx, req, docmodel.PassInitial, seq, prompt)
	if err != nil {
		return nil, detection, err
	}
	return candidates, detection, nil
}

// extractHigh runs the initial extraction and type detection concurrently
// (both are independent reads of the same image), then a refinement pass
// over missing or low-confidence critical fields, then a self-consistency
// pass over the critical fields. Refinement depends on the initial pass's
// output and cannot start earlier.
func (e *Extractor) extractHigh(ctx context.Context, req *Request, detection Detection) ([]docmodel.FieldCandidate, Detection, error) {
	needDetect := detection.Confidence == 0

	// The initial pass runs without type hints when detection is still in
	// flight; refinement and consistency get the detected profile.
	initialProf := e.profiles.Lookup(detection.Type)
	initialPrompt := buildExtractionPrompt(docmodel.TierHigh, initialProf, req.CustomFields, req.TextContext)

	var (
		wg         sync.WaitGroup
		candidates []docmodel.FieldCandidate
		initialErr error
		detectErr  error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		candidates, initialErr = e.runExtractionPass(ctx, req, docmodel.PassInitial, 1, initialPrompt)
	}()

	if needDetect {
		wg.Add(1)
		go func() {
			defer wg.Done()
			detection, detectErr = e.runDetectPass(ctx, req, 2)
		}()
	}
	wg.Wait()

	if initialErr != nil {
		return nil, detection, initialErr
	}
	if detectErr != nil {
		return nil, detection, detectErr
	}

	prof := e.profiles.Lookup(detection.Type)
	seq := 2
	if needDetect {
		seq = 3
	}

	if targets := refinementTargets(prof, req.CustomFields, candidates); len(targets) > 0 {
		refined, err := e.runTargetedPass(ctx, req, docmodel.PassRefinement, seq, buildRefinementPrompt(targets))
		if err != nil {
			return nil, detection, err
		}
		candidates = append(candidates, refined...)
		seq++
	}

	if critical := consistencyTargets(prof, candidates); len(critical) > 0 {
		checked, err := e.runTargetedPass(ctx, req, docmodel.PassConsistency, seq, buildConsistencyPrompt(critical))
		if err != nil {
			return nil, detection, err
		}
		candidates = append(candidates, checked...)
	}

	return candidates, detection, nil
}

// refinementTargets returns critical and custom fields that the initial
// pass missed or reported below the low-confidence floor.
func refinementTargets(prof profile.Profile, customFields []string, candidates []docmodel.FieldCandidate) []string {
	byName := make(map[string]docmodel.FieldCandidate, len(candidates))
	for _, c := range candidates {
		byName[c.Name] = c
	}

	wanted := append([]string{}, prof.CriticalFields...)
	wanted = append(wanted, customFields...)

	var targets []string
	for _, name := range wanted {
		c, ok := byName[name]
		if !ok || c.Value == nil || c.Confidence < lowConfidenceFloor {
			targets = append(targets, name)
		}
	}
	return targets
}

// consistencyTargets returns the critical fields present in the candidate
// set; those get re-asked verbatim by the consistency pass.
func consistencyTargets(prof profile.Profile, candidates []docmodel.FieldCandidate) []string {
	var targets []string
	for _, name := range prof.CriticalFields {
		for _, c := range candidates {
			if c.Name == name {
				targets = append(targets, name)
				break
			}
		}
	}
	return targets
}

func (e *Extractor) runExtractionPass(ctx context.Context, req *Request, kind docmodel.PassKind, seq int, prompt string) ([]docmodel.FieldCandidate, error) {
	result, attempts, err := e.callBackend(ctx, &PassRequest{
		ID:         uuid.New().String(),
		Kind:       kind,
		System:     extractionSystem,
		Prompt:     prompt,
		Images:     req.Images,
		JSONOutput: true,
	})
	if err != nil {
		return nil, &PassError{Kind: kind, Attempts: attempts, Err: err}
	}

	if raw, pErr := parsePassJSON(result.Content); pErr == nil {
		if vErr := validateExtraction(raw); vErr != nil {
			e.logger.Warn("pass output failed schema validation, salvaging fields",
				"pass", kind, "error", vErr)
		}
	}

	candidates, err := parseCandidates(result.Content, kind, seq)
	if err != nil {
		return nil, &PassError{Kind: kind, Attempts: attempts, Err: err}
	}

	e.logger.Debug("extraction pass complete",
		"pass", kind, "seq", seq, "fields", len(candidates), "model", result.Model)
	return candidates, nil
}

// runTargetedPass is an extraction pass whose empty result is not an error:
// a refinement pass may legitimately find nothing new.
func (e *Extractor) runTargetedPass(ctx context.Context, req *Request, kind docmodel.PassKind, seq int, prompt string) ([]docmodel.FieldCandidate, error) {
	candidates, err := e.runExtractionPass(ctx, req, kind, seq, prompt)
	if err != nil {
		if errors.Is(err, errNoFields) {
			e.logger.Debug("targeted pass found no fields", "pass", kind)
			return nil, nil
		}
		return nil, err
	}
	return candidates, nil
}

func (e *Extractor) runDetectPass(ctx context.Context, req *Request, seq int) (Detection, error) {
	result, attempts, err := e.callBackend(ctx, &PassRequest{
		ID:     uuid.New().String(),
		Kind:   docmodel.PassDetect,
		System: detectSystem,
		Prompt: detectPrompt,
		Images: req.Images[:1],
	})
	if err != nil {
		return Detection{}, &PassError{Kind: docmodel.PassDetect, Attempts: attempts, Err: err}
	}

	detection := parseDetection(result.Content)
	e.logger.Debug("document type detected",
		"type", detection.Type, "confidence", detection.Confidence, "seq", seq)
	return detection, nil
}

// callBackend waits for the rate limiter and invokes the backend with
// exponential-backoff retries. Context cancellation is never retried.
func (e *Extractor) callBackend(ctx context.Context, pass *PassRequest) (*PassResult, int, error) {
	attempts := 0

	var result *PassResult
	err := retry.Do(
		func() error {
			attempts++
			if e.limiter != nil {
				if err := e.limiter.Wait(ctx); err != nil {
					return err
				}
			}

			start := time.Now()
			r, err := e.backend.Complete(ctx, pass)
			if err != nil {
				e.logger.Warn("backend pass attempt failed",
					"pass", pass.Kind, "attempt", attempts, "error", err)
				return err
			}
			e.logger.Debug("backend pass attempt succeeded",
				"pass", pass.Kind, "attempt", attempts, "duration", time.Since(start))
			result = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(e.backend.MaxRetries()+1)),
		retry.Delay(e.backend.RetryDelayBase()),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxJitter(e.backend.RetryDelayBase()/2),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
	)
	if err != nil {
		return nil, attempts, err
	}
	return result, attempts, nil
}
