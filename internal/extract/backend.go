// Package extract runs generative field-extraction passes over document
// images. The number and focus of passes depends on the accuracy tier;
// candidates from all passes are retained append-only and resolved later by
// the validator.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/gleanhq/glean/internal/docmodel"
	"github.com/gleanhq/glean/internal/ocr"
)

// PassRequest is one generative backend invocation. Backends treat it as
// read-only.
type PassRequest struct {
	ID     string            // unique request id
	Kind   docmodel.PassKind // initial, refinement, consistency, detect
	System string            // system instruction
	Prompt string            // user prompt
	Images []ocr.PageImage   // page images, first page first

	// JSONOutput requests a JSON-object response format from backends that
	// support one. The detect pass uses a plain-text line protocol instead.
	JSONOutput bool
}

// PassResult is the raw backend response for one pass.
type PassResult struct {
	Content string // model output, parsed by the extractor
	Model   string // model actually used, for logs
}

// Backend is a narrow interface over a generative extraction service.
// Implementations must be safe for concurrent use; the HIGH tier runs two
// passes against the same backend at once.
type Backend interface {
	// Name returns the backend identifier used in config and logs.
	Name() string

	// Complete runs one pass. Transient failures (network, timeout,
	// throttling) should be returned as-is; the extractor owns retries.
	Complete(ctx context.Context, req *PassRequest) (*PassResult, error)

	// RequestsPerSecond returns the backend rate limit.
	RequestsPerSecond() float64

	// MaxRetries returns how many times a failed pass is retried.
	MaxRetries() int

	// RetryDelayBase returns the base delay for exponential backoff.
	RetryDelayBase() time.Duration
}

// PassError reports a pass whose retries were exhausted. The pipeline
// converts it into the caller-facing extraction-failed error.
type PassError struct {
	Kind     docmodel.PassKind
	Attempts int
	Err      error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("%s pass failed after %d attempts: %v", e.Kind, e.Attempts, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }
