// Package ocr turns page images into spatial text tokens.
//
// One or more providers run against the same read-only image; the engine
// merges their token streams and deduplicates overlapping detections. At
// least one provider must succeed or the document cannot proceed.
package ocr

import (
	"context"
	"time"

	"github.com/gleanhq/glean/internal/docmodel"
)

// PageImage is a single decoded page handed to providers. PDF inputs are
// rasterized upstream; providers never see multi-page containers.
type PageImage struct {
	Data []byte // encoded image bytes
	MIME string // "image/png" or "image/jpeg"
	Page int    // 1-based page number within the source document

	// Pixel dimensions when known. Providers that receive pixel-space
	// geometry use these to normalize; providers that return normalized
	// geometry ignore them.
	Width  int
	Height int
}

// Provider is a single OCR backend. Implementations own their retry and
// rate-limit behavior; the engine treats each call as one attempt.
type Provider interface {
	// Name returns the provider identifier used in config and logs.
	Name() string

	// Recognize extracts tokens from one page image. Token boxes are
	// normalized to [0,1] and confidences to [0,1] regardless of what the
	// underlying engine reports natively.
	Recognize(ctx context.Context, page PageImage) ([]docmodel.Token, error)

	// RequestsPerSecond returns the rate limit for this provider.
	// Zero means unlimited (local engines).
	RequestsPerSecond() float64

	// MaxRetries returns how many times a transient failure is retried.
	MaxRetries() int

	// RetryDelayBase returns the base delay for exponential backoff.
	RetryDelayBase() time.Duration
}
