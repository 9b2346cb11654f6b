package ocr

import (
	"context"
	"fmt"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/gleanhq/glean/internal/docmodel"
)

// TesseractConfig holds settings for the local Tesseract provider.
type TesseractConfig struct {
	Languages []string // tesseract language codes, default ["eng"]
}

// TesseractProvider runs Tesseract in-process via gosseract and recovers
// word-level geometry from its hOCR output.
type TesseractProvider struct {
	languages []string
}

// NewTesseractProvider creates a Tesseract-backed provider.
func NewTesseractProvider(cfg TesseractConfig) *TesseractProvider {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &TesseractProvider{languages: langs}
}

// Name implements Provider.
func (p *TesseractProvider) Name() string { return "tesseract" }

// Recognize implements Provider. Tesseract has no native context support;
// cancellation is checked before the (CPU-bound) recognition call.
func (p *TesseractProvider) Recognize(ctx context.Context, page PageImage) ([]docmodel.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(p.languages...); err != nil {
		return nil, fmt.Errorf("failed to set tesseract languages: %w", err)
	}
	if err := client.SetImageFromBytes(page.Data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	hocrText, err := client.HOCRText()
	if err != nil {
		return nil, fmt.Errorf("tesseract recognition failed: %w", err)
	}

	pages, err := parseHOCR([]byte(hocrText))
	if err != nil {
		return nil, err
	}

	return tokensFromHOCR(pages, page.Page, page.Width, page.Height)
}

// RequestsPerSecond implements Provider. Local engine, unlimited.
func (p *TesseractProvider) RequestsPerSecond() float64 { return 0 }

// MaxRetries implements Provider. Local failures are not transient.
func (p *TesseractProvider) MaxRetries() int { return 0 }

// RetryDelayBase implements Provider.
func (p *TesseractProvider) RetryDelayBase() time.Duration { return 0 }

var _ Provider = (*TesseractProvider)(nil)
