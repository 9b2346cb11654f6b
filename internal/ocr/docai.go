package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/gleanhq/glean/internal/docmodel"
)

// DocAIConfig holds settings for the Google Document AI provider.
type DocAIConfig struct {
	ProjectID       string
	Location        string // processor region, e.g. "us" or "eu"
	ProcessorID     string
	CredentialsFile string  // optional, falls back to ambient credentials
	RateLimit       float64 // requests per second
	MaxRetries      int
	RetryDelayBase  time.Duration
}

// DocAIProvider recognizes text through a Google Document AI OCR processor.
// Document AI returns geometry as normalized vertices, which map directly
// onto token bounding boxes.
type DocAIProvider struct {
	client *documentai.DocumentProcessorClient
	name   string // full processor resource name

	rateLimit      float64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewDocAIProvider creates the provider and its underlying client.
// Callers own Close.
func NewDocAIProvider(ctx context.Context, cfg DocAIConfig) (*DocAIProvider, error) {
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, fmt.Errorf("docai requires project_id and processor_id")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2.0
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase == 0 {
		cfg.RetryDelayBase = time.Second
	}

	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create document AI client: %w", err)
	}

	return &DocAIProvider{
		client: client,
		name: fmt.Sprintf("projects/%s/locations/%s/processors/%s",
			cfg.ProjectID, cfg.Location, cfg.ProcessorID),
		rateLimit:      cfg.RateLimit,
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}, nil
}

// Close releases the underlying gRPC client.
func (p *DocAIProvider) Close() error { return p.client.Close() }

// Name implements Provider.
func (p *DocAIProvider) Name() string { return "docai" }

// Recognize implements Provider.
func (p *DocAIProvider) Recognize(ctx context.Context, page PageImage) ([]docmodel.Token, error) {
	mime := page.MIME
	if mime == "" {
		mime = "image/png"
	}

	req := &documentaipb.ProcessRequest{
		Name: p.name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  page.Data,
				MimeType: mime,
			},
		},
		SkipHumanReview: true,
	}

	resp, err := p.client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("document AI processing failed: %w", err)
	}

	return tokensFromDocument(resp.Document, page.Page), nil
}

// RequestsPerSecond implements Provider.
func (p *DocAIProvider) RequestsPerSecond() float64 { return p.rateLimit }

// MaxRetries implements Provider.
func (p *DocAIProvider) MaxRetries() int { return p.maxRetries }

// RetryDelayBase implements Provider.
func (p *DocAIProvider) RetryDelayBase() time.Duration { return p.retryDelayBase }

// tokensFromDocument flattens a Document AI response into normalized tokens.
// The response may carry multiple pages (it does not for single images, but
// the walk stays general); all tokens are attributed to pageNum since the
// provider is fed one page image at a time.
func tokensFromDocument(doc *documentaipb.Document, pageNum int) []docmodel.Token {
	if doc == nil {
		return nil
	}

	var tokens []docmodel.Token
	for _, page := range doc.Pages {
		for _, tok := range page.Tokens {
			layout := tok.GetLayout()
			if layout == nil {
				continue
			}
			text := strings.TrimSpace(anchorText(doc.Text, layout.GetTextAnchor()))
			if text == "" {
				continue
			}
			bbox, ok := normalizedBBox(layout.GetBoundingPoly())
			if !ok {
				continue
			}
			tokens = append(tokens, docmodel.Token{
				Text:       text,
				BBox:       bbox,
				Confidence: clamp01(float64(layout.GetConfidence())),
				Page:       pageNum,
			})
		}
	}
	return tokens
}

// anchorText slices the document text covered by a text anchor.
func anchorText(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := int(seg.GetStartIndex()), int(seg.GetEndIndex())
		if start < 0 || end > len(full) || start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}

// normalizedBBox converts a bounding poly's normalized vertices to a box.
// Uses min/max over all vertices rather than corner positions, since
// rotated pages reorder the quad.
func normalizedBBox(poly *documentaipb.BoundingPoly) (docmodel.BoundingBox, bool) {
	verts := poly.GetNormalizedVertices()
	if len(verts) < 3 {
		return docmodel.BoundingBox{}, false
	}

	minX, minY := float64(verts[0].GetX()), float64(verts[0].GetY())
	maxX, maxY := minX, minY
	for _, v := range verts[1:] {
		x, y := float64(v.GetX()), float64(v.GetY())
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	if maxX <= minX || maxY <= minY {
		return docmodel.BoundingBox{}, false
	}

	return docmodel.BoundingBox{
		X:      clamp01(minX),
		Y:      clamp01(minY),
		Width:  clamp01(maxX - minX),
		Height: clamp01(maxY - minY),
	}, true
}
