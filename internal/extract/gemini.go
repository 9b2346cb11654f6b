package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	GeminiName         = "gemini"
	geminiDefaultModel = "gemini-1.5-pro"
)

// GeminiConfig holds configuration for the Gemini extraction backend.
type GeminiConfig struct {
	APIKey     string
	Model      string        // default "gemini-1.5-pro"
	RateLimit  float64       // requests per second, default 1.0
	MaxRetries int           // default 3
	RetryDelay time.Duration // default 2s
	Timeout    time.Duration // per-request timeout, default 60s
}

// GeminiBackend implements Backend using Google's generative AI SDK. The
// client is created per call and closed when the pass completes; the SDK
// holds a gRPC connection that should not outlive the request.
type GeminiBackend struct {
	apiKey     string
	model      string
	rateLimit  float64
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
}

// NewGeminiBackend creates a Gemini extraction backend.
func NewGeminiBackend(cfg GeminiConfig) *GeminiBackend {
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &GeminiBackend{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      cfg.Model,
		rateLimit:  cfg.RateLimit,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		timeout:    cfg.Timeout,
	}
}

// Name implements Backend.
func (b *GeminiBackend) Name() string { return GeminiName }

// RequestsPerSecond implements Backend.
func (b *GeminiBackend) RequestsPerSecond() float64 { return b.rateLimit }

// MaxRetries implements Backend.
func (b *GeminiBackend) MaxRetries() int { return b.maxRetries }

// RetryDelayBase implements Backend.
func (b *GeminiBackend) RetryDelayBase() time.Duration { return b.retryDelay }

// Complete implements Backend.
func (b *GeminiBackend) Complete(ctx context.Context, req *PassRequest) (*PassResult, error) {
	if b.apiKey == "" {
		return nil, fmt.Errorf("gemini API key is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, option.WithAPIKey(b.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(b.model)
	temp := float32(0)
	model.GenerationConfig = genai.GenerationConfig{Temperature: &temp}
	if req.JSONOutput {
		model.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	parts := make([]genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, genai.ImageData(imageSubtype(img.MIME), img.Data))
	}
	parts = append(parts, genai.Text(req.Prompt))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generate content failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates in response")
	}

	var content strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			content.WriteString(string(text))
		}
	}
	if content.Len() == 0 {
		return nil, fmt.Errorf("no text in response")
	}

	return &PassResult{Content: content.String(), Model: b.model}, nil
}

// imageSubtype converts an image MIME type to the bare subtype the genai
// SDK expects ("image/png" -> "png").
func imageSubtype(mime string) string {
	if sub, ok := strings.CutPrefix(mime, "image/"); ok && sub != "" {
		return sub
	}
	return "png"
}
