package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-4o"
)

// OpenAIConfig holds configuration for the OpenAI extraction backend.
type OpenAIConfig struct {
	APIKey      string
	Model       string        // default "gpt-4o"
	MaxTokens   int           // completion token cap, default 4096
	RateLimit   float64       // requests per second, default 2.0
	MaxRetries  int           // extractor-level retries, default 3
	RetryDelay  time.Duration // base backoff delay, default 2s
	Timeout     time.Duration // per-request HTTP timeout, default 60s
	BaseURL     string        // optional (tests, OpenAI-compatible gateways)
	HTTPClient  *http.Client  // optional (tests)
	Temperature float64
}

// OpenAIBackend implements Backend using the official OpenAI SDK's chat
// completions with image parts.
type OpenAIBackend struct {
	model      string
	maxTokens  int
	rateLimit  float64
	maxRetries int
	retryDelay time.Duration
	temp       float64
	client     openai.Client
}

// NewOpenAIBackend creates an OpenAI extraction backend.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2.0
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

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		// The extractor owns retries; disable the SDK's.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIBackend{
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		rateLimit:  cfg.RateLimit,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		temp:       cfg.Temperature,
		client:     openai.NewClient(opts...),
	}
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string { return OpenAIName }

// RequestsPerSecond implements Backend.
func (b *OpenAIBackend) RequestsPerSecond() float64 { return b.rateLimit }

// MaxRetries implements Backend.
func (b *OpenAIBackend) MaxRetries() int { return b.maxRetries }

// RetryDelayBase implements Backend.
func (b *OpenAIBackend) RetryDelayBase() time.Duration { return b.retryDelay }

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, req *PassRequest) (*PassResult, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Prompt),
	}
	for _, img := range req.Images {
		mime := img.MIME
		if mime == "" {
			mime = "image/png"
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(img.Data))
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL,
		}))
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(b.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(parts),
		},
		MaxTokens:   openai.Int(int64(b.maxTokens)),
		Temperature: openai.Float(b.temp),
	}
	if req.JSONOutput {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return &PassResult{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
	}, nil
}
