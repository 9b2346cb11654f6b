package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/gleanhq/glean/internal/docmodel"
	"github.com/gleanhq/glean/internal/ratelimit"
)

// RemoteConfig holds settings for the remote OCR provider.
type RemoteConfig struct {
	// BaseURL is the sidecar base URL, default http://localhost:8764.
	BaseURL string
	Timeout time.Duration
	// RateLimit is in requests per second.
	RateLimit      float64
	MaxRetries     int
	RetryDelayBase time.Duration
}

// RemoteProvider talks to an OCR sidecar over HTTP, typically the ocrbox
// container. Contract: POST {base}/hocr with the raw image as the request
// body returns an hOCR document for that image. Any container honoring this
// contract works.
type RemoteProvider struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter

	rateLimit      float64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewRemoteProvider creates a provider for an OCR sidecar.
func NewRemoteProvider(cfg RemoteConfig) *RemoteProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8764"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 4.0
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase == 0 {
		cfg.RetryDelayBase = time.Second
	}

	return &RemoteProvider{
		baseURL:        cfg.BaseURL,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		limiter:        ratelimit.New(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// Name implements Provider.
func (p *RemoteProvider) Name() string { return "remote" }

// Recognize implements Provider. Transient HTTP failures (429, 5xx,
// network errors) are retried with backoff up to MaxRetries.
func (p *RemoteProvider) Recognize(ctx context.Context, page PageImage) ([]docmodel.Token, error) {
	var body []byte

	err := retry.Do(
		func() error {
			if err := p.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			data, err := p.post(ctx, page)
			if err != nil {
				return err
			}
			body = data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(p.maxRetries)+1),
		retry.Delay(p.retryDelayBase),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxJitter(p.retryDelayBase/2),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("remote OCR failed: %w", err)
	}

	pages, err := parseHOCR(body)
	if err != nil {
		return nil, err
	}
	return tokensFromHOCR(pages, page.Page, page.Width, page.Height)
}

// post performs one sidecar request.
func (p *RemoteProvider) post(ctx context.Context, page PageImage) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/hocr", bytes.NewReader(page.Data))
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	mime := page.MIME
	if mime == "" {
		mime = "image/png"
	}
	req.Header.Set("Content-Type", mime)
	req.Header.Set("Accept", "text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err // network errors are retriable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		p.limiter.RecordThrottle(retryAfter(resp))
		return nil, fmt.Errorf("sidecar rate limited (429)")
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("sidecar error %d: %s", resp.StatusCode, truncate(string(body), 200))
	default:
		return nil, retry.Unrecoverable(
			fmt.Errorf("sidecar rejected request (%d): %s", resp.StatusCode, truncate(string(body), 200)))
	}
}

// RequestsPerSecond implements Provider.
func (p *RemoteProvider) RequestsPerSecond() float64 { return p.rateLimit }

// MaxRetries implements Provider.
func (p *RemoteProvider) MaxRetries() int { return p.maxRetries }

// RetryDelayBase implements Provider.
func (p *RemoteProvider) RetryDelayBase() time.Duration { return p.retryDelayBase }

var _ Provider = (*RemoteProvider)(nil)

// retryAfter parses a Retry-After header in seconds, 0 when absent.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// truncate shortens s for error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
