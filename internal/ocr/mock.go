package ocr

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gleanhq/glean/internal/docmodel"
)

// MockProvider is a deterministic OCR provider for tests.
type MockProvider struct {
	// ProviderName overrides the reported name, default "mock".
	ProviderName string

	// Tokens are returned (copied) from every successful Recognize call.
	Tokens []docmodel.Token

	// Latency simulates recognition time.
	Latency time.Duration

	// ShouldFail makes every call fail.
	ShouldFail bool

	// FailAfter makes calls fail after N successful requests (0 = never).
	FailAfter int

	requestCount atomic.Int64
}

// Name implements Provider.
func (m *MockProvider) Name() string {
	if m.ProviderName != "" {
		return m.ProviderName
	}
	return "mock"
}

// Recognize implements Provider.
func (m *MockProvider) Recognize(ctx context.Context, page PageImage) ([]docmodel.Token, error) {
	count := m.requestCount.Add(1)

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.ShouldFail {
		return nil, fmt.Errorf("mock ocr failure")
	}
	if m.FailAfter > 0 && count > int64(m.FailAfter) {
		return nil, fmt.Errorf("mock ocr failure after %d requests", m.FailAfter)
	}

	out := make([]docmodel.Token, len(m.Tokens))
	copy(out, m.Tokens)
	for i := range out {
		if out[i].Page == 0 {
			out[i].Page = page.Page
		}
	}
	return out, nil
}

// RequestsPerSecond implements Provider.
func (m *MockProvider) RequestsPerSecond() float64 { return 0 }

// MaxRetries implements Provider.
func (m *MockProvider) MaxRetries() int { return 0 }

// RetryDelayBase implements Provider.
func (m *MockProvider) RetryDelayBase() time.Duration { return 0 }

// RequestCount returns the number of Recognize calls made.
func (m *MockProvider) RequestCount() int64 { return m.requestCount.Load() }

var _ Provider = (*MockProvider)(nil)
