package extract

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gleanhq/glean/internal/docmodel"
)

// MockBackend is a deterministic extraction backend for tests. Responses
// are keyed by pass kind so a test can script each pass independently.
type MockBackend struct {
	// BackendName overrides the reported name, default "mock".
	BackendName string

	// Responses maps pass kind to the raw content to return. A missing
	// entry returns an empty JSON object.
	Responses map[docmodel.PassKind]string

	// Latency simulates backend time per call.
	Latency time.Duration

	// ShouldFail makes every call fail.
	ShouldFail bool

	// FailAfter makes calls fail after N successful requests (0 = never).
	FailAfter int

	// FailFirst makes the first N calls fail, then succeed. Used to
	// exercise retry behavior.
	FailFirst int

	// Retries reported to the extractor.
	Retries int

	// Delay reported as the backoff base (keep small in tests).
	Delay time.Duration

	mu       sync.Mutex
	requests []PassRequest

	requestCount atomic.Int64
}

// Name implements Backend.
func (m *MockBackend) Name() string {
	if m.BackendName != "" {
		return m.BackendName
	}
	return "mock"
}

// RequestsPerSecond implements Backend. Unlimited so tests never wait.
func (m *MockBackend) RequestsPerSecond() float64 { return 0 }

// MaxRetries implements Backend.
func (m *MockBackend) MaxRetries() int { return m.Retries }

// RetryDelayBase implements Backend.
func (m *MockBackend) RetryDelayBase() time.Duration {
	if m.Delay > 0 {
		return m.Delay
	}
	return time.Millisecond
}

// Complete implements Backend.
func (m *MockBackend) Complete(ctx context.Context, req *PassRequest) (*PassResult, error) {
	count := m.requestCount.Add(1)

	m.mu.Lock()
	m.requests = append(m.requests, *req)
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.ShouldFail {
		return nil, fmt.Errorf("mock backend failure")
	}
	if m.FailAfter > 0 && count > int64(m.FailAfter) {
		return nil, fmt.Errorf("mock backend failure after %d requests", m.FailAfter)
	}
	if m.FailFirst > 0 && count <= int64(m.FailFirst) {
		return nil, fmt.Errorf("mock transient failure %d", count)
	}

	content, ok := m.Responses[req.Kind]
	if !ok {
		content = "{}"
	}
	return &PassResult{Content: content, Model: "mock-model"}, nil
}

// RequestCount returns the number of Complete calls made.
func (m *MockBackend) RequestCount() int {
	return int(m.requestCount.Load())
}

// Requests returns a copy of every pass request received.
func (m *MockBackend) Requests() []PassRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PassRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
