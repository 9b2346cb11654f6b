// Package ratelimit provides a token-bucket limiter shared by OCR providers
// and generative backends. One limiter per remote service; local providers
// skip limiting entirely.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket refilled at a fixed requests-per-second rate.
// Fractional rates are supported (0.5 = one request every two seconds).
type Limiter struct {
	mu sync.Mutex

	rps   float64 // refill rate, tokens per second
	burst float64 // bucket capacity

	tokens     float64
	lastUpdate time.Time

	totalConsumed int64
	totalWaited   time.Duration
	lastThrottle  time.Time
}

// Status reports current limiter state for observability.
type Status struct {
	TokensAvailable float64       `json:"tokens_available"`
	Burst           float64       `json:"burst"`
	RPS             float64       `json:"requests_per_second"`
	TimeUntilToken  time.Duration `json:"time_until_token"`
	TotalConsumed   int64         `json:"total_consumed"`
	TotalWaited     time.Duration `json:"total_waited"`
	LastThrottle    time.Time     `json:"last_throttle,omitempty"`
}

// New creates a limiter allowing rps requests per second with a burst equal
// to one second of traffic (minimum 1).
func New(rps float64) *Limiter {
	if rps <= 0 {
		rps = 1.0
	}
	burst := rps
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		rps:        rps,
		burst:      burst,
		tokens:     burst,
		lastUpdate: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()

		if l.tokens >= 1.0 {
			l.tokens--
			l.totalConsumed++
			l.mu.Unlock()
			return nil
		}

		needed := 1.0 - l.tokens
		wait := time.Duration(needed / l.rps * float64(time.Second))
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			l.mu.Lock()
			l.totalWaited += wait
			l.mu.Unlock()
		}
	}
}

// TryConsume attempts to take a token without blocking.
func (l *Limiter) TryConsume() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens >= 1.0 {
		l.tokens--
		l.totalConsumed++
		return true
	}
	return false
}

// RecordThrottle drains the bucket after a 429-style rejection so subsequent
// calls back off for at least retryAfter.
func (l *Limiter) RecordThrottle(retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastThrottle = time.Now()
	l.tokens = 0
	if retryAfter > 0 {
		// Push the refill clock forward so the first token appears no
		// earlier than retryAfter from now.
		l.lastUpdate = time.Now().Add(retryAfter - time.Duration(1.0/l.rps*float64(time.Second)))
		if l.lastUpdate.Before(time.Now()) {
			l.lastUpdate = time.Now()
		}
	}
}

// Status returns a snapshot of the limiter.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()

	var until time.Duration
	if l.tokens < 1.0 {
		until = time.Duration((1.0 - l.tokens) / l.rps * float64(time.Second))
	}

	return Status{
		TokensAvailable: l.tokens,
		Burst:           l.burst,
		RPS:             l.rps,
		TimeUntilToken:  until,
		TotalConsumed:   l.totalConsumed,
		TotalWaited:     l.totalWaited,
		LastThrottle:    l.lastThrottle,
	}
}

// refill adds tokens for elapsed time. Must be called with the lock held.
func (l *Limiter) refill() {
	now := time.Now()
	elapsed := now.Sub(l.lastUpdate).Seconds()
	if elapsed < 0 {
		return
	}
	l.lastUpdate = now

	l.tokens += elapsed * l.rps
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
}
