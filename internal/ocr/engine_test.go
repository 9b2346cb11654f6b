package ocr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gleanhq/glean/internal/docmodel"
)

func box(x, y, w, h float64) docmodel.BoundingBox {
	return docmodel.BoundingBox{X: x, Y: y, Width: w, Height: h}
}

func TestEngineRecognize(t *testing.T) {
	page := PageImage{Data: []byte("img"), MIME: "image/png", Page: 1}

	t.Run("merges tokens from multiple providers", func(t *testing.T) {
		a := &MockProvider{ProviderName: "a", Tokens: []docmodel.Token{
			{Text: "Invoice", BBox: box(0.1, 0.1, 0.2, 0.05), Confidence: 0.9, Page: 1},
		}}
		b := &MockProvider{ProviderName: "b", Tokens: []docmodel.Token{
			{Text: "Total", BBox: box(0.1, 0.8, 0.15, 0.05), Confidence: 0.8, Page: 1},
		}}

		engine := NewEngine(EngineConfig{Providers: []Provider{a, b}})
		tokens, err := engine.Recognize(context.Background(), page)
		if err != nil {
			t.Fatalf("Recognize() error = %v", err)
		}
		if len(tokens) != 2 {
			t.Fatalf("expected 2 tokens, got %d", len(tokens))
		}
		if a.RequestCount() != 1 || b.RequestCount() != 1 {
			t.Errorf("expected one call per provider, got %d and %d", a.RequestCount(), b.RequestCount())
		}
	})

	t.Run("dedupes overlapping detections keeping higher confidence", func(t *testing.T) {
		a := &MockProvider{ProviderName: "a", Tokens: []docmodel.Token{
			{Text: "Acme", BBox: box(0.10, 0.10, 0.10, 0.04), Confidence: 0.7, Page: 1},
		}}
		b := &MockProvider{ProviderName: "b", Tokens: []docmodel.Token{
			{Text: "ACME", BBox: box(0.105, 0.10, 0.10, 0.04), Confidence: 0.95, Page: 1},
		}}

		engine := NewEngine(EngineConfig{Providers: []Provider{a, b}})
		tokens, err := engine.Recognize(context.Background(), page)
		if err != nil {
			t.Fatalf("Recognize() error = %v", err)
		}
		if len(tokens) != 1 {
			t.Fatalf("expected 1 token after dedupe, got %d", len(tokens))
		}
		if tokens[0].Confidence != 0.95 {
			t.Errorf("expected higher-confidence detection kept, got %.2f", tokens[0].Confidence)
		}
	})

	t.Run("keeps distinct detections of same text", func(t *testing.T) {
		a := &MockProvider{Tokens: []docmodel.Token{
			{Text: "100.00", BBox: box(0.1, 0.3, 0.1, 0.04), Confidence: 0.9, Page: 1},
			{Text: "100.00", BBox: box(0.1, 0.7, 0.1, 0.04), Confidence: 0.9, Page: 1},
		}}

		engine := NewEngine(EngineConfig{Providers: []Provider{a}})
		tokens, err := engine.Recognize(context.Background(), page)
		if err != nil {
			t.Fatalf("Recognize() error = %v", err)
		}
		if len(tokens) != 2 {
			t.Fatalf("expected 2 tokens, got %d", len(tokens))
		}
	})

	t.Run("partial provider failure still succeeds", func(t *testing.T) {
		good := &MockProvider{ProviderName: "good", Tokens: []docmodel.Token{
			{Text: "ok", BBox: box(0.1, 0.1, 0.1, 0.04), Confidence: 0.8, Page: 1},
		}}
		bad := &MockProvider{ProviderName: "bad", ShouldFail: true}

		engine := NewEngine(EngineConfig{Providers: []Provider{good, bad}})
		tokens, err := engine.Recognize(context.Background(), page)
		if err != nil {
			t.Fatalf("Recognize() error = %v", err)
		}
		if len(tokens) != 1 {
			t.Errorf("expected 1 token, got %d", len(tokens))
		}
	})

	t.Run("all providers failing returns ErrNoUsableProvider", func(t *testing.T) {
		engine := NewEngine(EngineConfig{Providers: []Provider{
			&MockProvider{ProviderName: "a", ShouldFail: true},
			&MockProvider{ProviderName: "b", ShouldFail: true},
		}})

		_, err := engine.Recognize(context.Background(), page)
		if !errors.Is(err, ErrNoUsableProvider) {
			t.Fatalf("expected ErrNoUsableProvider, got %v", err)
		}
	})

	t.Run("no providers configured returns ErrNoUsableProvider", func(t *testing.T) {
		engine := NewEngine(EngineConfig{})
		_, err := engine.Recognize(context.Background(), page)
		if !errors.Is(err, ErrNoUsableProvider) {
			t.Fatalf("expected ErrNoUsableProvider, got %v", err)
		}
	})

	t.Run("respects cancellation", func(t *testing.T) {
		slow := &MockProvider{Latency: 5 * time.Second, Tokens: []docmodel.Token{
			{Text: "x", BBox: box(0.1, 0.1, 0.1, 0.04), Page: 1},
		}}
		engine := NewEngine(EngineConfig{Providers: []Provider{slow}})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := engine.Recognize(ctx, page)
			done <- err
		}()

		time.Sleep(50 * time.Millisecond)
		cancel()

		err := <-done
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("output order is deterministic", func(t *testing.T) {
		tokens := []docmodel.Token{
			{Text: "b", BBox: box(0.5, 0.2, 0.1, 0.04), Confidence: 0.9, Page: 1},
			{Text: "a", BBox: box(0.1, 0.2, 0.1, 0.04), Confidence: 0.9, Page: 1},
			{Text: "c", BBox: box(0.1, 0.1, 0.1, 0.04), Confidence: 0.9, Page: 1},
		}
		engine := NewEngine(EngineConfig{Providers: []Provider{&MockProvider{Tokens: tokens}}})

		got, err := engine.Recognize(context.Background(), page)
		if err != nil {
			t.Fatalf("Recognize() error = %v", err)
		}
		want := []string{"c", "a", "b"}
		for i, w := range want {
			if got[i].Text != w {
				t.Errorf("position %d: expected %q, got %q", i, w, got[i].Text)
			}
		}
	})
}
