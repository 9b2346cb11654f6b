package layout

import (
	"reflect"
	"testing"

	"github.com/gleanhq/glean/internal/docmodel"
)

func tok(text string, x, y, w, h float64, page int) docmodel.Token {
	return docmodel.Token{
		Text:       text,
		BBox:       docmodel.BoundingBox{X: x, Y: y, Width: w, Height: h},
		Confidence: 0.9,
		Page:       page,
	}
}

func TestGroup(t *testing.T) {
	a := New(Config{})

	t.Run("empty input yields empty output", func(t *testing.T) {
		if blocks := a.Group(nil); len(blocks) != 0 {
			t.Errorf("expected no blocks, got %d", len(blocks))
		}
	})

	t.Run("joins adjacent tokens on one line", func(t *testing.T) {
		blocks := a.Group([]docmodel.Token{
			tok("Acme", 0.10, 0.10, 0.08, 0.02, 1),
			tok("Corp", 0.19, 0.10, 0.08, 0.02, 1),
		})
		if len(blocks) != 1 {
			t.Fatalf("expected 1 block, got %d", len(blocks))
		}
		if blocks[0].Text != "Acme Corp" {
			t.Errorf("expected text %q, got %q", "Acme Corp", blocks[0].Text)
		}
		box := blocks[0].BBox
		if box.X != 0.10 || box.Width != 0.17 {
			t.Errorf("unexpected union box: %+v", box)
		}
	})

	t.Run("splits line at wide horizontal gap", func(t *testing.T) {
		blocks := a.Group([]docmodel.Token{
			tok("Invoice", 0.10, 0.10, 0.10, 0.02, 1),
			tok("Total", 0.70, 0.10, 0.08, 0.02, 1),
		})
		if len(blocks) != 2 {
			t.Fatalf("expected 2 blocks, got %d", len(blocks))
		}
	})

	t.Run("separates lines vertically", func(t *testing.T) {
		blocks := a.Group([]docmodel.Token{
			tok("first", 0.10, 0.10, 0.08, 0.02, 1),
			tok("second", 0.10, 0.20, 0.08, 0.02, 1),
		})
		if len(blocks) != 2 {
			t.Fatalf("expected 2 blocks, got %d", len(blocks))
		}
		if blocks[0].Text != "first" || blocks[1].Text != "second" {
			t.Errorf("blocks out of reading order: %q, %q", blocks[0].Text, blocks[1].Text)
		}
	})

	t.Run("orders blocks top-to-bottom left-to-right", func(t *testing.T) {
		blocks := a.Group([]docmodel.Token{
			tok("bottom", 0.10, 0.80, 0.10, 0.02, 1),
			tok("right", 0.70, 0.10, 0.08, 0.02, 1),
			tok("left", 0.10, 0.10, 0.08, 0.02, 1),
		})
		var texts []string
		for _, b := range blocks {
			texts = append(texts, b.Text)
		}
		want := []string{"left", "right", "bottom"}
		if !reflect.DeepEqual(texts, want) {
			t.Errorf("expected order %v, got %v", want, texts)
		}
		for i, b := range blocks {
			if b.Order != i {
				t.Errorf("block %d has order %d", i, b.Order)
			}
		}
	})

	t.Run("keeps pages separate", func(t *testing.T) {
		blocks := a.Group([]docmodel.Token{
			tok("one", 0.10, 0.10, 0.06, 0.02, 1),
			tok("two", 0.10, 0.10, 0.06, 0.02, 2),
		})
		if len(blocks) != 2 {
			t.Fatalf("expected 2 blocks, got %d", len(blocks))
		}
		if blocks[0].Page != 1 || blocks[1].Page != 2 {
			t.Errorf("unexpected pages: %d, %d", blocks[0].Page, blocks[1].Page)
		}
	})

	t.Run("deterministic for identical input", func(t *testing.T) {
		input := []docmodel.Token{
			tok("a", 0.10, 0.10, 0.02, 0.02, 1),
			tok("b", 0.13, 0.105, 0.02, 0.02, 1),
			tok("c", 0.10, 0.15, 0.02, 0.02, 1),
			tok("d", 0.60, 0.15, 0.02, 0.02, 1),
		}
		first := a.Group(input)
		second := a.Group(input)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("grouping is not deterministic")
		}
	})

	t.Run("does not mutate input order", func(t *testing.T) {
		input := []docmodel.Token{
			tok("later", 0.10, 0.50, 0.06, 0.02, 1),
			tok("earlier", 0.10, 0.10, 0.06, 0.02, 1),
		}
		a.Group(input)
		if input[0].Text != "later" {
			t.Errorf("input slice was reordered")
		}
	})
}
