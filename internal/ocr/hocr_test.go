package ocr

import (
	"math"
	"testing"
)

const sampleHOCR = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" lang="en">
 <head><title></title></head>
 <body>
  <div class='ocr_page' id='page_1' title='image "invoice.png"; bbox 0 0 1000 500; ppageno 0'>
   <div class='ocr_carea' id='block_1_1' title="bbox 100 50 400 90">
    <p class='ocr_par' id='par_1_1' title="bbox 100 50 400 90">
     <span class='ocr_line' id='line_1_1' title="bbox 100 50 400 90; baseline 0 -5">
      <span class='ocrx_word' id='word_1_1' title='bbox 100 50 220 90; x_wconf 96'>Acme</span>
      <span class='ocrx_word' id='word_1_2' title='bbox 240 50 400 90; x_wconf 91'>Corp</span>
     </span>
    </p>
   </div>
   <span class='ocrx_word' id='word_1_3' title='bbox 500 400 620 440; x_wconf 88'>150.00</span>
   <span class='ocrx_word' id='word_1_4' title='bbox 10 10 5 5; x_wconf 90'>bad-box</span>
   <span class='ocrx_word' id='word_1_5' title='bbox 600 10 700 40; x_wconf 80'>   </span>
  </div>
 </body>
</html>`

func TestParseHOCR(t *testing.T) {
	t.Run("extracts words with normalized boxes", func(t *testing.T) {
		pages, err := parseHOCR([]byte(sampleHOCR))
		if err != nil {
			t.Fatalf("parseHOCR() error = %v", err)
		}
		if len(pages) != 1 {
			t.Fatalf("expected 1 page, got %d", len(pages))
		}

		tokens, err := tokensFromHOCR(pages, 1, 0, 0)
		if err != nil {
			t.Fatalf("tokensFromHOCR() error = %v", err)
		}
		// bad-box and whitespace-only words are dropped
		if len(tokens) != 3 {
			t.Fatalf("expected 3 tokens, got %d", len(tokens))
		}

		first := tokens[0]
		if first.Text != "Acme" {
			t.Errorf("expected first token Acme, got %q", first.Text)
		}
		if math.Abs(first.BBox.X-0.1) > 1e-9 {
			t.Errorf("expected x=0.1, got %f", first.BBox.X)
		}
		if math.Abs(first.BBox.Y-0.1) > 1e-9 {
			t.Errorf("expected y=0.1, got %f", first.BBox.Y)
		}
		if math.Abs(first.BBox.Width-0.12) > 1e-9 {
			t.Errorf("expected width=0.12, got %f", first.BBox.Width)
		}
		if math.Abs(first.Confidence-0.96) > 1e-9 {
			t.Errorf("expected confidence 0.96, got %f", first.Confidence)
		}
		if first.Page != 1 {
			t.Errorf("expected page 1, got %d", first.Page)
		}
	})

	t.Run("all boxes normalized into unit range", func(t *testing.T) {
		pages, err := parseHOCR([]byte(sampleHOCR))
		if err != nil {
			t.Fatalf("parseHOCR() error = %v", err)
		}
		tokens, err := tokensFromHOCR(pages, 1, 0, 0)
		if err != nil {
			t.Fatalf("tokensFromHOCR() error = %v", err)
		}
		for _, tok := range tokens {
			if !tok.BBox.Valid() {
				t.Errorf("token %q has invalid box %+v", tok.Text, tok.BBox)
			}
			if tok.Confidence < 0 || tok.Confidence > 1 {
				t.Errorf("token %q confidence out of range: %f", tok.Text, tok.Confidence)
			}
		}
	})

	t.Run("fallback dimensions used when page bbox missing", func(t *testing.T) {
		raw := `<html><body>
  <div class='ocr_page' id='page_1' title='image "x.png"'>
   <span class='ocrx_word' title='bbox 100 100 200 150; x_wconf 90'>word</span>
  </div></body></html>`
		pages, err := parseHOCR([]byte(raw))
		if err != nil {
			t.Fatalf("parseHOCR() error = %v", err)
		}

		if _, err := tokensFromHOCR(pages, 1, 0, 0); err == nil {
			t.Error("expected error without dimensions, got nil")
		}

		tokens, err := tokensFromHOCR(pages, 1, 1000, 1000)
		if err != nil {
			t.Fatalf("tokensFromHOCR() with fallback error = %v", err)
		}
		if len(tokens) != 1 {
			t.Fatalf("expected 1 token, got %d", len(tokens))
		}
		if math.Abs(tokens[0].BBox.X-0.1) > 1e-9 {
			t.Errorf("expected x=0.1, got %f", tokens[0].BBox.X)
		}
	})

	t.Run("rejects documents without pages", func(t *testing.T) {
		if _, err := parseHOCR([]byte("<html><body><p>plain</p></body></html>")); err == nil {
			t.Error("expected error for hOCR without ocr_page, got nil")
		}
	})
}
