package ocr

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/gleanhq/glean/internal/docmodel"
)

// hocrWord is one ocrx_word element with pixel-space geometry.
type hocrWord struct {
	text       string
	x1, y1     float64
	x2, y2     float64
	confidence float64 // x_wconf, 0-100 scale
}

// hocrPage is one ocr_page element and its words.
type hocrPage struct {
	width  float64
	height float64
	words  []hocrWord
}

// parseHOCR extracts per-word geometry from an hOCR document. Tesseract and
// the remote sidecar both emit this format, so one parser serves both
// providers.
func parseHOCR(data []byte) ([]hocrPage, error) {
	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse hOCR: %w", err)
	}

	var pages []hocrPage
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "ocr_page") {
			pages = append(pages, parseHOCRPage(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(pages) == 0 {
		return nil, fmt.Errorf("no ocr_page elements in hOCR data")
	}
	return pages, nil
}

// parseHOCRPage reads the page bbox and collects all ocrx_word descendants.
func parseHOCRPage(pageNode *html.Node) hocrPage {
	var page hocrPage

	props := parseTitleProps(attr(pageNode, "title"))
	if bbox, ok := props["bbox"]; ok && len(bbox) >= 4 {
		x2, _ := strconv.ParseFloat(bbox[2], 64)
		y2, _ := strconv.ParseFloat(bbox[3], 64)
		page.width = x2
		page.height = y2
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "ocrx_word") {
			if w, ok := parseHOCRWord(n); ok {
				page.words = append(page.words, w)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(pageNode)

	return page
}

// parseHOCRWord reads one ocrx_word element. Words with empty text or a
// missing bbox are skipped.
func parseHOCRWord(n *html.Node) (hocrWord, bool) {
	var w hocrWord

	w.text = strings.TrimSpace(nodeText(n))
	if w.text == "" {
		return w, false
	}

	props := parseTitleProps(attr(n, "title"))
	bbox, ok := props["bbox"]
	if !ok || len(bbox) < 4 {
		return w, false
	}
	w.x1, _ = strconv.ParseFloat(bbox[0], 64)
	w.y1, _ = strconv.ParseFloat(bbox[1], 64)
	w.x2, _ = strconv.ParseFloat(bbox[2], 64)
	w.y2, _ = strconv.ParseFloat(bbox[3], 64)
	if w.x2 <= w.x1 || w.y2 <= w.y1 {
		return w, false
	}

	if conf, ok := props["x_wconf"]; ok && len(conf) > 0 {
		w.confidence, _ = strconv.ParseFloat(conf[0], 64)
	}

	return w, true
}

// tokensFromHOCR converts parsed hOCR pages into normalized tokens for the
// given document page number. Page dimensions come from the ocr_page bbox;
// fallbackW/fallbackH are used when the page carries no dimensions.
func tokensFromHOCR(pages []hocrPage, pageNum, fallbackW, fallbackH int) ([]docmodel.Token, error) {
	var tokens []docmodel.Token
	for _, p := range pages {
		w, h := p.width, p.height
		if w <= 0 || h <= 0 {
			w, h = float64(fallbackW), float64(fallbackH)
		}
		if w <= 0 || h <= 0 {
			return nil, fmt.Errorf("hOCR page has no dimensions and none were supplied")
		}
		for _, word := range p.words {
			tokens = append(tokens, docmodel.Token{
				Text: word.text,
				BBox: docmodel.BoundingBox{
					X:      clamp01(word.x1 / w),
					Y:      clamp01(word.y1 / h),
					Width:  clamp01((word.x2 - word.x1) / w),
					Height: clamp01((word.y2 - word.y1) / h),
				},
				Confidence: clamp01(word.confidence / 100.0),
				Page:       pageNum,
			})
		}
	}
	return tokens, nil
}

// parseTitleProps splits an hOCR title attribute into keyed value lists.
// Example: "bbox 100 200 300 400; x_wconf 95" → {bbox: [100 200 300 400], x_wconf: [95]}.
func parseTitleProps(title string) map[string][]string {
	props := make(map[string][]string)
	for _, part := range strings.Split(title, ";") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) > 0 {
			props[fields[0]] = fields[1:]
		}
	}
	return props
}

// hasClass reports whether the node's class attribute contains name.
func hasClass(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == name {
					return true
				}
			}
		}
	}
	return false
}

// attr returns the value of the named attribute, or "".
func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// nodeText concatenates all text content under a node.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// clamp01 bounds v into [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
