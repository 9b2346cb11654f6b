// Package layout groups OCR tokens into visual lines and blocks.
//
// The analyzer is purely geometric: tokens whose boxes are vertically
// aligned within a tolerance proportional to the median token height form a
// line, and a line splits into blocks where the horizontal gap exceeds a
// tolerance proportional to the median character width. Output order is
// top-to-bottom, left-to-right, and deterministic for identical input.
package layout

import (
	"sort"
	"strings"

	"github.com/gleanhq/glean/internal/docmodel"
)

const (
	// DefaultLineTolerance is the fraction of median token height within
	// which two token centers are considered to sit on the same line.
	DefaultLineTolerance = 0.6

	// DefaultGapTolerance is the multiple of median character width beyond
	// which a horizontal gap splits a line into separate blocks.
	DefaultGapTolerance = 2.5
)

// Config tunes the grouping geometry. Zero values select the defaults;
// tuning is expected per OCR-backend quality.
type Config struct {
	LineTolerance float64 // × median token height
	GapTolerance  float64 // × median character width
}

// Analyzer groups tokens into layout blocks.
type Analyzer struct {
	lineTol float64
	gapTol  float64
}

// New creates an analyzer with the given config.
func New(cfg Config) *Analyzer {
	lineTol := cfg.LineTolerance
	if lineTol <= 0 {
		lineTol = DefaultLineTolerance
	}
	gapTol := cfg.GapTolerance
	if gapTol <= 0 {
		gapTol = DefaultGapTolerance
	}
	return &Analyzer{lineTol: lineTol, gapTol: gapTol}
}

// Group clusters tokens into blocks in reading order. An empty token list
// yields an empty block list; there are no error conditions.
func (a *Analyzer) Group(tokens []docmodel.Token) []docmodel.LayoutBlock {
	if len(tokens) == 0 {
		return nil
	}

	sorted := make([]docmodel.Token, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Page != sorted[j].Page {
			return sorted[i].Page < sorted[j].Page
		}
		if sorted[i].BBox.Y != sorted[j].BBox.Y {
			return sorted[i].BBox.Y < sorted[j].BBox.Y
		}
		return sorted[i].BBox.X < sorted[j].BBox.X
	})

	lineTol := a.lineTol * medianHeight(sorted)
	gapTol := a.gapTol * medianCharWidth(sorted)

	var blocks []docmodel.LayoutBlock
	for _, line := range groupLines(sorted, lineTol) {
		blocks = append(blocks, splitLine(line, gapTol)...)
	}

	for i := range blocks {
		blocks[i].Order = i
	}
	return blocks
}

// groupLines clusters vertically aligned tokens. Tokens arrive sorted by
// (page, y, x); a token joins the current line when its vertical center is
// within tol of the line's running center on the same page.
func groupLines(tokens []docmodel.Token, tol float64) [][]docmodel.Token {
	var lines [][]docmodel.Token
	var current []docmodel.Token
	var centerSum float64

	flush := func() {
		if len(current) > 0 {
			lines = append(lines, current)
			current = nil
			centerSum = 0
		}
	}

	for _, t := range tokens {
		if len(current) > 0 {
			samePage := current[0].Page == t.Page
			center := centerSum / float64(len(current))
			if !samePage || abs(t.BBox.CenterY()-center) > tol {
				flush()
			}
		}
		current = append(current, t)
		centerSum += t.BBox.CenterY()
	}
	flush()
	return lines
}

// splitLine orders a line left to right and breaks it into blocks at gaps
// wider than tol.
func splitLine(line []docmodel.Token, tol float64) []docmodel.LayoutBlock {
	sort.SliceStable(line, func(i, j int) bool {
		return line[i].BBox.X < line[j].BBox.X
	})

	var blocks []docmodel.LayoutBlock
	var run []docmodel.Token

	flush := func() {
		if len(run) > 0 {
			blocks = append(blocks, makeBlock(run))
			run = nil
		}
	}

	for _, t := range line {
		if len(run) > 0 {
			prev := run[len(run)-1].BBox
			gap := t.BBox.X - (prev.X + prev.Width)
			if gap > tol {
				flush()
			}
		}
		run = append(run, t)
	}
	flush()
	return blocks
}

func makeBlock(tokens []docmodel.Token) docmodel.LayoutBlock {
	box := tokens[0].BBox
	texts := make([]string, len(tokens))
	for i, t := range tokens {
		box = box.Union(t.BBox)
		texts[i] = t.Text
	}
	return docmodel.LayoutBlock{
		Tokens: tokens,
		Text:   strings.Join(texts, " "),
		BBox:   box,
		Page:   tokens[0].Page,
	}
}

func medianHeight(tokens []docmodel.Token) float64 {
	heights := make([]float64, len(tokens))
	for i, t := range tokens {
		heights[i] = t.BBox.Height
	}
	return median(heights)
}

// medianCharWidth estimates character width as token width divided by rune
// count, taken over all tokens.
func medianCharWidth(tokens []docmodel.Token) float64 {
	widths := make([]float64, 0, len(tokens))
	for _, t := range tokens {
		n := len([]rune(t.Text))
		if n == 0 {
			continue
		}
		widths = append(widths, t.BBox.Width/float64(n))
	}
	if len(widths) == 0 {
		return 0.01
	}
	return median(widths)
}

func median(vals []float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
