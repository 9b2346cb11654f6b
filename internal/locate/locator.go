// Package locate maps extracted field values back onto the layout graph to
// recover bounding boxes. The generative pass emits no coordinates, so
// location is recovered by approximate text matching: exact token-span
// match first, then token-subset match, then fuzzy match above a similarity
// threshold. A value that matches nothing gets no location; that is a
// degraded-precision outcome, never an error.
package locate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gleanhq/glean/internal/docmodel"
)

const (
	// DefaultMinSimilarity is the edit-distance ratio a fuzzy match must
	// reach to count.
	DefaultMinSimilarity = 0.7

	// DefaultSubsetMinWords is the minimum word count for token-subset
	// matching; shorter values are too ambiguous for a subset match.
	DefaultSubsetMinWords = 2

	// DefaultMaxSpanSlack is how many extra tokens a fuzzy-matched span may
	// carry beyond the value's own word count.
	DefaultMaxSpanSlack = 2
)

// matchQuality ranks how a location was recovered. Higher is better.
type matchQuality int

const (
	matchNone matchQuality = iota
	matchFuzzy
	matchSubset
	matchExact
)

// Config exposes the matching thresholds. Tuning is expected per
// OCR-backend quality.
type Config struct {
	MinSimilarity  float64
	SubsetMinWords int
	MaxSpanSlack   int
}

// Located pairs a candidate with its recovered location, if any.
type Located struct {
	Candidate docmodel.FieldCandidate
	Location  *docmodel.FieldLocation
	SpanText  string  // literal OCR text of the matched span
	SpanConf  float64 // mean OCR confidence over the matched tokens
	Order     int     // reading order of the matched block, -1 when absent
}

// Locator matches candidate values against layout blocks.
type Locator struct {
	minSimilarity  float64
	subsetMinWords int
	maxSpanSlack   int
}

// New creates a locator.
func New(cfg Config) *Locator {
	minSim := cfg.MinSimilarity
	if minSim <= 0 {
		minSim = DefaultMinSimilarity
	}
	subsetMin := cfg.SubsetMinWords
	if subsetMin <= 0 {
		subsetMin = DefaultSubsetMinWords
	}
	slack := cfg.MaxSpanSlack
	if slack <= 0 {
		slack = DefaultMaxSpanSlack
	}
	return &Locator{minSimilarity: minSim, subsetMinWords: subsetMin, maxSpanSlack: slack}
}

// candidateMatch is one possible location for a candidate.
type candidateMatch struct {
	quality  matchQuality
	score    float64
	tokens   []docmodel.Token
	page     int
	order    int
	spanText string
}

// Locate recovers a location for each candidate. Candidates are processed
// in input order; when a value matches equally well in several places, the
// match closest in reading order to fields already located from the same
// pass wins, since fields extracted together tend to be co-located.
func (l *Locator) Locate(candidates []docmodel.FieldCandidate, blocks []docmodel.LayoutBlock) []Located {
	results := make([]Located, 0, len(candidates))
	// Mean located block order per pass sequence, updated as fields land.
	passOrders := make(map[int][]int)

	for _, c := range candidates {
		located := Located{Candidate: c, Order: -1}

		matches := l.findMatches(stringify(c.Value), blocks)
		if len(matches) > 0 {
			best := pickBest(matches, passOrders[c.PassSeq])
			box := unionBox(best.tokens)
			located.Location = &docmodel.FieldLocation{BBox: box, Page: best.page}
			located.SpanText = best.spanText
			located.SpanConf = docmodel.MeanTokenConfidence(best.tokens)
			located.Order = best.order
			passOrders[c.PassSeq] = append(passOrders[c.PassSeq], best.order)
		}

		results = append(results, located)
	}
	return results
}

// findMatches returns every acceptable match for a value, best quality
// kept per block.
func (l *Locator) findMatches(value string, blocks []docmodel.LayoutBlock) []candidateMatch {
	needle := fold(value)
	if needle == "" {
		return nil
	}
	needleWords := strings.Fields(needle)

	var matches []candidateMatch
	for _, block := range blocks {
		if m, ok := l.matchBlock(needle, needleWords, block); ok {
			matches = append(matches, m)
		}
	}

	if len(matches) == 0 {
		return nil
	}

	// Keep only the best quality tier present.
	best := matchNone
	for _, m := range matches {
		if m.quality > best {
			best = m.quality
		}
	}
	filtered := matches[:0]
	for _, m := range matches {
		if m.quality == best {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// matchBlock tries the three matching strategies against one block.
func (l *Locator) matchBlock(needle string, needleWords []string, block docmodel.LayoutBlock) (candidateMatch, bool) {
	if span, ok := l.exactSpan(needleWords, block); ok {
		return candidateMatch{
			quality:  matchExact,
			score:    1,
			tokens:   span,
			page:     block.Page,
			order:    block.Order,
			spanText: spanText(span),
		}, true
	}

	if len(needleWords) >= l.subsetMinWords {
		if span, ok := l.subsetSpan(needleWords, block); ok {
			return candidateMatch{
				quality:  matchSubset,
				score:    float64(len(span)) / float64(len(block.Tokens)),
				tokens:   span,
				page:     block.Page,
				order:    block.Order,
				spanText: spanText(span),
			}, true
		}
	}

	if span, score, ok := l.fuzzySpan(needle, needleWords, block); ok {
		return candidateMatch{
			quality:  matchFuzzy,
			score:    score,
			tokens:   span,
			page:     block.Page,
			order:    block.Order,
			spanText: spanText(span),
		}, true
	}

	return candidateMatch{}, false
}

// exactSpan finds a consecutive token window whose folded text equals the
// needle.
func (l *Locator) exactSpan(needleWords []string, block docmodel.LayoutBlock) ([]docmodel.Token, bool) {
	folded := foldedTokens(block)
	n := len(needleWords)
	if n == 0 || n > len(folded) {
		return nil, false
	}
	for start := 0; start+n <= len(folded); start++ {
		if equalWords(folded[start:start+n], needleWords) {
			return block.Tokens[start : start+n], true
		}
	}
	return nil, false
}

// subsetSpan matches when every needle word appears among the block's
// tokens, in any order. The span covers from the first to the last hit.
func (l *Locator) subsetSpan(needleWords []string, block docmodel.LayoutBlock) ([]docmodel.Token, bool) {
	folded := foldedTokens(block)
	first, last := len(folded), -1
	remaining := make(map[string]int, len(needleWords))
	for _, w := range needleWords {
		remaining[w]++
	}

	for i, w := range folded {
		if remaining[w] > 0 {
			remaining[w]--
			if i < first {
				first = i
			}
			if i > last {
				last = i
			}
		}
	}
	for _, count := range remaining {
		if count > 0 {
			return nil, false
		}
	}
	if last-first+1 > len(needleWords)+l.maxSpanSlack {
		return nil, false
	}
	return block.Tokens[first : last+1], true
}

// fuzzySpan slides windows of near-needle length over the block and keeps
// the most similar one above the threshold.
func (l *Locator) fuzzySpan(needle string, needleWords []string, block docmodel.LayoutBlock) ([]docmodel.Token, float64, bool) {
	folded := foldedTokens(block)
	if len(folded) == 0 {
		return nil, 0, false
	}

	bestScore := 0.0
	var bestSpan []docmodel.Token

	maxLen := len(needleWords) + l.maxSpanSlack
	for width := 1; width <= maxLen && width <= len(folded); width++ {
		for start := 0; start+width <= len(folded); start++ {
			window := strings.Join(folded[start:start+width], " ")
			score := similarity(needle, window)
			if score > bestScore {
				bestScore = score
				bestSpan = block.Tokens[start : start+width]
			}
		}
	}

	if bestScore >= l.minSimilarity {
		return bestSpan, bestScore, true
	}
	return nil, 0, false
}

// pickBest resolves equally good matches by reading-order proximity to the
// fields already located for the same pass.
func pickBest(matches []candidateMatch, locatedOrders []int) candidateMatch {
	if len(matches) == 1 {
		return matches[0]
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		if len(locatedOrders) > 0 {
			di := orderDistance(matches[i].order, locatedOrders)
			dj := orderDistance(matches[j].order, locatedOrders)
			if di != dj {
				return di < dj
			}
		}
		return matches[i].order < matches[j].order
	})
	return matches[0]
}

// orderDistance is the distance from a block order to the mean order of
// already-located fields.
func orderDistance(order int, locatedOrders []int) float64 {
	var sum float64
	for _, o := range locatedOrders {
		sum += float64(o)
	}
	mean := sum / float64(len(locatedOrders))
	d := float64(order) - mean
	if d < 0 {
		d = -d
	}
	return d
}

func foldedTokens(block docmodel.LayoutBlock) []string {
	folded := make([]string, len(block.Tokens))
	for i, t := range block.Tokens {
		folded[i] = fold(t.Text)
	}
	return folded
}

func equalWords(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func unionBox(tokens []docmodel.Token) docmodel.BoundingBox {
	box := tokens[0].BBox
	for _, t := range tokens[1:] {
		box = box.Union(t.BBox)
	}
	return box
}

func spanText(tokens []docmodel.Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}

// stringify flattens a candidate value for matching. Lists and maps join
// their leaf values with spaces.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(v))
		for _, k := range keys {
			if s := stringify(v[k]); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprintf("%v", v)
	}
}
