package docmodel

// BoundingBox is a rectangle in normalized page coordinates.
// All components lie in [0,1] relative to page width/height.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the box has positive area and lies within the page.
// A box with width or height ≤ 0 is treated as absent.
func (b BoundingBox) Valid() bool {
	return b.Width > 0 && b.Height > 0 &&
		b.X >= 0 && b.Y >= 0 &&
		b.X+b.Width <= 1 && b.Y+b.Height <= 1
}

// Union returns the smallest box containing both b and other.
func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	x1 := min(b.X, other.X)
	y1 := min(b.Y, other.Y)
	x2 := max(b.X+b.Width, other.X+other.Width)
	y2 := max(b.Y+b.Height, other.Y+other.Height)
	return BoundingBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Overlap returns the intersection-over-union of two boxes, 0 when disjoint.
func (b BoundingBox) Overlap(other BoundingBox) float64 {
	ix := max(b.X, other.X)
	iy := max(b.Y, other.Y)
	ix2 := min(b.X+b.Width, other.X+other.Width)
	iy2 := min(b.Y+b.Height, other.Y+other.Height)
	if ix2 <= ix || iy2 <= iy {
		return 0
	}
	inter := (ix2 - ix) * (iy2 - iy)
	union := b.Width*b.Height + other.Width*other.Height - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// CenterY returns the vertical center of the box.
func (b BoundingBox) CenterY() float64 {
	return b.Y + b.Height/2
}

// Token is a single OCR-recognized text unit. Immutable once produced.
type Token struct {
	Text       string      `json:"text"`
	BBox       BoundingBox `json:"bounding_box"`
	Confidence float64     `json:"confidence"` // OCR engine confidence in [0,1]
	Page       int         `json:"page"`       // 1-based page number
}

// LayoutBlock is a geometrically grouped run of tokens approximating one
// visual line. The box is the union of member token boxes. Blocks are
// produced in top-to-bottom, left-to-right reading order.
type LayoutBlock struct {
	Tokens []Token     `json:"tokens"`
	Text   string      `json:"text"` // member texts joined with single spaces
	BBox   BoundingBox `json:"bounding_box"`
	Page   int         `json:"page"`
	Order  int         `json:"order"` // reading-order index, 0-based
}

// MeanTokenConfidence averages OCR confidence over a token span.
// Returns 0 for an empty span.
func MeanTokenConfidence(tokens []Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tokens {
		sum += t.Confidence
	}
	return sum / float64(len(tokens))
}
