package iface

// ElementKind tags a game UI element category.
type ElementKind string

const (
	KindAugment  ElementKind = "augment"
	KindChampion ElementKind = "champion"
	KindShop     ElementKind = "shop"
	KindGold     ElementKind = "gold"
)

// Kinds lists every supported element category.
var Kinds = []ElementKind{KindAugment, KindChampion, KindShop, KindGold}

// RetData is the uniform envelope for fallible engine calls. Data carries
// either a result payload or a human-readable failure reason.
type RetData struct {
	Success bool
	Data    any
}

// Frame is a single luminance snapshot of the stream video. Pix holds one
// byte per pixel, row-major, len == Width*Height. A Frame belongs to the
// detect call that consumes it and is never cached across ticks.
type Frame struct {
	Pix    []byte
	Width  int
	Height int
}

// Valid reports whether the buffer length matches the declared dimensions.
func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Pix) == f.Width*f.Height
}

// Rect is an axis-aligned rectangle in frame pixel space.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// SearchRegion is a fractional sub-rectangle of the frame searched for one
// element category. Fractions are in [0,1] relative to frame dimensions.
// Regions are fixed at configuration time and never mutated.
type SearchRegion struct {
	Kind      ElementKind
	XPct      float64
	YPct      float64
	WidthPct  float64
	HeightPct float64
}

// Pixels resolves the region against concrete frame dimensions, clamped to
// the frame bounds.
func (r SearchRegion) Pixels(width, height int) Rect {
	x := int(r.XPct * float64(width))
	y := int(r.YPct * float64(height))
	w := int(r.WidthPct * float64(width))
	h := int(r.HeightPct * float64(height))
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x+w > width {
		w = width - x
	}
	if y+h > height {
		h = height - y
	}
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return Rect{X: x, Y: y, Width: w, Height: h}
}

// DetectParams bounds the sliding window and sets the statistic threshold
// for one region scan. Candidates are emitted at the fixed MinWidth x
// MinHeight window size.
type DetectParams struct {
	MinWidth  int
	MaxWidth  int
	MinHeight int
	MaxHeight int
	Threshold float64
}

// Candidate is a single detection hit: a window rectangle, its category and
// a confidence in [0,1] derived from the window statistic. Confidence is
// monotonic in the statistic but not calibrated against ground truth.
type Candidate struct {
	Kind       ElementKind `json:"kind"`
	Rect       Rect        `json:"rect"`
	Confidence float64     `json:"confidence"`
}

// Analyzer is the single frame-analysis capability consumed by the overlay
// pipeline. Exactly one implementation exists (the heuristic engine).
type Analyzer interface {
	Detect(frame Frame) RetData
}
