package frame

import "image"

// FaceBox is an axis-aligned face region in frame pixel coordinates.
type FaceBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func BoxFromRect(r image.Rectangle) FaceBox {
	r = r.Canon()
	return FaceBox{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

func (b FaceBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

func (b FaceBox) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

func (b FaceBox) Empty() bool {
	return b.Area() == 0
}

// Clamp intersects the box with bounds so that 0 <= x, y and the box never
// extends past the right or bottom edge.
func (b FaceBox) Clamp(bounds image.Rectangle) FaceBox {
	r := b.Rect().Canon().Intersect(bounds)
	if r.Empty() {
		return FaceBox{X: clampInt(b.X, bounds.Min.X, bounds.Max.X), Y: clampInt(b.Y, bounds.Min.Y, bounds.Max.Y)}
	}
	return BoxFromRect(r)
}

// IoU is the intersection-over-union of two boxes.
func (b FaceBox) IoU(o FaceBox) float64 {
	inter := b.Rect().Intersect(o.Rect())
	if inter.Empty() {
		return 0
	}
	i := inter.Dx() * inter.Dy()
	u := b.Area() + o.Area() - i
	if u <= 0 {
		return 0
	}
	return float64(i) / float64(u)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
