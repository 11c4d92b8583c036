package provider

import (
	"context"
	"errors"
	"image"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/frame"
)

var ErrProviderUnavailable = errors.New("face provider unavailable")

// FaceLocator finds candidate face regions in a frame. The returned boxes
// are clamped to the frame and their order is stable for a given detector
// and input. An empty slice is a valid answer.
type FaceLocator interface {
	Locate(ctx context.Context, f *frame.Frame) ([]frame.FaceBox, error)
	Name() string
}

// SquareAround returns the largest square centered on r that fits in
// bounds, the crop shape the aligners hand to the normalizer.
func SquareAround(r, bounds image.Rectangle) image.Rectangle {
	side := max(r.Dx(), r.Dy())
	cx := r.Min.X + r.Dx()/2
	cy := r.Min.Y + r.Dy()/2

	side = min(side, bounds.Dx(), bounds.Dy())
	x0 := min(max(cx-side/2, bounds.Min.X), bounds.Max.X-side)
	y0 := min(max(cy-side/2, bounds.Min.Y), bounds.Max.Y-side)

	return image.Rect(x0, y0, x0+side, y0+side)
}
