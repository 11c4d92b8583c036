package mock

import (
	"context"
	"image"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/frame"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/provider"
)

// minContrast is the luma range below which a region is treated as blank.
const minContrast = 16

// Provider is a deterministic locator and aligner for tests and local
// development. A frame with any visible contrast holds exactly one face
// covering its central 80%; a flat frame holds none.
type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string {
	return "mock"
}

func (p *Provider) Locate(ctx context.Context, f *frame.Frame) ([]frame.FaceBox, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := f.RGB()
	if isFlat(img) {
		return []frame.FaceBox{}, nil
	}

	w, h := f.Width(), f.Height()
	box := frame.FaceBox{X: w / 10, Y: h / 10, Width: w * 8 / 10, Height: h * 8 / 10}
	return []frame.FaceBox{box.Clamp(f.Bounds())}, nil
}

func (p *Provider) Align(ctx context.Context, crop *image.RGBA) (image.Rectangle, bool, error) {
	if err := ctx.Err(); err != nil {
		return image.Rectangle{}, false, err
	}
	if isFlat(crop) {
		return image.Rectangle{}, false, nil
	}
	return provider.SquareAround(crop.Bounds(), crop.Bounds()), true, nil
}

func isFlat(img *image.RGBA) bool {
	b := img.Bounds()
	lo, hi := 255, 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			l := (299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000
			lo = min(lo, l)
			hi = max(hi, l)
			if hi-lo >= minContrast {
				return false
			}
		}
	}
	return true
}
