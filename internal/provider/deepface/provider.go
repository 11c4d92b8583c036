package deepface

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/frame"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/provider"
)

// Provider locates and aligns faces through a DeepFace API server
type Provider struct {
	client *Client
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
	}
}

func (p *Provider) Name() string {
	return "deepface"
}

// Locate implements provider.FaceLocator
func (p *Provider) Locate(ctx context.Context, f *frame.Frame) ([]frame.FaceBox, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	encoded, err := f.Encoded()
	if err != nil {
		return nil, fmt.Errorf("locate faces: %w", err)
	}

	resp, err := p.client.Represent(ctx, encoded)
	if err != nil {
		return nil, fmt.Errorf("locate faces: %w", err)
	}

	boxes := make([]frame.FaceBox, 0, len(resp.Results))
	for _, result := range resp.Results {
		box := areaBox(result.FacialArea).Clamp(f.Bounds())
		if box.Empty() {
			continue
		}
		boxes = append(boxes, box)
	}

	return boxes, nil
}

// Align implements normalize.Aligner by re-running detection on the crop and
// squaring the most confident face, centered between the eyes when the
// detector reports them.
func (p *Provider) Align(ctx context.Context, crop *image.RGBA) (image.Rectangle, bool, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return image.Rectangle{}, false, fmt.Errorf("encode crop: %w", err)
	}

	resp, err := p.client.Represent(ctx, buf.Bytes())
	if err != nil {
		return image.Rectangle{}, false, fmt.Errorf("align face: %w", err)
	}
	if len(resp.Results) == 0 {
		return image.Rectangle{}, false, nil
	}

	best := resp.Results[0]
	for _, r := range resp.Results[1:] {
		if r.FaceConfidence > best.FaceConfidence {
			best = r
		}
	}

	region := areaBox(best.FacialArea).Rect().Intersect(crop.Bounds())
	if region.Empty() {
		return image.Rectangle{}, false, nil
	}

	area := best.FacialArea
	if len(area.LeftEye) == 2 && len(area.RightEye) == 2 {
		cx := (area.LeftEye[0] + area.RightEye[0]) / 2
		region = region.Add(image.Pt(cx-(region.Min.X+region.Dx()/2), 0))
	}

	return provider.SquareAround(region, crop.Bounds()), true, nil
}

func areaBox(a FacialArea) frame.FaceBox {
	return frame.FaceBox{X: a.X, Y: a.Y, Width: a.W, Height: a.H}
}
