package rekognition

import (
	"context"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/frame"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/provider"
)

// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
const maxImageSize = 5 * 1024 * 1024

// Provider locates faces with the AWS Rekognition DetectFaces API
type Provider struct {
	client *Client
}

// Ensure Provider implements provider.FaceLocator interface at compile time
var _ provider.FaceLocator = (*Provider)(nil)

func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Name() string {
	return "rekognition"
}

// Locate implements provider.FaceLocator. Rekognition reports boxes as
// ratios of the image size; they are converted to pixels and clamped.
func (p *Provider) Locate(ctx context.Context, f *frame.Frame) ([]frame.FaceBox, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	image, err := rekognitionBytes(f)
	if err != nil {
		return nil, fmt.Errorf("locate faces: %w", err)
	}
	if len(image) > maxImageSize {
		return nil, fmt.Errorf("locate faces: %w: %d bytes, maximum %d", ErrInvalidImage, len(image), maxImageSize)
	}

	output, err := p.client.rekognition.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: image},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		return nil, fmt.Errorf("locate faces: %w", parseAPIError(err))
	}

	w, h := float64(f.Width()), float64(f.Height())
	boxes := make([]frame.FaceBox, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		if detail.BoundingBox == nil {
			continue
		}
		if detail.Confidence != nil && *detail.Confidence < p.client.config.MinConfidence {
			continue
		}

		bb := detail.BoundingBox
		box := frame.FaceBox{
			X:      int(math.Round(float64(deref(bb.Left)) * w)),
			Y:      int(math.Round(float64(deref(bb.Top)) * h)),
			Width:  int(math.Round(float64(deref(bb.Width)) * w)),
			Height: int(math.Round(float64(deref(bb.Height)) * h)),
		}.Clamp(f.Bounds())
		if box.Empty() {
			continue
		}
		boxes = append(boxes, box)
	}

	return boxes, nil
}

// rekognitionBytes returns JPEG or PNG bytes; other formats are re-encoded.
func rekognitionBytes(f *frame.Frame) ([]byte, error) {
	if f.Order == frame.OrderRGB && (f.Format == "jpeg" || f.Format == "png") && len(f.Source) > 0 {
		return f.Source, nil
	}
	return f.EncodeJPEG(frame.DefaultJPEGQuality)
}

func deref(v *float32) float32 {
	if v == nil {
		return 0
	}
	return *v
}
