package normalize

import (
	"context"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/frame"
)

// MinCropSize is the smallest crop side, in pixels, worth aligning.
const MinCropSize = 10

// Aligner is the secondary face detector run on each crop. It returns the
// square region, in crop coordinates, that tightly frames the face, or
// ok=false when it finds no face.
type Aligner interface {
	Align(ctx context.Context, crop *image.RGBA) (region image.Rectangle, ok bool, err error)
}

type Normalizer struct {
	aligner Aligner
	scaler  xdraw.Scaler
}

func NewNormalizer(aligner Aligner) *Normalizer {
	return &Normalizer{
		aligner: aligner,
		scaler:  xdraw.BiLinear,
	}
}

// Normalize crops box out of f, re-detects the face inside the crop and
// resamples it to a 256x256 tensor. A nil face with a nil error means the
// candidate should be skipped.
func (n *Normalizer) Normalize(ctx context.Context, f *frame.Frame, box frame.FaceBox) (*Face, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	box = box.Clamp(f.Bounds())
	if box.Width < MinCropSize || box.Height < MinCropSize {
		return nil, nil
	}

	crop := f.Crop(box)

	region, ok, err := n.aligner.Align(ctx, crop)
	if err != nil {
		return nil, fmt.Errorf("align face: %w", err)
	}
	if !ok {
		return nil, nil
	}

	region = region.Intersect(crop.Bounds())
	if region.Empty() {
		return nil, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, Size, Size))
	n.scaler.Scale(dst, dst.Bounds(), crop, region, xdraw.Src, nil)

	return FromImage(dst)
}
