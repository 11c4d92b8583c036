package pigo

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/frame"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/provider"
)

var ErrCascade = errors.New("pigo cascade unusable")

// Config controls the cascade scan. Sizes are in pixels.
type Config struct {
	FaceCascadePath   string
	PuplocCascadePath string
	MinSize           int
	MaxSize           int
	ShiftFactor       float64
	ScaleFactor       float64
	IoUThreshold      float64
	QualityThreshold  float32
}

func DefaultConfig() Config {
	return Config{
		MinSize:          20,
		MaxSize:          2000,
		ShiftFactor:      0.1,
		ScaleFactor:      1.1,
		IoUThreshold:     0.2,
		QualityThreshold: 5.0,
	}
}

// Detector runs the pigo face cascade. It serves both as the primary
// locator on whole frames and as the aligner on individual crops, where the
// optional pupil cascade re-centers the crop between the eyes. Unpacked
// cascades are read-only and safe for concurrent use.
type Detector struct {
	face   *pigo.Pigo
	puploc *pigo.PuplocCascade
	config Config
}

func New(config Config) (*Detector, error) {
	raw, err := os.ReadFile(config.FaceCascadePath)
	if err != nil {
		return nil, fmt.Errorf("%w: read face cascade: %v", ErrCascade, err)
	}

	face, err := pigo.NewPigo().Unpack(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack face cascade: %v", ErrCascade, err)
	}

	d := &Detector{face: face, config: config}

	if config.PuplocCascadePath != "" {
		raw, err := os.ReadFile(config.PuplocCascadePath)
		if err != nil {
			return nil, fmt.Errorf("%w: read puploc cascade: %v", ErrCascade, err)
		}
		d.puploc, err = pigo.NewPuplocCascade().UnpackCascade(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: unpack puploc cascade: %v", ErrCascade, err)
		}
	}

	return d, nil
}

func (d *Detector) Name() string {
	return "pigo"
}

// Locate implements provider.FaceLocator.
func (d *Detector) Locate(ctx context.Context, f *frame.Frame) ([]frame.FaceBox, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dets, _ := d.detect(f.RGB(), d.config.MinSize)

	boxes := make([]frame.FaceBox, 0, len(dets))
	for _, det := range dets {
		box := detectionBox(det).Clamp(f.Bounds())
		if box.Empty() {
			continue
		}
		boxes = append(boxes, box)
	}

	return boxes, nil
}

// Align implements normalize.Aligner. It keeps the strongest detection in
// the crop and returns a square around it.
func (d *Detector) Align(ctx context.Context, crop *image.RGBA) (image.Rectangle, bool, error) {
	if err := ctx.Err(); err != nil {
		return image.Rectangle{}, false, err
	}

	b := crop.Bounds()
	minSize := max(d.config.MinSize/2, min(b.Dx(), b.Dy())/4)
	dets, params := d.detect(crop, minSize)
	if len(dets) == 0 {
		return image.Rectangle{}, false, nil
	}

	best := dets[0]
	for _, det := range dets[1:] {
		if det.Q > best.Q {
			best = det
		}
	}

	region := detectionBox(best).Rect()
	if d.puploc != nil {
		if cx, ok := d.eyeCenter(best, params); ok {
			region = region.Add(image.Pt(cx-(region.Min.X+region.Dx()/2), 0))
		}
	}

	return provider.SquareAround(region, b), true, nil
}

func (d *Detector) detect(img *image.RGBA, minSize int) ([]pigo.Detection, pigo.ImageParams) {
	b := img.Bounds()
	params := pigo.ImageParams{
		Pixels: pigo.RgbToGrayscale(img),
		Rows:   b.Dy(),
		Cols:   b.Dx(),
		Dim:    b.Dx(),
	}

	cParams := pigo.CascadeParams{
		MinSize:     minSize,
		MaxSize:     min(d.config.MaxSize, max(b.Dx(), b.Dy())),
		ShiftFactor: d.config.ShiftFactor,
		ScaleFactor: d.config.ScaleFactor,
		ImageParams: params,
	}

	dets := d.face.RunCascade(cParams, 0.0)
	dets = d.face.ClusterDetections(dets, d.config.IoUThreshold)

	kept := dets[:0]
	for _, det := range dets {
		if det.Q >= d.config.QualityThreshold {
			kept = append(kept, det)
		}
	}
	return kept, params
}

// eyeCenter returns the horizontal midpoint of both pupils when the pupil
// cascade finds them.
func (d *Detector) eyeCenter(det pigo.Detection, params pigo.ImageParams) (int, bool) {
	scale := float32(det.Scale)

	left := d.puploc.RunDetector(pigo.Puploc{
		Row:      det.Row - int(0.075*scale),
		Col:      det.Col - int(0.175*scale),
		Scale:    scale * 0.25,
		Perturbs: 50,
	}, params, 0.0, false)

	right := d.puploc.RunDetector(pigo.Puploc{
		Row:      det.Row - int(0.075*scale),
		Col:      det.Col + int(0.185*scale),
		Scale:    scale * 0.25,
		Perturbs: 50,
	}, params, 0.0, false)

	if left == nil || right == nil || left.Row <= 0 || left.Col <= 0 || right.Row <= 0 || right.Col <= 0 {
		return 0, false
	}
	return (left.Col + right.Col) / 2, true
}

func detectionBox(det pigo.Detection) frame.FaceBox {
	return frame.FaceBox{
		X:      det.Col - det.Scale/2,
		Y:      det.Row - det.Scale/2,
		Width:  det.Scale,
		Height: det.Scale,
	}
}
