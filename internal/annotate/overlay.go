package annotate

import (
	"image"
	"image/color"
	"math"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/classifier"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/normalize"
)

// imageWeight is the share of the face pixels in the blended overlay.
const imageWeight = 0.5

// Overlay blends a jet-colored saliency map over the normalized face and
// rescales the result so its brightest channel is 255.
func Overlay(face *normalize.Face, m *classifier.SaliencyMap) *image.RGBA {
	base := face.Image()
	out := image.NewRGBA(base.Bounds())

	blended := make([]float64, 3*normalize.Size*normalize.Size)
	var peak float64
	for y := 0; y < normalize.Size; y++ {
		for x := 0; x < normalize.Size; x++ {
			i := y*normalize.Size + x
			heat := jet(float64(m.At(x, y)))
			src := base.RGBAAt(x, y)
			px := [3]float64{float64(src.R), float64(src.G), float64(src.B)}
			for ch := 0; ch < 3; ch++ {
				v := (1-imageWeight)*heat[ch] + imageWeight*px[ch]/255
				blended[3*i+ch] = v
				peak = math.Max(peak, v)
			}
		}
	}
	if peak == 0 {
		peak = 1
	}

	for i := 0; i < normalize.Size*normalize.Size; i++ {
		out.SetRGBA(i%normalize.Size, i/normalize.Size, color.RGBA{
			R: uint8(math.Round(255 * blended[3*i] / peak)),
			G: uint8(math.Round(255 * blended[3*i+1] / peak)),
			B: uint8(math.Round(255 * blended[3*i+2] / peak)),
			A: 0xff,
		})
	}
	return out
}

// jet maps v in [0,1] to the classic blue-cyan-yellow-red ramp, as RGB in
// [0,1].
func jet(v float64) [3]float64 {
	v = math.Min(math.Max(v, 0), 1)
	ramp := func(center float64) float64 {
		return math.Min(math.Max(1.5-math.Abs(4*v-center), 0), 1)
	}
	return [3]float64{ramp(3), ramp(2), ramp(1)}
}
