package classifier

import (
	"fmt"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/normalize"
)

// SaliencyMap is a 256x256 activation map with values in [0,1], row-major.
type SaliencyMap struct {
	Values []float32
}

func (m *SaliencyMap) At(x, y int) float32 {
	return m.Values[y*normalize.Size+x]
}

// NewSaliencyMap upsamples a width x height activation grid to the face
// resolution and rescales it to [0,1]. Negative activations are zeroed
// first.
func NewSaliencyMap(grid []float32, width, height int) (*SaliencyMap, error) {
	if width <= 0 || height <= 0 || len(grid) != width*height {
		return nil, fmt.Errorf("%w: activation grid %dx%d has %d values", ErrInference, width, height, len(grid))
	}

	relu := make([]float64, len(grid))
	for i, v := range grid {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("%w: non-finite activation", ErrInference)
		}
		relu[i] = math.Max(float64(v), 0)
	}
	scaleUnit(relu)

	src := image.NewGray16(image.Rect(0, 0, width, height))
	for i, v := range relu {
		g := uint16(math.Round(v * math.MaxUint16))
		src.Pix[2*i] = uint8(g >> 8)
		src.Pix[2*i+1] = uint8(g)
	}

	dst := image.NewGray16(image.Rect(0, 0, normalize.Size, normalize.Size))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	up := make([]float64, normalize.Size*normalize.Size)
	for i := range up {
		up[i] = float64(uint16(dst.Pix[2*i])<<8|uint16(dst.Pix[2*i+1])) / math.MaxUint16
	}
	scaleUnit(up)

	values := make([]float32, len(up))
	for i, v := range up {
		values[i] = float32(v)
	}
	return &SaliencyMap{Values: values}, nil
}

// scaleUnit shifts and scales v in place so that min=0 and max<=1.
func scaleUnit(v []float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	span := hi - lo
	for i := range v {
		v[i] = (v[i] - lo) / (span + 1e-7)
	}
}

const powerIterations = 64

// EigenProjection projects a C x (H*W) activation tensor onto its first
// principal component over the channel dimension and returns the H*W map.
// The sign is chosen so the map correlates positively with the mean
// activation.
func EigenProjection(acts []float32, channels, spatial int) ([]float32, error) {
	if channels <= 0 || spatial <= 0 || len(acts) != channels*spatial {
		return nil, fmt.Errorf("%w: activation tensor has %d values, want %dx%d", ErrInference, len(acts), channels, spatial)
	}

	// Rows are spatial positions, columns are channels; center each column.
	a := make([]float64, spatial*channels)
	for c := 0; c < channels; c++ {
		var mean float64
		for s := 0; s < spatial; s++ {
			mean += float64(acts[c*spatial+s])
		}
		mean /= float64(spatial)
		for s := 0; s < spatial; s++ {
			a[s*channels+c] = float64(acts[c*spatial+s]) - mean
		}
	}

	v := make([]float64, channels)
	for i := range v {
		v[i] = 1 / math.Sqrt(float64(channels))
	}
	av := make([]float64, spatial)
	next := make([]float64, channels)

	for iter := 0; iter < powerIterations; iter++ {
		mulVec(a, v, av, spatial, channels)
		for c := range next {
			next[c] = 0
		}
		for s := 0; s < spatial; s++ {
			row := a[s*channels : (s+1)*channels]
			for c, x := range row {
				next[c] += x * av[s]
			}
		}
		norm := 0.0
		for _, x := range next {
			norm += x * x
		}
		norm = math.Sqrt(norm)
		if norm == 0 || math.IsNaN(norm) {
			break
		}
		for c := range v {
			v[c] = next[c] / norm
		}
	}

	mulVec(a, v, av, spatial, channels)

	// Orient against the raw mean activation map.
	var corr float64
	for s := 0; s < spatial; s++ {
		var m float64
		for c := 0; c < channels; c++ {
			m += float64(acts[c*spatial+s])
		}
		corr += m * av[s]
	}
	sign := 1.0
	if corr < 0 {
		sign = -1
	}

	out := make([]float32, spatial)
	for s, x := range av {
		out[s] = float32(sign * x)
	}
	return out, nil
}

func mulVec(a, v, out []float64, rows, cols int) {
	for r := 0; r < rows; r++ {
		var sum float64
		row := a[r*cols : (r+1)*cols]
		for c, x := range row {
			sum += x * v[c]
		}
		out[r] = sum
	}
}
