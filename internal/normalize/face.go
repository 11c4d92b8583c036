package normalize

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
)

const (
	Size     = 256
	Channels = 3
	planeLen = Size * Size
)

var ErrInvalidTensor = errors.New("invalid face tensor")

// Face is a normalized face ready for classification: a 3x256x256 RGB tensor
// in CHW layout with values in [0,1]. It is immutable once constructed.
type Face struct {
	data []float32
}

// NewFace validates and copies a CHW tensor.
func NewFace(data []float32) (*Face, error) {
	if len(data) != Channels*planeLen {
		return nil, fmt.Errorf("%w: expected %d values (%dx%dx%d), got %d",
			ErrInvalidTensor, Channels*planeLen, Channels, Size, Size, len(data))
	}
	for i, v := range data {
		if math.IsNaN(float64(v)) || v < 0 || v > 1 {
			return nil, fmt.Errorf("%w: value %v at index %d outside [0,1]", ErrInvalidTensor, v, i)
		}
	}

	cp := make([]float32, len(data))
	copy(cp, data)
	return &Face{data: cp}, nil
}

// FromImage converts a 256x256 image into a Face, scaling 8-bit channels
// by 1/255.
func FromImage(img *image.RGBA) (*Face, error) {
	b := img.Bounds()
	if b.Dx() != Size || b.Dy() != Size {
		return nil, fmt.Errorf("%w: image is %dx%d, want %dx%d", ErrInvalidTensor, b.Dx(), b.Dy(), Size, Size)
	}

	data := make([]float32, Channels*planeLen)
	for y := 0; y < Size; y++ {
		row := img.Pix[(y+b.Min.Y-img.Rect.Min.Y)*img.Stride+(b.Min.X-img.Rect.Min.X)*4:]
		for x := 0; x < Size; x++ {
			p := row[x*4:]
			i := y*Size + x
			data[i] = float32(p[0]) / 255
			data[planeLen+i] = float32(p[1]) / 255
			data[2*planeLen+i] = float32(p[2]) / 255
		}
	}

	return &Face{data: data}, nil
}

// At returns the value of channel c at (x, y).
func (f *Face) At(c, y, x int) float32 {
	return f.data[c*planeLen+y*Size+x]
}

// Tensor returns a copy of the CHW data.
func (f *Face) Tensor() []float32 {
	cp := make([]float32, len(f.data))
	copy(cp, f.data)
	return cp
}

// Bytes returns the tensor as little-endian float32, the layout expected by
// both the DNN blob constructor and the TorchServe handler.
func (f *Face) Bytes() []byte {
	buf := make([]byte, 4*len(f.data))
	for i, v := range f.data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Image renders the tensor back into an 8-bit RGB image.
func (f *Face) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, Size, Size))
	for i := 0; i < planeLen; i++ {
		p := img.Pix[i*4:]
		p[0] = to8(f.data[i])
		p[1] = to8(f.data[planeLen+i])
		p[2] = to8(f.data[2*planeLen+i])
		p[3] = 0xff
	}
	return img
}

func to8(v float32) uint8 {
	return uint8(math.Round(float64(v) * 255))
}
