package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	// Registers the WebP decoder with image.Decode.
	_ "golang.org/x/image/webp"
)

var ErrInvalidFrame = errors.New("invalid frame")

// ChannelOrder tells how the three color channels of the pixel buffer are
// laid out. Frames decoded from files are always RGB; raw camera buffers
// handed over by OpenCV-style producers are BGR.
type ChannelOrder int

const (
	OrderRGB ChannelOrder = iota
	OrderBGR
)

func (o ChannelOrder) String() string {
	if o == OrderBGR {
		return "BGR"
	}
	return "RGB"
}

// Frame is a decoded still image. Image always starts at the origin.
type Frame struct {
	Image  *image.RGBA
	Order  ChannelOrder
	Format string
	Source []byte
}

// Decode parses an encoded JPEG, PNG or WebP image into an RGB frame.
func Decode(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidFrame)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrInvalidFrame)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	return &Frame{
		Image:  rgba,
		Order:  OrderRGB,
		Format: format,
		Source: data,
	}, nil
}

// FromPixels wraps a packed 3-channel buffer of width*height pixels.
func FromPixels(pix []byte, width, height int, order ChannelOrder) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidFrame, width, height)
	}
	if len(pix) != width*height*3 {
		return nil, fmt.Errorf("%w: expected %d bytes for %dx%d, got %d",
			ErrInvalidFrame, width*height*3, width, height, len(pix))
	}

	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < len(pix); i, j = i+3, j+4 {
		rgba.Pix[j] = pix[i]
		rgba.Pix[j+1] = pix[i+1]
		rgba.Pix[j+2] = pix[i+2]
		rgba.Pix[j+3] = 0xff
	}

	return &Frame{Image: rgba, Order: order}, nil
}

// FromImage copies img into a new RGB frame.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return &Frame{Image: rgba, Order: OrderRGB}
}

// Validate reports whether the frame holds a usable pixel buffer.
func (f *Frame) Validate() error {
	if f == nil || f.Image == nil {
		return fmt.Errorf("%w: no pixel buffer", ErrInvalidFrame)
	}
	b := f.Image.Bounds()
	if b.Min != (image.Point{}) {
		return fmt.Errorf("%w: buffer does not start at origin", ErrInvalidFrame)
	}
	if b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("%w: zero-sized image", ErrInvalidFrame)
	}
	if len(f.Image.Pix) < f.Image.Stride*b.Dy() {
		return fmt.Errorf("%w: truncated pixel buffer", ErrInvalidFrame)
	}
	return nil
}

func (f *Frame) Width() int  { return f.Image.Bounds().Dx() }
func (f *Frame) Height() int { return f.Image.Bounds().Dy() }

func (f *Frame) Bounds() image.Rectangle {
	return f.Image.Bounds()
}

// Clone returns a deep copy. The encoded source bytes are shared because
// they are never written to.
func (f *Frame) Clone() *Frame {
	pix := make([]uint8, len(f.Image.Pix))
	copy(pix, f.Image.Pix)
	return &Frame{
		Image: &image.RGBA{
			Pix:    pix,
			Stride: f.Image.Stride,
			Rect:   f.Image.Rect,
		},
		Order:  f.Order,
		Format: f.Format,
		Source: f.Source,
	}
}

// RGB returns the pixels in RGB order, converting from BGR when needed.
// The returned image must not be modified when the frame is already RGB.
func (f *Frame) RGB() *image.RGBA {
	if f.Order == OrderRGB {
		return f.Image
	}
	out := f.Clone().Image
	for i := 0; i+2 < len(out.Pix); i += 4 {
		out.Pix[i], out.Pix[i+2] = out.Pix[i+2], out.Pix[i]
	}
	return out
}

// Crop copies the region under box into a new origin-based RGB image.
func (f *Frame) Crop(box FaceBox) *image.RGBA {
	r := box.Clamp(f.Bounds()).Rect()
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), f.RGB(), r.Min, draw.Src)
	return out
}

// Encoded returns bytes suitable for remote detectors: the original payload
// when the frame was decoded and not re-ordered, a fresh JPEG otherwise.
func (f *Frame) Encoded() ([]byte, error) {
	if len(f.Source) > 0 && f.Order == OrderRGB {
		return f.Source, nil
	}
	return f.EncodeJPEG(DefaultJPEGQuality)
}

const DefaultJPEGQuality = 90

func (f *Frame) EncodeJPEG(quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.RGB(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *Frame) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.RGB()); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
