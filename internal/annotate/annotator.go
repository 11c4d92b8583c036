package annotate

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/classifier"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/frame"
)

const (
	Thickness   = 4
	LabelOffset = 10
	textScale   = 2
)

var (
	ColorFake = color.RGBA{R: 255, A: 255}
	ColorReal = color.RGBA{B: 255, A: 255}
)

// Annotator draws verdict boxes and captions onto frames.
type Annotator struct {
	face      font.Face
	thickness int
}

func New() *Annotator {
	return &Annotator{
		face:      basicfont.Face7x13,
		thickness: Thickness,
	}
}

// Annotate draws the box outline and its caption onto dst in place. The
// caption baseline sits LabelOffset pixels above the box, or inside the
// frame when the box touches the top edge.
func (a *Annotator) Annotate(dst *frame.Frame, box frame.FaceBox, d classifier.Decision) {
	c := ColorReal
	if d.IsDeepfake() {
		c = ColorFake
	}
	if dst.Order == frame.OrderBGR {
		c.R, c.B = c.B, c.R
	}

	box = box.Clamp(dst.Bounds())
	a.drawRect(dst.Image, box.Rect(), c)
	a.drawLabel(dst.Image, d.Caption(), image.Pt(box.X, box.Y-LabelOffset), c)
}

func (a *Annotator) drawRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	t := min(a.thickness, r.Dx(), r.Dy())

	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

// drawLabel renders text with its baseline-left corner at origin, scaled up
// from the bitmap font so it stays legible on camera frames.
func (a *Annotator) drawLabel(dst *image.RGBA, text string, origin image.Point, c color.RGBA) {
	metrics := a.face.Metrics()
	ascent := metrics.Ascent.Ceil()
	height := metrics.Height.Ceil()
	width := font.MeasureString(a.face, text).Ceil()
	if width == 0 {
		return
	}

	mask := image.NewAlpha(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: a.face,
		Dot:  fixed.P(0, ascent),
	}
	d.DrawString(text)

	scaledAscent := ascent * textScale
	if origin.Y < scaledAscent {
		origin.Y = scaledAscent
	}
	target := image.Rect(0, 0, width*textScale, height*textScale).Add(image.Pt(origin.X, origin.Y-scaledAscent))

	scaled := image.NewAlpha(image.Rect(0, 0, target.Dx(), target.Dy()))
	xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), mask, mask.Bounds(), xdraw.Src, nil)

	draw.DrawMask(dst, target, image.NewUniform(c), image.Point{}, scaled, image.Point{}, draw.Over)
}
