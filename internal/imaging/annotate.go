package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/tphakala/visiondash/internal/detection"
)

const (
	outlineWidth = 3
	labelPadding = 2
)

// Palette is the box colour cycle, assigned to labels in first-seen order.
var Palette = []color.RGBA{
	{0xFF, 0x6B, 0x6B, 0xFF},
	{0x4E, 0xCD, 0xC4, 0xFF},
	{0x45, 0xB7, 0xD1, 0xFF},
	{0x96, 0xCE, 0xB4, 0xFF},
	{0xFF, 0xEA, 0xA7, 0xFF},
	{0xDD, 0xA0, 0xDD, 0xFF},
	{0x98, 0xD8, 0xC8, 0xFF},
	{0xF7, 0xDC, 0x6F, 0xFF},
	{0xBB, 0x8F, 0xCE, 0xFF},
	{0x85, 0xC1, 0xE9, 0xFF},
}

// LabelColors maps each label to its palette colour.
func LabelColors(detections []detection.Detection) map[string]color.RGBA {
	colors := make(map[string]color.RGBA)
	for _, d := range detections {
		if _, ok := colors[d.Label]; !ok {
			colors[d.Label] = Palette[len(colors)%len(Palette)]
		}
	}
	return colors
}

// LabelText is the caption drawn above a box.
func LabelText(d detection.Detection) string {
	return fmt.Sprintf("%s (%.2f)", d.Label, d.Confidence)
}

// PixelRect converts a normalized box to pixel coordinates within bounds.
func PixelRect(box detection.Box, bounds image.Rectangle) image.Rectangle {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	r := image.Rect(
		bounds.Min.X+int(box.Left*w),
		bounds.Min.Y+int(box.Top*h),
		bounds.Min.X+int(box.Right()*w),
		bounds.Min.Y+int(box.Bottom()*h),
	)
	return r.Intersect(bounds)
}

// Annotate returns a copy of img with every detection outlined and captioned.
func Annotate(img image.Image, detections []detection.Detection) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)

	colors := LabelColors(detections)
	face := basicfont.Face7x13

	for _, d := range detections {
		c := colors[d.Label]
		rect := PixelRect(d.Box, b)
		if rect.Empty() {
			continue
		}
		drawOutline(dst, rect, c)
		drawCaption(dst, face, rect, LabelText(d), c)
	}
	return dst
}

// drawOutline draws an outlineWidth frame just inside rect.
func drawOutline(dst *image.RGBA, rect image.Rectangle, c color.RGBA) {
	src := image.NewUniform(c)
	t := min(outlineWidth, rect.Dx(), rect.Dy())
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+t),
		image.Rect(rect.Min.X, rect.Max.Y-t, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+t, rect.Max.Y),
		image.Rect(rect.Max.X-t, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Src)
	}
}

// drawCaption draws text on a filled background above rect, or inside its top
// edge when there is no room above.
func drawCaption(dst *image.RGBA, face font.Face, rect image.Rectangle, text string, c color.RGBA) {
	metrics := face.Metrics()
	textW := font.MeasureString(face, text).Ceil()
	textH := (metrics.Ascent + metrics.Descent).Ceil()
	boxH := textH + 2*labelPadding

	top := rect.Min.Y - boxH
	if top < dst.Bounds().Min.Y {
		top = rect.Min.Y
	}
	bg := image.Rect(rect.Min.X, top, rect.Min.X+textW+2*labelPadding, top+boxH).Intersect(dst.Bounds())
	draw.Draw(dst, bg, image.NewUniform(c), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(rect.Min.X+labelPadding, top+labelPadding+metrics.Ascent.Ceil()),
	}
	drawer.DrawString(text)
}

// Render decodes data, resizes it for display, draws detections and returns PNG bytes.
func Render(data []byte, detections []detection.Detection, maxW, maxH int) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	annotated := Annotate(Resize(img, maxW, maxH), detections)

	var buf bytes.Buffer
	if err := EncodePNG(&buf, annotated); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
