// Package imaging decodes uploaded images, resizes them for display and draws
// detection boxes on them.
package imaging

import (
	"bytes"
	"image"
	_ "image/gif" // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"io"
	"slices"

	_ "golang.org/x/image/bmp" // register BMP decoder
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/tphakala/visiondash/internal/errors"
)

const (
	componentName = "imaging"

	// DisplayWidth and DisplayHeight bound images rendered for the dashboard.
	DisplayWidth  = 800
	DisplayHeight = 600

	// MaxUploadBytes is the largest accepted upload.
	MaxUploadBytes = 20 << 20

	// MaxPixels bounds the decoded size of an upload. Compressed formats can
	// declare far larger canvases than their byte size suggests.
	MaxPixels = 40_000_000
)

// SupportedFormats are the decoder names accepted for uploads.
var SupportedFormats = []string{"png", "jpeg", "gif", "bmp", "webp"}

// Info describes an uploaded image.
type Info struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Size   int    `json:"size"`
}

// Validate checks that data is a supported, non-empty image and returns its info
// without decoding the pixels.
func Validate(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, invalidImage("image is empty")
	}
	if len(data) > MaxUploadBytes {
		return Info{}, invalidImage("image exceeds %d bytes", MaxUploadBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, decodeError(err, "decode_config")
	}
	if !slices.Contains(SupportedFormats, format) {
		return Info{}, invalidImage("unsupported image format %q", format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, invalidImage("image has no pixels")
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return Info{}, invalidImage("image dimensions %dx%d exceed %d pixels", cfg.Width, cfg.Height, MaxPixels)
	}

	return Info{Width: cfg.Width, Height: cfg.Height, Format: format, Size: len(data)}, nil
}

// Decode validates and fully decodes data.
func Decode(data []byte) (image.Image, Info, error) {
	info, err := Validate(data)
	if err != nil {
		return nil, Info{}, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Info{}, decodeError(err, "decode")
	}
	return img, info, nil
}

// FitSize returns the largest size with the aspect ratio of w x h that fits in
// maxW x maxH. Images that already fit keep their size.
func FitSize(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	return max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))
}

// Resize scales img down to fit maxW x maxH keeping the aspect ratio.
// Smaller images are returned unchanged.
func Resize(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), maxW, maxH)
	if w == b.Dx() && h == b.Dy() {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("operation", "encode_png").
			Build()
	}
	return nil
}

func invalidImage(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component(componentName).
		Category(errors.CategoryValidation).
		Build()
}

func decodeError(err error, operation string) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryImageDecode).
		Context("operation", operation).
		Build()
}
