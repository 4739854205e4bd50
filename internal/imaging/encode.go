// Package imaging encodes, scales and loads capture images.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/jmylchreest/shutter/pkg/plugin"
)

var (
	// ErrUnsupportedFormat is returned for an output format with no encoder.
	ErrUnsupportedFormat = errors.New("unsupported output format")

	// ErrNilWriter is returned when there is no stream to write to.
	ErrNilWriter = errors.New("output stream is nil")

	// ErrNilImage is returned when there is no image to work on.
	ErrNilImage = errors.New("image is nil")
)

// Encode writes img to w in the format described by settings.
// The writer is not closed.
func Encode(w io.Writer, img image.Image, settings plugin.OutputSettings) error {
	if w == nil {
		return ErrNilWriter
	}
	if img == nil {
		return ErrNilImage
	}

	format := settings.Format()
	if settings.ReduceColors() && format != plugin.FormatGIF {
		img = ReduceColors(img)
	}

	var err error
	switch format {
	case plugin.FormatPNG:
		err = png.Encode(w, img)
	case plugin.FormatJPG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: clampQuality(settings.JPGQuality())})
	case plugin.FormatGIF:
		err = gif.Encode(w, img, &gif.Options{NumColors: 256, Drawer: xdraw.FloydSteinberg})
	case plugin.FormatBMP:
		err = bmp.Encode(w, img)
	case plugin.FormatTIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return nil
}

// ReduceColors maps img onto a 256 colour palette with dithering.
func ReduceColors(img image.Image) *image.Paletted {
	if p, ok := img.(*image.Paletted); ok && len(p.Palette) <= 256 {
		return p
	}
	bounds := img.Bounds()
	dst := image.NewPaletted(bounds, palette.Plan9)
	xdraw.FloydSteinberg.Draw(dst, bounds, img, bounds.Min)
	return dst
}

// clampQuality keeps the quality within what the JPEG encoder accepts.
func clampQuality(q int) int {
	switch {
	case q < 1:
		return 1
	case q > 100:
		return 100
	default:
		return q
	}
}
