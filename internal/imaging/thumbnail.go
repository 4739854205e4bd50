package imaging

import (
	"errors"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// ErrInvalidDimensions is returned for a non-positive thumbnail size.
var ErrInvalidDimensions = errors.New("invalid thumbnail dimensions")

// Thumbnail returns a width x height copy of img. The source is not modified.
func Thumbnail(img image.Image, width, height int) (image.Image, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst, nil
}

// FitWithin returns the largest size with img's aspect ratio that fits in
// maxWidth x maxHeight. Images already small enough keep their size.
func FitWithin(img image.Image, maxWidth, maxHeight int) (width, height int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxWidth && h <= maxHeight {
		return w, h
	}
	if w*maxHeight > h*maxWidth {
		return maxWidth, max(1, h*maxWidth/w)
	}
	return max(1, w*maxHeight/h), maxHeight
}
