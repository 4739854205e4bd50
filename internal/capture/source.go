package capture

import (
	"context"
	"errors"
	"image"

	xdraw "golang.org/x/image/draw"
)

// ErrNoSource is returned when the host was built without a capture source.
var ErrNoSource = errors.New("no capture source configured")

// Grab is a raw capture produced by a Source.
type Grab struct {
	Image  image.Image
	Title  string
	Region image.Rectangle

	// Cursor is the cursor image and its position, if the source has one.
	Cursor    image.Image
	CursorPos image.Point
}

// Source is the screen-capture mechanism. Real implementations talk to the
// display server.
type Source interface {
	Grab(ctx context.Context) (*Grab, error)
}

// StaticSource returns the same image on every grab. It backs file imports
// and tests.
type StaticSource struct {
	Img       image.Image
	Title     string
	Cursor    image.Image
	CursorPos image.Point
}

// Grab returns the configured image.
func (s *StaticSource) Grab(ctx context.Context) (*Grab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Img == nil {
		return nil, errors.New("static source has no image")
	}
	return &Grab{
		Image:     s.Img,
		Title:     s.Title,
		Region:    s.Img.Bounds(),
		Cursor:    s.Cursor,
		CursorPos: s.CursorPos,
	}, nil
}

// Flatten returns the grab's image, with the cursor drawn on top when
// withCursor is set and the grab has one.
func (g *Grab) Flatten(withCursor bool) image.Image {
	if !withCursor || g.Cursor == nil {
		return g.Image
	}
	b := g.Image.Bounds()
	dst := image.NewRGBA(b)
	xdraw.Draw(dst, b, g.Image, b.Min, xdraw.Src)
	cb := g.Cursor.Bounds()
	xdraw.Draw(dst, cb.Sub(cb.Min).Add(g.CursorPos), g.Cursor, cb.Min, xdraw.Over)
	return dst
}
