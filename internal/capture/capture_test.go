package capture

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/google/uuid"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// TestNewDetails tests fresh capture details.
func TestNewDetails(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	d := NewDetails("Editor", now)

	if _, err := uuid.Parse(d.ID); err != nil {
		t.Errorf("ID %q is not a UUID: %v", d.ID, err)
	}
	if d.Title != "Editor" || !d.DateTime.Equal(now) {
		t.Errorf("details = %+v", d)
	}
	if NewDetails("", now).ID == d.ID {
		t.Error("two captures share an ID")
	}
}

// TestNew tests wrapping an image.
func TestNew(t *testing.T) {
	img := solid(40, 30, color.White)

	c := New(img, nil)
	if c.Image() != img {
		t.Error("Image() is not the wrapped image")
	}
	if c.Details() == nil || c.Details().ID == "" {
		t.Fatal("default details missing")
	}
	if c.Details().Region != img.Bounds() {
		t.Errorf("Region = %v, want %v", c.Details().Region, img.Bounds())
	}

	region := image.Rect(100, 100, 140, 130)
	d := NewDetails("x", time.Now())
	d.Region = region
	if New(img, d).Details().Region != region {
		t.Error("explicit region was overwritten")
	}

	other := solid(1, 1, color.Black)
	c.SetImage(other)
	if c.Image() != other {
		t.Error("SetImage() did not replace the image")
	}
}

// TestSurface tests the modified flag.
func TestSurface(t *testing.T) {
	c := New(solid(4, 4, color.White), nil)
	s := NewSurface(c)

	if s.Modified() {
		t.Error("new surface is modified")
	}
	if s.Capture() != c || s.Image() != c.Image() {
		t.Error("surface does not reflect its capture")
	}

	replacement := solid(4, 4, color.Black)
	s.ApplyImage(replacement)
	if !s.Modified() || s.Image() != replacement {
		t.Error("ApplyImage() did not update the surface")
	}
	if c.Image() == replacement {
		t.Error("ApplyImage() changed the capture")
	}

	s.SetModified(false)
	if s.Modified() {
		t.Error("SetModified(false) did not clear the flag")
	}
}

// TestStaticSource tests grabs and cursor flattening.
func TestStaticSource(t *testing.T) {
	screen := solid(10, 10, color.White)
	cursor := solid(2, 2, color.RGBA{R: 255, A: 255})
	src := &StaticSource{Img: screen, Title: "desk", Cursor: cursor, CursorPos: image.Pt(3, 4)}

	g, err := src.Grab(context.Background())
	if err != nil {
		t.Fatalf("Grab() error = %v", err)
	}
	if g.Title != "desk" || g.Region != screen.Bounds() {
		t.Errorf("grab = %+v", g)
	}

	if g.Flatten(false) != screen {
		t.Error("Flatten(false) should return the screen image")
	}

	flat := g.Flatten(true)
	r, _, _, _ := flat.At(3, 4).RGBA()
	if r>>8 != 255 {
		t.Error("cursor not drawn at its position")
	}
	r, g2, _, _ := flat.At(0, 0).RGBA()
	if r>>8 != 255 || g2>>8 != 255 {
		t.Error("screen pixels changed outside the cursor")
	}
	r, g2, b, _ := screen.At(3, 4).RGBA()
	if r>>8 != 255 || g2>>8 != 255 || b>>8 != 255 {
		t.Error("Flatten(true) modified the source image")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Grab(ctx); err == nil {
		t.Error("Grab() with cancelled context expected error")
	}
	if _, err := (&StaticSource{}).Grab(context.Background()); err == nil {
		t.Error("Grab() without image expected error")
	}
}
