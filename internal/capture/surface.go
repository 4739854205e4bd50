package capture

import (
	"image"

	"github.com/jmylchreest/shutter/pkg/plugin"
)

// Surface is the host's implementation of plugin.Surface. The editor that
// would draw on it is outside this module; processors replace its image.
type Surface struct {
	capture  plugin.Capture
	img      image.Image
	modified bool
}

// NewSurface creates an unmodified surface showing the capture's image.
func NewSurface(c plugin.Capture) *Surface {
	return &Surface{capture: c, img: c.Image()}
}

// Image returns the current surface image.
func (s *Surface) Image() image.Image { return s.img }

// ApplyImage replaces the surface image and marks the surface modified.
func (s *Surface) ApplyImage(img image.Image) {
	s.img = img
	s.modified = true
}

// Capture returns the capture the surface was created from.
func (s *Surface) Capture() plugin.Capture { return s.capture }

// Modified reports whether the surface has unsaved changes.
func (s *Surface) Modified() bool { return s.modified }

// SetModified sets the modified flag.
func (s *Surface) SetModified(modified bool) { s.modified = modified }
