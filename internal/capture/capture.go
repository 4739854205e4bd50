// Package capture provides the host's concrete captures and surfaces, and
// the interface to the screen-capture mechanism.
package capture

import (
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/shutter/pkg/plugin"
)

// NewDetails returns capture details with a fresh ID and the given time.
func NewDetails(title string, now time.Time) *plugin.CaptureDetails {
	return &plugin.CaptureDetails{
		ID:       uuid.NewString(),
		Title:    title,
		DateTime: now,
	}
}

// Capture is the host's implementation of plugin.Capture.
type Capture struct {
	img     image.Image
	details *plugin.CaptureDetails
}

// New wraps img. Nil details are replaced by fresh details stamped with the
// current time. The region defaults to the image bounds.
func New(img image.Image, details *plugin.CaptureDetails) *Capture {
	if details == nil {
		details = NewDetails("", time.Now())
	}
	if details.Region.Empty() && img != nil {
		details.Region = img.Bounds()
	}
	return &Capture{img: img, details: details}
}

// Image returns the captured pixels.
func (c *Capture) Image() image.Image { return c.img }

// SetImage replaces the captured pixels.
func (c *Capture) SetImage(img image.Image) { c.img = img }

// Details returns the capture metadata.
func (c *Capture) Details() *plugin.CaptureDetails { return c.details }
