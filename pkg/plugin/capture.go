package plugin

import (
	"image"
	"time"
)

// CaptureDetails is the metadata describing a capture, used to name and
// route its output.
type CaptureDetails struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	DateTime       time.Time         `json:"date_time"`
	Region         image.Rectangle   `json:"region"`
	CursorCaptured bool              `json:"cursor_captured"`
	Filename       string            `json:"filename,omitempty"`
	MetaData       map[string]string `json:"meta_data,omitempty"`
}

// AddMetaData records a key/value pair on the details.
func (d *CaptureDetails) AddMetaData(key, value string) {
	if d.MetaData == nil {
		d.MetaData = make(map[string]string)
	}
	d.MetaData[key] = value
}

// Capture is captured pixel data together with its details.
// A capture has a single owner at a time and is never mutated concurrently.
type Capture interface {
	// Image returns the captured pixels.
	Image() image.Image

	// SetImage replaces the captured pixels.
	SetImage(img image.Image)

	// Details returns the capture metadata.
	Details() *CaptureDetails
}

// Surface is the editable representation of a capture that destinations
// and processors work on.
type Surface interface {
	// Image returns the current, flattened surface image.
	Image() image.Image

	// ApplyImage replaces the surface image and marks the surface modified.
	ApplyImage(img image.Image)

	// Capture returns the capture the surface was created from.
	Capture() Capture

	// Modified reports whether the surface has unsaved changes.
	Modified() bool

	// SetModified sets the modified flag, usually cleared after an export.
	SetModified(modified bool)
}
