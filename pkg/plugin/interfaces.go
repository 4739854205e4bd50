package plugin

import (
	"context"
	"image"
	"io"

	"github.com/hashicorp/go-hclog"
)

// ExportInformation is the outcome of exporting a capture to a destination.
type ExportInformation struct {
	Success                bool   `json:"success"`
	DestinationDesignation string `json:"destination_designation"`
	DestinationDescription string `json:"destination_description,omitempty"`

	// Path is set when the capture ended up in a file.
	Path string `json:"path,omitempty"`

	// URI is set when the capture ended up somewhere addressable other than a file.
	URI string `json:"uri,omitempty"`

	ErrorDetail string `json:"error_detail,omitempty"`
}

// ExportSucceeded returns a successful result for the destination.
func ExportSucceeded(designation, path string) ExportInformation {
	return ExportInformation{
		Success:                true,
		DestinationDesignation: designation,
		Path:                   path,
	}
}

// ExportFailed returns a failed result for the destination.
func ExportFailed(designation string, err error) ExportInformation {
	info := ExportInformation{DestinationDesignation: designation}
	if err != nil {
		info.ErrorDetail = err.Error()
	}
	return info
}

// Target returns where the capture ended up, preferring the file path.
func (e ExportInformation) Target() string {
	if e.Path != "" {
		return e.Path
	}
	return e.URI
}

// Destination accepts a finished capture and routes it somewhere.
type Destination interface {
	// Designation is the unique key the destination is looked up by.
	Designation() string

	// Description is a human-readable label.
	Description() string

	// Priority orders destinations in menus; lower comes first.
	Priority() int

	// IsActive reports whether the destination can currently be used.
	IsActive() bool

	// ExportCapture exports the surface. manuallyInitiated only affects
	// user feedback.
	ExportCapture(ctx context.Context, manuallyInitiated bool, surface Surface, details *CaptureDetails) ExportInformation
}

// Processor transforms a capture before it is exported.
type Processor interface {
	Designation() string
	Description() string
	Priority() int
	IsActive() bool

	// ProcessCapture works on the surface and reports whether it changed it.
	ProcessCapture(ctx context.Context, surface Surface, details *CaptureDetails) bool
}

// Plugin is implemented by every extension. The host calls Initialize
// exactly once before anything else. A plugin that returns false from
// Initialize is never called again. Shutdown is called at most once.
// Calls into a single plugin are never concurrent.
type Plugin interface {
	// Initialize receives the host and the plugin's descriptor, which the
	// plugin may keep for its lifetime. Returning false declines activation.
	Initialize(host Host, descriptor *Descriptor) bool

	// Shutdown releases every resource the plugin holds.
	Shutdown()

	// Configure opens the plugin's configuration surface.
	Configure()

	// Destinations returns the destinations the plugin currently offers.
	Destinations() []Destination

	// Processors returns the processors the plugin currently offers.
	Processors() []Processor
}

// Host is the application side of the contract, handed to every plugin.
type Host interface {
	// SaveToStream encodes img per settings into w. The writer is not closed.
	SaveToStream(img image.Image, w io.Writer, settings OutputSettings) error

	// SaveToTmpFile writes img to a new uniquely named temporary file and
	// returns its path. The caller removes the file.
	SaveToTmpFile(img image.Image, settings OutputSettings) (string, error)

	// SaveNamedTmpFile writes img to a temporary file named from details and
	// the configured pattern, overwriting an earlier file of the same name.
	SaveNamedTmpFile(img image.Image, details *CaptureDetails, settings OutputSettings) (string, error)

	// Filename returns the default filename for format and details. It does no I/O.
	Filename(format OutputFormat, details *CaptureDetails) string

	// Thumbnail returns a scaled copy of img.
	Thumbnail(img image.Image, width, height int) (image.Image, error)

	// Plugins returns a snapshot of the active plugins.
	Plugins() map[*Descriptor]Plugin

	// Destination looks up a destination. ok is false if none is registered.
	Destination(designation string) (d Destination, ok bool)

	// Destinations returns every destination in a stable order.
	Destinations() []Destination

	// ExportCapture exports the surface to the destination with the given designation.
	ExportCapture(ctx context.Context, manuallyInitiated bool, designation string, surface Surface, details *CaptureDetails) ExportInformation

	// CaptureRegion takes a new capture and routes it to destination.
	CaptureRegion(ctx context.Context, captureMouseCursor bool, destination Destination) error

	// ImportCapture feeds an externally produced capture through the post-capture pipeline.
	ImportCapture(ctx context.Context, capture Capture) ([]ExportInformation, error)

	// NewCapture wraps an image in a capture with default details.
	NewCapture(img image.Image) Capture

	// OutputDefaults returns the configured output settings snapshot.
	OutputDefaults() OutputDefaults

	// Logger returns a logger named for the caller.
	Logger(name string) hclog.Logger
}
