package plugin

import (
	"fmt"
	"strings"
)

// OutputFormat is an image encoding a capture can be written in.
type OutputFormat string

const (
	FormatPNG  OutputFormat = "png"
	FormatJPG  OutputFormat = "jpg"
	FormatGIF  OutputFormat = "gif"
	FormatBMP  OutputFormat = "bmp"
	FormatTIFF OutputFormat = "tiff"
)

// OutputFormats lists every supported format.
func OutputFormats() []OutputFormat {
	return []OutputFormat{FormatPNG, FormatJPG, FormatGIF, FormatBMP, FormatTIFF}
}

// ParseOutputFormat parses a format name. It accepts the aliases "jpeg" and "tif".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPG, nil
	case "gif":
		return FormatGIF, nil
	case "bmp":
		return FormatBMP, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	default:
		return "", fmt.Errorf("unknown output format: %q", s)
	}
}

// Extension returns the file extension for the format, including the dot.
func (f OutputFormat) Extension() string {
	return "." + string(f)
}

// String implements fmt.Stringer.
func (f OutputFormat) String() string {
	return string(f)
}

// OutputDefaults is the configured output snapshot that OutputSettings
// constructors fall back to.
type OutputDefaults struct {
	Format       OutputFormat
	JPGQuality   int
	ReduceColors bool
}

// OutputSettings describes how a capture is encoded.
// It is a value type; construct one per save or export.
type OutputSettings struct {
	format       OutputFormat
	jpgQuality   int
	reduceColors bool
}

// NewOutputSettings returns settings populated entirely from defaults.
func NewOutputSettings(defaults OutputDefaults) OutputSettings {
	return OutputSettings{
		format:       defaults.Format,
		jpgQuality:   defaults.JPGQuality,
		reduceColors: defaults.ReduceColors,
	}
}

// NewOutputSettingsWithFormat overrides the format only.
func NewOutputSettingsWithFormat(defaults OutputDefaults, format OutputFormat) OutputSettings {
	s := NewOutputSettings(defaults)
	s.format = format
	return s
}

// NewOutputSettingsWithQuality overrides the format and the JPG quality.
func NewOutputSettingsWithQuality(defaults OutputDefaults, format OutputFormat, quality int) OutputSettings {
	s := NewOutputSettingsWithFormat(defaults, format)
	s.jpgQuality = quality
	return s
}

// NewOutputSettingsWithReduceColors overrides format, JPG quality and colour reduction.
func NewOutputSettingsWithReduceColors(defaults OutputDefaults, format OutputFormat, quality int, reduceColors bool) OutputSettings {
	s := NewOutputSettingsWithQuality(defaults, format, quality)
	s.reduceColors = reduceColors
	return s
}

// Format returns the output format.
func (s OutputSettings) Format() OutputFormat { return s.format }

// SetFormat sets the output format.
func (s *OutputSettings) SetFormat(format OutputFormat) { s.format = format }

// JPGQuality returns the JPG quality. The range is not checked here;
// the encoder clamps it.
func (s OutputSettings) JPGQuality() int { return s.jpgQuality }

// SetJPGQuality sets the JPG quality.
func (s *OutputSettings) SetJPGQuality(quality int) { s.jpgQuality = quality }

// ReduceColors reports whether the image is reduced to at most 256 colours.
// GIF output always reduces, whatever was stored.
func (s OutputSettings) ReduceColors() bool {
	if s.format == FormatGIF {
		return true
	}
	return s.reduceColors
}

// SetReduceColors stores the colour reduction flag.
func (s *OutputSettings) SetReduceColors(reduce bool) { s.reduceColors = reduce }
