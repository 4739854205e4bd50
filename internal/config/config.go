// Package config loads the process configuration snapshot for shutter.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/shutter/pkg/plugin"
)

// DefaultFilenamePattern names captures after their time and window title.
const DefaultFilenamePattern = `${capturetime:d"yyyy-MM-dd HH_mm_ss"}-${title}`

// Config is the process-wide configuration. It is loaded once and handed
// around as a value; nothing reads it from package state.
type Config struct {
	Output  OutputConfig  `yaml:"output"`
	Capture CaptureConfig `yaml:"capture"`
	Plugins PluginsConfig `yaml:"plugins"`

	// LogLevel is an hclog level name (trace, debug, info, warn, error, off).
	LogLevel string `yaml:"log_level"`
}

// OutputConfig holds the output encoding defaults and file locations.
type OutputConfig struct {
	Format          plugin.OutputFormat `yaml:"format"`
	JPGQuality      int                 `yaml:"jpg_quality"`
	ReduceColors    bool                `yaml:"reduce_colors"`
	FilenamePattern string              `yaml:"filename_pattern"`

	// Directory is where the file destination writes captures.
	Directory string `yaml:"directory"`

	// TempDirectory is where temporary files are created. Empty means os.TempDir().
	TempDirectory string `yaml:"temp_directory"`
}

// CaptureConfig controls the post-capture pipeline.
type CaptureConfig struct {
	// MousePointer allows the mouse cursor to be captured when requested.
	MousePointer bool `yaml:"mouse_pointer"`

	// Destinations are the designations a new capture is exported to.
	Destinations []string `yaml:"destinations"`
}

// PluginsConfig holds plugin discovery and enablement.
type PluginsConfig struct {
	// Directory is scanned for plugin manifests.
	Directory string `yaml:"directory"`

	// Disabled lists plugin names that are never initialized.
	Disabled []string `yaml:"disabled"`

	// Enabled, when set, lists the only plugin names that are initialized.
	Enabled []string `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Output: OutputConfig{
			Format:          plugin.FormatPNG,
			JPGQuality:      80,
			ReduceColors:    false,
			FilenamePattern: DefaultFilenamePattern,
			Directory:       defaultOutputDir(),
		},
		Capture: CaptureConfig{
			MousePointer: true,
			Destinations: []string{"file"},
		},
		Plugins: PluginsConfig{
			Directory: defaultPluginDir(),
		},
		LogLevel: "info",
	}
}

// OutputDefaults returns the snapshot OutputSettings constructors read.
func (c Config) OutputDefaults() plugin.OutputDefaults {
	return plugin.OutputDefaults{
		Format:       c.Output.Format,
		JPGQuality:   c.Output.JPGQuality,
		ReduceColors: c.Output.ReduceColors,
	}
}

// TempDir returns the directory temporary files are written to.
func (c Config) TempDir() string {
	if c.Output.TempDirectory != "" {
		return c.Output.TempDirectory
	}
	return os.TempDir()
}

// Load reads the configuration. It starts from Default, applies the YAML
// file at path if it exists, then applies SHUTTER_* environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - User-specified config path, intended to be read
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// A missing config file means defaults.
		default:
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("SHUTTER_OUTPUT_FORMAT"); ok && v != "" {
		format, err := plugin.ParseOutputFormat(v)
		if err != nil {
			return fmt.Errorf("SHUTTER_OUTPUT_FORMAT: %w", err)
		}
		c.Output.Format = format
	}
	if v, ok := lookup("SHUTTER_JPG_QUALITY"); ok && v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SHUTTER_JPG_QUALITY: invalid integer %q", v)
		}
		c.Output.JPGQuality = q
	}
	if v, ok := lookup("SHUTTER_REDUCE_COLORS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SHUTTER_REDUCE_COLORS: invalid boolean %q", v)
		}
		c.Output.ReduceColors = b
	}
	if v, ok := lookup("SHUTTER_FILENAME_PATTERN"); ok && v != "" {
		c.Output.FilenamePattern = v
	}
	if v, ok := lookup("SHUTTER_OUTPUT_DIR"); ok && v != "" {
		c.Output.Directory = v
	}
	if v, ok := lookup("SHUTTER_TMP_DIR"); ok && v != "" {
		c.Output.TempDirectory = v
	}
	if v, ok := lookup("SHUTTER_PLUGIN_DIR"); ok && v != "" {
		c.Plugins.Directory = v
	}
	if v, ok := lookup("SHUTTER_CAPTURE_MOUSE_POINTER"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SHUTTER_CAPTURE_MOUSE_POINTER: invalid boolean %q", v)
		}
		c.Capture.MousePointer = b
	}
	if v, ok := lookup("SHUTTER_DESTINATIONS"); ok && v != "" {
		c.Capture.Destinations = ParseList(v)
	}
	if v, ok := lookup("SHUTTER_DISABLED_PLUGINS"); ok && v != "" {
		c.Plugins.Disabled = ParseList(v)
	}
	if v, ok := lookup("SHUTTER_ENABLED_PLUGINS"); ok && v != "" {
		c.Plugins.Enabled = ParseList(v)
	}
	if v, ok := lookup("SHUTTER_LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks the configuration for values the host cannot work with.
func (c Config) Validate() error {
	if _, err := plugin.ParseOutputFormat(string(c.Output.Format)); err != nil {
		return fmt.Errorf("invalid output format: %w", err)
	}
	if c.Output.JPGQuality < 0 || c.Output.JPGQuality > 100 {
		return fmt.Errorf("jpg quality must be between 0 and 100, got %d", c.Output.JPGQuality)
	}
	if strings.TrimSpace(c.Output.FilenamePattern) == "" {
		return fmt.Errorf("filename pattern cannot be empty")
	}
	return nil
}

// ParseList parses a comma-separated list, dropping empty entries.
func ParseList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "shutter", "config.yaml")
}

func defaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Join(home, "Pictures", "Screenshots")
}

func defaultPluginDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "shutter", "plugins")
}
