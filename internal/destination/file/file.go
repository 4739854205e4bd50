// Package file provides the built-in destination that writes captures to disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/shutter/pkg/plugin"
)

// Designation is the key the destination is registered under.
const Designation = "file"

// maxAttempts bounds the search for a free filename.
const maxAttempts = 1000

// Destination writes captures into a directory using the host's filename
// pattern. Existing files are never overwritten; a numeric suffix is added.
type Destination struct {
	host   plugin.Host
	dir    string
	logger hclog.Logger
}

var _ plugin.Destination = (*Destination)(nil)

// New creates a file destination writing into dir.
func New(host plugin.Host, dir string, logger hclog.Logger) *Destination {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Destination{host: host, dir: dir, logger: logger}
}

func (d *Destination) Designation() string { return Designation }
func (d *Destination) Description() string { return "Save to " + d.dir }
func (d *Destination) Priority() int       { return 0 }
func (d *Destination) IsActive() bool      { return d.dir != "" }

// Dir returns the output directory.
func (d *Destination) Dir() string { return d.dir }

// ExportCapture encodes the surface with the configured output settings.
func (d *Destination) ExportCapture(ctx context.Context, manual bool, surface plugin.Surface, details *plugin.CaptureDetails) plugin.ExportInformation {
	path, err := d.write(ctx, surface, details)
	if err != nil {
		d.logger.Error("export failed", "manual", manual, "error", err)
		info := plugin.ExportFailed(Designation, err)
		info.DestinationDescription = d.Description()
		return info
	}

	d.logger.Info("capture saved", "path", path, "manual", manual)
	info := plugin.ExportSucceeded(Designation, path)
	info.DestinationDescription = d.Description()
	return info
}

func (d *Destination) write(ctx context.Context, surface plugin.Surface, details *plugin.CaptureDetails) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !d.IsActive() {
		return "", errors.New("no output directory configured")
	}

	settings := plugin.NewOutputSettings(d.host.OutputDefaults())
	name := d.host.Filename(settings.Format(), details)

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	f, path, err := createUnique(d.dir, name)
	if err != nil {
		return "", err
	}

	encodeErr := d.host.SaveToStream(surface.Image(), f, settings)
	closeErr := f.Close()

	if encodeErr != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to encode capture: %w", encodeErr)
	}
	if closeErr != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close %s: %w", path, closeErr)
	}
	return path, nil
}

// createUnique creates dir/name exclusively, adding "-1", "-2", ... before
// the extension until a free name is found.
func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < maxAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) // #nosec G304 - name is sanitised by the host
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("failed to create %s: %w", path, err)
		}
	}
	return nil, "", fmt.Errorf("no free filename for %s after %d attempts", name, maxAttempts)
}
