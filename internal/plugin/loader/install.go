package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jmylchreest/shutter/internal/compression"
	"github.com/jmylchreest/shutter/pkg/plugin"
)

// ErrAlreadyInstalled is returned when a plugin of the same name exists and
// the install was not forced.
var ErrAlreadyInstalled = errors.New("plugin already installed")

// Prober checks a plugin binary before it is installed.
type Prober func(ctx context.Context, binary string) (plugin.PluginInfo, error)

// InstallOptions configures Install.
type InstallOptions struct {
	// Force replaces an existing plugin of the same name.
	Force bool

	// Probe, when set, is run against go-plugin binaries before the bundle
	// is moved into place.
	Probe Prober
}

// Install extracts a plugin bundle into pluginDir/<name>, where name comes
// from the bundle's manifest. The manifest may be at the bundle root or one
// directory down.
func Install(ctx context.Context, bundle, pluginDir string, opts InstallOptions) (*plugin.Descriptor, error) {
	if err := os.MkdirAll(pluginDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plugin directory: %w", err)
	}

	staging, err := os.MkdirTemp(pluginDir, ".install-"+compression.GetArchiveBaseName(bundle)+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if _, err := compression.ExtractFile(bundle, staging); err != nil {
		return nil, fmt.Errorf("failed to extract bundle: %w", err)
	}

	root, err := findManifestRoot(staging)
	if err != nil {
		return nil, err
	}

	staged, err := ReadManifest(filepath.Join(root, ManifestFile))
	if err != nil {
		return nil, err
	}
	if err := validName(staged.Name()); err != nil {
		return nil, err
	}

	if staged.DLLFile() != "" {
		if _, err := os.Stat(staged.DLLFile()); err != nil {
			return nil, fmt.Errorf("%w: binary missing from bundle: %w", ErrInvalidManifest, err)
		}
		if opts.Probe != nil && staged.EntryType() == plugin.EntryTypeGoPlugin {
			if _, err := opts.Probe(ctx, staged.DLLFile()); err != nil {
				return nil, fmt.Errorf("plugin %s failed verification: %w", staged.Name(), err)
			}
		}
	}

	target := filepath.Join(pluginDir, staged.Name())
	if _, err := os.Stat(target); err == nil {
		if !opts.Force {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyInstalled, staged.Name())
		}
		if err := os.RemoveAll(target); err != nil {
			return nil, fmt.Errorf("failed to remove existing plugin: %w", err)
		}
	}

	if err := os.Rename(root, target); err != nil {
		return nil, fmt.Errorf("failed to move plugin into place: %w", err)
	}

	return ReadManifest(filepath.Join(target, ManifestFile))
}

// findManifestRoot returns the directory holding the manifest.
func findManifestRoot(staging string) (string, error) {
	if _, err := os.Stat(filepath.Join(staging, ManifestFile)); err == nil {
		return staging, nil
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", fmt.Errorf("failed to read bundle: %w", err)
	}

	var found []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(staging, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err == nil {
			found = append(found, dir)
		}
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: bundle has no %s", ErrInvalidManifest, ManifestFile)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: bundle has %d manifests", ErrInvalidManifest, len(found))
	}
}

// validName rejects plugin names that cannot be used as a directory name.
func validName(name string) error {
	if name == "." || name == ".." || name[0] == '.' || !fs.ValidPath(name) || filepath.Base(name) != name {
		return fmt.Errorf("%w: plugin name %q cannot be used as a directory", ErrInvalidManifest, name)
	}
	return nil
}
