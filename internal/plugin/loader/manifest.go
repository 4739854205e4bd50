package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/shutter/internal/security"
	"github.com/jmylchreest/shutter/pkg/plugin"
)

// ManifestFile is the name of the manifest in each plugin directory.
const ManifestFile = "plugin.yaml"

// ErrInvalidManifest is returned for manifests missing required fields.
var ErrInvalidManifest = errors.New("invalid plugin manifest")

// fileManifest is the on-disk manifest. Binary is relative to the
// manifest's directory.
type fileManifest struct {
	Name         string `yaml:"name"`
	CreatedBy    string `yaml:"createdBy"`
	Version      string `yaml:"version"`
	EntryType    string `yaml:"entryType"`
	Configurable bool   `yaml:"configurable"`
	Binary       string `yaml:"binary"`
}

// ReadManifest parses a plugin manifest. The binary, if any, is resolved to
// an absolute path that must stay inside the manifest's directory.
func ReadManifest(path string) (*plugin.Descriptor, error) {
	data, err := os.ReadFile(path) // #nosec G304 - manifest path comes from the plugin directory
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m fileManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, path, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("%w: %s: name is required", ErrInvalidManifest, path)
	}
	if m.EntryType == "" {
		m.EntryType = plugin.EntryTypeGoPlugin
	}

	d := plugin.NewDescriptor(m.Name, m.CreatedBy, m.Version, m.EntryType, m.Configurable)

	if m.Binary != "" {
		dir, err := filepath.Abs(filepath.Dir(path))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve plugin directory: %w", err)
		}
		binary := filepath.Join(dir, filepath.FromSlash(m.Binary))
		if err := security.ValidatePluginPath(binary, dir); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, path, err)
		}
		d.SetDLLFile(binary)
	} else if m.EntryType == plugin.EntryTypeGoPlugin {
		return nil, fmt.Errorf("%w: %s: binary is required for %s plugins", ErrInvalidManifest, path, m.EntryType)
	}

	return d, nil
}

// Discover reads every manifest one directory below dir, in name order.
// A missing dir yields no descriptors. Broken manifests are returned as
// errors alongside the descriptors that did load.
func Discover(dir string) ([]*plugin.Descriptor, []error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, []error{fmt.Errorf("failed to read plugin directory: %w", err)}
	}

	var descriptors []*plugin.Descriptor
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}

		path := filepath.Join(dir, entry.Name(), ManifestFile)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}

		d, err := ReadManifest(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, errs
}
