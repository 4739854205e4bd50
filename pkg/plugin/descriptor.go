package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNotDescriptor is matched by the error returned when a descriptor is
	// compared with a value that is not a descriptor.
	ErrNotDescriptor = errors.New("value is not a plugin descriptor")

	// ErrDescriptorImmutable is returned when decoding into a descriptor whose
	// identity has already been set.
	ErrDescriptorImmutable = errors.New("plugin descriptor identity is immutable")
)

// TypeError reports a comparison against a non-descriptor value.
type TypeError struct {
	Got string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	return fmt.Sprintf("cannot compare plugin descriptor with %s", e.Got)
}

// Is lets errors.Is match ErrNotDescriptor.
func (e *TypeError) Is(target error) bool {
	return target == ErrNotDescriptor
}

// Descriptor is the metadata identifying a plugin. Name, author, version,
// entry type and the configurable flag are fixed at construction; only the
// binary location is filled in later by the loader.
type Descriptor struct {
	name         string
	createdBy    string
	version      string
	entryType    string
	configurable bool
	dllFile      string
}

// NewDescriptor creates a descriptor with its immutable identity.
func NewDescriptor(name, createdBy, version, entryType string, configurable bool) *Descriptor {
	return &Descriptor{
		name:         name,
		createdBy:    createdBy,
		version:      version,
		entryType:    entryType,
		configurable: configurable,
	}
}

// Name returns the plugin name. It is the ordering key.
func (d *Descriptor) Name() string { return d.name }

// CreatedBy returns the plugin author.
func (d *Descriptor) CreatedBy() string { return d.createdBy }

// Version returns the plugin version.
func (d *Descriptor) Version() string { return d.version }

// EntryType returns how the plugin is instantiated.
func (d *Descriptor) EntryType() string { return d.entryType }

// Configurable reports whether the plugin exposes a configuration surface.
func (d *Descriptor) Configurable() bool { return d.configurable }

// DLLFile returns the location of the plugin binary, if any.
func (d *Descriptor) DLLFile() string { return d.dllFile }

// SetDLLFile records where the loader found the plugin binary.
func (d *Descriptor) SetDLLFile(path string) { d.dllFile = path }

// String returns "name version".
func (d *Descriptor) String() string {
	if d.version == "" {
		return d.name
	}
	return d.name + " " + d.version
}

// CompareTo orders descriptors by name. Comparing against anything other
// than a descriptor returns a *TypeError.
func (d *Descriptor) CompareTo(other any) (int, error) {
	if d == nil {
		return 0, &TypeError{Got: "nil *plugin.Descriptor receiver"}
	}
	switch o := other.(type) {
	case *Descriptor:
		if o == nil {
			return 0, &TypeError{Got: "nil *plugin.Descriptor"}
		}
		return strings.Compare(d.name, o.name), nil
	case Descriptor:
		return strings.Compare(d.name, o.name), nil
	default:
		return 0, &TypeError{Got: fmt.Sprintf("%T", other)}
	}
}

// Compare orders two descriptors by name, for use with slices.SortFunc.
func Compare(a, b *Descriptor) int {
	return strings.Compare(a.name, b.name)
}

// Manifest is the serialised form of a Descriptor.
type Manifest struct {
	Name         string `json:"name" yaml:"name"`
	CreatedBy    string `json:"createdBy" yaml:"createdBy"`
	Version      string `json:"version" yaml:"version"`
	EntryType    string `json:"entryType" yaml:"entryType"`
	Configurable bool   `json:"configurable" yaml:"configurable"`
	DLLFile      string `json:"dllFile" yaml:"dllFile"`
}

// Manifest returns the serialisable form of the descriptor.
func (d *Descriptor) Manifest() Manifest {
	return Manifest{
		Name:         d.name,
		CreatedBy:    d.createdBy,
		Version:      d.version,
		EntryType:    d.entryType,
		Configurable: d.configurable,
		DLLFile:      d.dllFile,
	}
}

// Descriptor builds a descriptor from the manifest.
func (m Manifest) Descriptor() *Descriptor {
	d := NewDescriptor(m.Name, m.CreatedBy, m.Version, m.EntryType, m.Configurable)
	d.dllFile = m.DLLFile
	return d
}

func (d *Descriptor) assign(m Manifest) error {
	if d.name != "" || d.entryType != "" {
		return ErrDescriptorImmutable
	}
	*d = *m.Descriptor()
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d *Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Manifest())
}

// UnmarshalJSON implements json.Unmarshaler. Only a zero descriptor may be decoded into.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode plugin descriptor: %w", err)
	}
	return d.assign(m)
}

// MarshalYAML implements yaml.Marshaler.
func (d *Descriptor) MarshalYAML() (any, error) {
	return d.Manifest(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Only a zero descriptor may be decoded into.
func (d *Descriptor) UnmarshalYAML(value *yaml.Node) error {
	var m Manifest
	if err := value.Decode(&m); err != nil {
		return fmt.Errorf("failed to decode plugin descriptor: %w", err)
	}
	return d.assign(m)
}
